package engine

import "time"

// Observer receives evaluation lifecycle callbacks. The engine performs no
// I/O and depends on no telemetry library; an Observer implementation
// (e.g. pkg/telemetry) bridges these callbacks to metrics or logs.
// Callbacks are invoked synchronously and must be cheap.
type Observer interface {
	// EvaluationSettled is called after a successful Init, Set, or Reset
	// with the number of effect passes used and the wall time spent.
	EvaluationSettled(passes int, changed int, elapsed time.Duration)

	// EvaluationFailed is called when an evaluation is rolled back.
	EvaluationFailed(err error)

	// EffectRan is called once per effect execution.
	EffectRan(name string)

	// BranchRemounted is called when a discriminant change swaps the
	// mounted variant. from is empty on first mount, to is empty on a
	// mount-to-nothing transition.
	BranchRemounted(discriminant, from, to string)
}

// Observers combines several observers into one that fans callbacks out
// in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) EvaluationSettled(passes, changed int, elapsed time.Duration) {
	for _, o := range m {
		o.EvaluationSettled(passes, changed, elapsed)
	}
}

func (m multiObserver) EvaluationFailed(err error) {
	for _, o := range m {
		o.EvaluationFailed(err)
	}
}

func (m multiObserver) EffectRan(name string) {
	for _, o := range m {
		o.EffectRan(name)
	}
}

func (m multiObserver) BranchRemounted(discriminant, from, to string) {
	for _, o := range m {
		o.BranchRemounted(discriminant, from, to)
	}
}

// nopObserver is the default Observer.
type nopObserver struct{}

func (nopObserver) EvaluationSettled(int, int, time.Duration) {}
func (nopObserver) EvaluationFailed(error)                    {}
func (nopObserver) EffectRan(string)                          {}
func (nopObserver) BranchRemounted(string, string, string)    {}
