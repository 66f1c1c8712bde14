package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formgraph/formgraph/pkg/engine"
)

// Telemetry bundles the logger, metrics collector, and tracer behind one
// initialization path.
type Telemetry struct {
	Logger  *Logger
	Metrics *Metrics
	Tracer  *Tracer
}

// New initializes telemetry from a validated configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment, cfg.ResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	return &Telemetry{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	}, nil
}

// Shutdown flushes and releases telemetry resources.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Observer returns an engine.Observer that logs evaluation lifecycle
// events and updates metrics for one session.
func (t *Telemetry) Observer(sessionID string) engine.Observer {
	return &engineObserver{
		log:     t.Logger.WithSessionID(sessionID),
		metrics: t.Metrics,
	}
}

// engineObserver bridges engine callbacks to logs and metrics.
type engineObserver struct {
	log     *Logger
	metrics *Metrics
}

func (o *engineObserver) EvaluationSettled(passes, changed int, elapsed time.Duration) {
	o.metrics.RecordEvaluation("evaluate", "settled", elapsed)
	o.metrics.RecordSettlement(passes, changed)
	o.log.zlog.Debug().
		Int("passes", passes).
		Int("changed", changed).
		Dur("elapsed", elapsed).
		Msg("evaluation settled")
}

func (o *engineObserver) EvaluationFailed(err error) {
	class := errorClass(err)
	o.metrics.RecordEvaluation("evaluate", "failed", 0)
	o.metrics.RecordError(class)
	o.log.zlog.Warn().
		Err(err).
		Str("class", class).
		Msg("evaluation rolled back")
}

func (o *engineObserver) EffectRan(name string) {
	o.metrics.RecordEffectRun(name)
	o.log.zlog.Trace().Str("effect", name).Msg("effect ran")
}

func (o *engineObserver) BranchRemounted(discriminant, from, to string) {
	o.metrics.RecordRemount(discriminant)
	o.log.zlog.Debug().
		Str("discriminant", discriminant).
		Str("from", from).
		Str("to", to).
		Msg("variant remounted")
}

// errorClass extracts the engine error class for metric labels.
func errorClass(err error) string {
	var ge *engine.GraphError
	if errors.As(err, &ge) {
		return string(ge.Class)
	}
	return "internal"
}
