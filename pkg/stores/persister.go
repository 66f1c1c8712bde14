package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"

	"github.com/formgraph/formgraph/pkg/engine"
	"github.com/formgraph/formgraph/pkg/schema"
)

// DefaultPersistTimeout bounds each store write made from a listener
// callback.
const DefaultPersistTimeout = 5 * time.Second

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// variantRef ties a variant key to the branch owning it and the tags it
// appears under.
type variantRef struct {
	branch *engine.DiscriminatorBranch
	tags   map[string]bool
}

// Persister mirrors an instance's settled snapshots into a Store and
// restores them later. Base node values are written under the session's
// empty branch scope; variant node values under the scope of the variant
// they were mounted in, so values of an unmounted variant are retained
// and reapplied when the variant mounts again in a future session load.
//
// Persister implements engine.Observer for the session event log and is
// attached as a wildcard listener for value writes. Store failures are
// logged, never surfaced to the evaluation path.
type Persister struct {
	store     Store
	graph     *engine.Graph
	sessionID string
	log       zerolog.Logger
	timeout   time.Duration
	variantOf map[string]*variantRef
}

// NewPersister creates a persister for one graph instance identified by
// sessionID.
func NewPersister(store Store, g *engine.Graph, sessionID string, log zerolog.Logger) *Persister {
	p := &Persister{
		store:     store,
		graph:     g,
		sessionID: sessionID,
		log:       log.With().Str("session_id", sessionID).Logger(),
		timeout:   DefaultPersistTimeout,
		variantOf: map[string]*variantRef{},
	}
	for _, br := range g.Branches() {
		for tag, variant := range br.Variants {
			for _, nd := range variant.Nodes() {
				ref, ok := p.variantOf[nd.Key]
				if !ok {
					ref = &variantRef{branch: br, tags: map[string]bool{}}
					p.variantOf[nd.Key] = ref
				}
				ref.tags[tag] = true
			}
		}
	}
	return p
}

// EnsureSession creates the session record if it does not exist yet.
func (p *Persister) EnsureSession(ctx context.Context, graphName string) error {
	if _, err := p.store.GetSession(ctx, p.sessionID); err == nil {
		return nil
	}
	now := time.Now()
	return p.store.CreateSession(ctx, &Session{
		ID:        p.sessionID,
		GraphName: graphName,
		Metadata:  "{}",
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Attach subscribes the persister to the instance's settled snapshots.
// The returned function detaches it.
func (p *Persister) Attach(in *engine.Instance) func() {
	return in.Subscribe(engine.Wildcard, p.persist)
}

// persist is the wildcard listener: it writes the changed keys of a
// settled snapshot to the store, grouped by scope.
func (p *Persister) persist(snap engine.Snapshot, changed []string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	byScope := map[Scope]map[string]string{}
	for _, key := range changed {
		v, ok := snap.Get(key)
		if !ok {
			// Unmounted key. Its last value stays stored under the old
			// variant scope.
			continue
		}
		label, ok := p.scopeLabel(key, snap)
		if !ok {
			continue
		}
		buf, err := schema.ToJSON(v)
		if err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("skipping unserializable value")
			continue
		}
		scope := Scope{SessionID: p.sessionID, Branch: label}
		if byScope[scope] == nil {
			byScope[scope] = map[string]string{}
		}
		byScope[scope][key] = string(buf)
	}

	for scope, values := range byScope {
		if err := p.store.PutValues(ctx, scope, values); err != nil {
			p.log.Error().Err(err).Str("branch", scope.Branch).Msg("failed to persist values")
		}
	}
}

// scopeLabel resolves the branch scope a key should be stored under. The
// second return is false when the key belongs to a variant that is not
// currently mounted.
func (p *Persister) scopeLabel(key string, snap engine.Snapshot) (string, bool) {
	ref, isVariant := p.variantOf[key]
	if !isVariant {
		return "", true
	}
	dv, ok := snap.Get(ref.branch.DiscriminantKey)
	if !ok {
		return "", false
	}
	tag, ok := ref.branch.TagFor(dv)
	if !ok || !ref.tags[tag] {
		return "", false
	}
	return branchLabel(ref.branch, tag), true
}

func branchLabel(br *engine.DiscriminatorBranch, tag string) string {
	return br.DiscriminantKey + "/" + tag
}

// Restore loads the session's stored values and initializes the instance
// with them as the seed. Base values are applied first; the stored
// discriminant values then select which variant scopes are applied, so a
// session reopens in the variant it was saved in, including values kept
// for variants that were unmounted at save time but mount again now.
func (p *Persister) Restore(ctx context.Context, in *engine.Instance) (engine.Snapshot, error) {
	records, err := p.store.ListValues(ctx, p.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session values: %w", err)
	}

	byBranch := map[string][]*ValueRecord{}
	for _, r := range records {
		byBranch[r.Branch] = append(byBranch[r.Branch], r)
	}

	seed := map[string]cty.Value{}
	for _, r := range byBranch[""] {
		v, err := schema.FromJSON([]byte(r.Value), cty.DynamicPseudoType)
		if err != nil {
			p.log.Warn().Err(err).Str("key", r.Key).Msg("skipping unreadable stored value")
			continue
		}
		seed[r.Key] = v
	}

	for _, br := range p.graph.Branches() {
		dv, ok := seed[br.DiscriminantKey]
		if !ok {
			continue
		}
		tag, ok := br.TagFor(dv)
		if !ok {
			continue
		}
		for _, r := range byBranch[branchLabel(br, tag)] {
			v, err := schema.FromJSON([]byte(r.Value), cty.DynamicPseudoType)
			if err != nil {
				p.log.Warn().Err(err).Str("key", r.Key).Msg("skipping unreadable stored value")
				continue
			}
			seed[r.Key] = v
		}
	}

	return in.Init(seed)
}

// EvaluationSettled records a settled event.
func (p *Persister) EvaluationSettled(passes, changed int, elapsed time.Duration) {
	p.appendEvent(EventKindSettled, map[string]interface{}{
		"passes":     passes,
		"changed":    changed,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

// EvaluationFailed is a no-op: failed evaluations leave no state to
// persist.
func (p *Persister) EvaluationFailed(error) {}

// EffectRan is a no-op: individual effect runs are metrics territory.
func (p *Persister) EffectRan(string) {}

// BranchRemounted records a remount event.
func (p *Persister) BranchRemounted(discriminant, from, to string) {
	p.appendEvent(EventKindRemount, map[string]interface{}{
		"discriminant": discriminant,
		"from":         from,
		"to":           to,
	})
}

func (p *Persister) appendEvent(kind EventKind, details map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	buf, err := json.Marshal(details)
	if err != nil {
		buf = []byte("{}")
	}
	event := &Event{
		SessionID: p.sessionID,
		Kind:      kind,
		Details:   string(buf),
		Timestamp: time.Now(),
	}
	if err := p.store.AppendEvent(ctx, event); err != nil {
		p.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to append session event")
	}
}
