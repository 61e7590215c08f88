package pipeline

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/conflict"
	"github.com/danielpatrickdp/adaptive-form/internal/edge"
	"github.com/danielpatrickdp/adaptive-form/internal/enhance"
	"github.com/danielpatrickdp/adaptive-form/internal/fallback"
	"github.com/danielpatrickdp/adaptive-form/internal/features"
	"github.com/danielpatrickdp/adaptive-form/internal/logging"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
)

// #endregion

// #region orchestrator-struct

// Deps are the orchestrator's collaborators. Nil fields get production
// defaults; Enhancer stays nil when unset (enhancement always skipped).
type Deps struct {
	Edge      EdgeTier
	Enhancer  EnhancementTier
	Fallback  FallbackEngine
	Resolver  *conflict.Resolver
	Admission *admission.Controller
	Store     session.Store
	Recorder  Recorder
	Clock     func() time.Time // session-state clock; timings always use wall time
}

// Orchestrator runs the cascading decision pipeline. Safe for concurrent
// use; invocations for the same session are serialized.
type Orchestrator struct {
	config    Config
	edge      EdgeTier
	enhancer  EnhancementTier
	fallback  FallbackEngine
	resolver  *conflict.Resolver
	admission *admission.Controller
	store     session.Store
	recorder  Recorder
	clock     func() time.Time
	locker    *session.Locker
	limiter   *rate.Limiter // nil = unlimited
	logger    *slog.Logger
}

// #endregion

// #region constructor

// New creates a fully wired orchestrator.
func New(config Config, deps Deps) *Orchestrator {
	o := &Orchestrator{
		config:    config,
		edge:      deps.Edge,
		enhancer:  deps.Enhancer,
		fallback:  deps.Fallback,
		resolver:  deps.Resolver,
		admission: deps.Admission,
		store:     deps.Store,
		recorder:  deps.Recorder,
		clock:     deps.Clock,
		locker:    session.NewLocker(),
		logger:    logging.New("pipeline"),
	}
	if o.edge == nil {
		o.edge = edge.New(edge.DefaultConfig())
	}
	if o.fallback == nil {
		o.fallback = fallback.New(fallback.DefaultRules())
	}
	if o.resolver == nil {
		o.resolver = conflict.New(conflict.DefaultConfig())
	}
	if o.admission == nil {
		o.admission = admission.New(admission.DefaultConfig())
	}
	if o.store == nil {
		o.store = session.NewMemoryStore()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.config.Budget <= 0 {
		o.config.Budget = DefaultConfig().Budget
	}
	if o.config.EdgeTimeout <= 0 {
		o.config.EdgeTimeout = DefaultConfig().EdgeTimeout
	}
	if o.config.OnStateUnavailable == "" {
		o.config.OnStateUnavailable = StatePolicyFail
	}
	if config.EnhancementRate > 0 {
		burst := config.EnhancementBurst
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(config.EnhancementRate), burst)
	}
	return o
}

// #endregion

// #region decide

// run carries the mutable bookkeeping of one invocation.
type run struct {
	d          Decision
	v          features.Vector
	candidates []adaptation.Candidate
}

func (r *run) enter(s Stage) {
	r.d.Stages = append(r.d.Stages, s)
}

func (r *run) degrade(reason string) {
	r.d.FallbackUsed = true
	r.d.Degraded = append(r.d.Degraded, reason)
}

// Decide runs one pipeline invocation. The only error it returns wraps
// ErrSessionStateUnavailable (and only under StatePolicyFail); tier errors
// degrade the decision instead.
func (o *Orchestrator) Decide(ctx context.Context, sessionID, formID string, events []behavior.Event, sc SessionContext) (Decision, error) {
	unlock := o.locker.Lock(sessionID)
	defer unlock()

	start := time.Now()
	now := o.clock()
	profile := adaptation.ParseProfile(string(sc.Profile))

	r := &run{d: Decision{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		FormID:    formID,
		Profile:   profile,
		DecidedAt: now,
		Tiers: map[adaptation.Tier]TierStatus{
			adaptation.TierEdge:        StatusUnused,
			adaptation.TierEnhancement: StatusUnused,
			adaptation.TierFallback:    StatusUnused,
		},
	}}
	r.enter(StageStart)

	// Session state first: without it admission cannot run under the fail policy.
	st, unlimited, err := o.loadState(ctx, sessionID)
	if err != nil {
		return Decision{}, err
	}
	if unlimited {
		r.degrade("session state unavailable: deciding without rate limits")
	}

	r.v = features.Extract(events).WithDevice(sc.Device)
	r.d.Features = r.v.Map()

	// --- Edge, or Fallback when Edge fails ---
	r.enter(StageEdgeRunning)
	edgeStart := time.Now()
	res, err := callTier(ctx, o.config.EdgeTimeout, func(ctx context.Context) (edge.Result, error) {
		return o.edge.Classify(ctx, r.v)
	})
	r.d.Timings.EdgeMs = msSince(edgeStart)
	edgeOK := err == nil
	if edgeOK {
		r.d.Tiers[adaptation.TierEdge] = StatusOK
		r.d.UserClass = res.Class
		r.d.ClassConfidence = res.Confidence
		r.candidates = res.Candidates
	} else {
		r.d.Tiers[adaptation.TierEdge] = statusOf(err)
		o.logger.Warn("edge tier failed, using fallback rules", "session_id", sessionID, "tier", adaptation.TierEdge, "error", err)
		r.degrade(fmt.Sprintf("edge: %v", err))
		r.enter(StageFallbackRunning)
		r.candidates = o.runFallback(withDevice(events, sc.Device))
		r.d.Tiers[adaptation.TierFallback] = StatusOK
	}

	// --- Enhancement ---
	if edgeOK && o.enhancementAllowed(sc, profile) {
		r.enter(StageEnhancementRunning)
		o.runEnhancement(ctx, r, start)
	} else {
		r.enter(StageEnhancementSkipped)
		r.d.Tiers[adaptation.TierEnhancement] = StatusSkipped
	}

	// --- Resolve ---
	r.enter(StageResolving)
	resolved := o.resolver.Resolve(r.candidates, conflict.ContextFrom(r.v))
	r.d.Suppressed = resolved.Suppressed

	// --- Admit ---
	r.enter(StageAdmitting)
	adm := o.admission.Admit(admission.Request{
		Candidates: resolved.Candidates,
		State:      st,
		Profile:    profile,
		Now:        now,
		ErrorRate:  r.v[features.ErrorRate],
		Mobile:     r.v.IsMobile(),
		Unlimited:  unlimited,
	})
	if adm.StateChanged {
		if err := o.store.Save(ctx, adm.State); err != nil {
			o.recorder.ObserveStateFailure(StateOpSave)
			if o.config.OnStateUnavailable != StatePolicyDegrade {
				return Decision{}, fmt.Errorf("save session %s: %w: %w", sessionID, ErrSessionStateUnavailable, err)
			}
			o.logger.Warn("session state not saved", "session_id", sessionID, "error", err)
			r.degrade("session state not saved")
		}
	}

	r.d.Candidates = adm.Admitted
	if r.d.Candidates == nil {
		r.d.Candidates = []adaptation.Candidate{}
	}
	r.d.Rejected = adm.Rejected
	r.d.Admission = adm.Outcome
	r.d.AdmissionReason = adm.Reason

	r.enter(StageDone)
	r.d.Timings.TotalMs = msSince(start)

	o.recorder.ObserveDecision(r.d)
	o.logger.Debug("decision",
		"session_id", sessionID,
		"decision_id", r.d.ID,
		"admitted", len(r.d.Candidates),
		"fallback_used", r.d.FallbackUsed,
		"total_ms", r.d.Timings.TotalMs,
	)
	return r.d, nil
}

// #endregion

// #region stages

func (o *Orchestrator) loadState(ctx context.Context, sessionID string) (session.State, bool, error) {
	st, err := o.store.Load(ctx, sessionID)
	switch {
	case err == nil:
		return st, false, nil
	case errors.Is(err, session.ErrNotFound):
		return session.Fresh(sessionID), false, nil
	case o.config.OnStateUnavailable == StatePolicyDegrade:
		o.recorder.ObserveStateFailure(StateOpLoad)
		o.logger.Warn("session state unavailable, degrading", "session_id", sessionID, "error", err)
		return session.Fresh(sessionID), true, nil
	default:
		o.recorder.ObserveStateFailure(StateOpLoad)
		return session.State{}, false, fmt.Errorf("load session %s: %w: %w", sessionID, ErrSessionStateUnavailable, err)
	}
}

// withDevice returns a copy of events carrying the resolved device hint, so
// device rules see the same device as the feature vector. Unknown hints
// return events unchanged.
func withDevice(events []behavior.Event, d behavior.DeviceHint) []behavior.Event {
	d = d.Normalize()
	if d == behavior.DeviceUnknown {
		return events
	}
	out := make([]behavior.Event, len(events))
	for i, e := range events {
		e.DeviceHint = d
		out[i] = e
	}
	return out
}

// runFallback evaluates the rule table. The engine recovers per rule; this
// guards against a custom engine that does not.
func (o *Orchestrator) runFallback(events []behavior.Event) (out []adaptation.Candidate) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("fallback engine panicked", "panic", p)
			out = nil
		}
	}()
	return o.fallback.Evaluate(events)
}

// enhancementAllowed is the capability gate plus the rate limiter. A denial is
// a skip, not a degradation.
func (o *Orchestrator) enhancementAllowed(sc SessionContext, profile adaptation.Profile) bool {
	if o.enhancer == nil {
		return false
	}
	if !o.enhancer.Capable(enhance.Capability{Profile: profile, Permitted: sc.EnhancementPermitted}) {
		return false
	}
	if o.limiter != nil && !o.limiter.Allow() {
		return false
	}
	return true
}

// runEnhancement time-boxes the enhancement tier to what is left of the
// pipeline budget and folds its candidates over the edge set.
func (o *Orchestrator) runEnhancement(ctx context.Context, r *run, start time.Time) {
	enhStart := time.Now()
	defer func() { r.d.Timings.EnhancementMs = msSince(enhStart) }()

	remaining := o.config.Budget - time.Since(start)
	if remaining <= 0 {
		r.d.Tiers[adaptation.TierEnhancement] = StatusTimeout
		r.degrade("enhancement: no budget left")
		return
	}

	edgeCands := r.candidates
	refined, err := callTier(ctx, remaining, func(ctx context.Context) ([]adaptation.Candidate, error) {
		return o.enhancer.Enhance(ctx, r.v, edgeCands)
	})
	if err != nil {
		r.d.Tiers[adaptation.TierEnhancement] = statusOf(err)
		o.logger.Warn("enhancement tier degraded to edge-only", "session_id", r.d.SessionID, "tier", adaptation.TierEnhancement, "error", err)
		r.degrade(fmt.Sprintf("enhancement: %v", err))
		return
	}
	r.d.Tiers[adaptation.TierEnhancement] = StatusOK
	r.candidates = supersede(edgeCands, refined)
}

// supersede unions the two sets, dropping edge candidates whose type the
// enhancement tier re-scored.
func supersede(edgeCands, refined []adaptation.Candidate) []adaptation.Candidate {
	covered := make(map[adaptation.Type]bool, len(refined))
	for _, c := range refined {
		covered[c.Type] = true
	}
	out := make([]adaptation.Candidate, 0, len(edgeCands)+len(refined))
	for _, c := range edgeCands {
		if !covered[c.Type] {
			out = append(out, c)
		}
	}
	return append(out, refined...)
}

// #endregion

// #region tier-call

// callTier runs fn with a timeout, converting panics and errors into
// ErrTierFailure and deadline expiry into ErrTierTimeout. A tier that ignores
// its context is abandoned; its goroutine exits whenever fn returns.
func callTier[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("%w: panic: %v", ErrTierFailure, p)}
			}
		}()
		v, err := fn(ctx)
		ch <- outcome{val: v, err: err}
	}()

	var zero T
	select {
	case out := <-ch:
		switch {
		case out.err == nil:
			return out.val, nil
		case errors.Is(out.err, ErrTierFailure), errors.Is(out.err, ErrTierTimeout):
			return zero, out.err
		case errors.Is(out.err, context.DeadlineExceeded):
			return zero, fmt.Errorf("%w: %w", ErrTierTimeout, out.err)
		default:
			return zero, fmt.Errorf("%w: %w", ErrTierFailure, out.err)
		}
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrTierTimeout, ctx.Err())
	}
}

func statusOf(err error) TierStatus {
	if errors.Is(err, ErrTierTimeout) {
		return StatusTimeout
	}
	return StatusFailed
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

// #endregion
