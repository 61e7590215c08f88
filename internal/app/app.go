package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/codec"
	"github.com/danielpatrickdp/adaptive-form/internal/config"
	"github.com/danielpatrickdp/adaptive-form/internal/conflict"
	"github.com/danielpatrickdp/adaptive-form/internal/edge"
	"github.com/danielpatrickdp/adaptive-form/internal/enhance"
	"github.com/danielpatrickdp/adaptive-form/internal/fallback"
	"github.com/danielpatrickdp/adaptive-form/internal/logging"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-form/internal/session"
	"github.com/danielpatrickdp/adaptive-form/internal/telemetry"
)

// #region app-struct

// App is a fully wired decision service: orchestrator, session store,
// optional decision log, context provider and metrics.
type App struct {
	Config   *config.Config
	Orch     *pipeline.Orchestrator
	Store    session.Store
	Rules    []fallback.Rule
	Metrics  *telemetry.Metrics
	Registry *prometheus.Registry

	provider pipeline.ContextProvider // nil derives context from device hints
	db       *sql.DB                  // nil for the memory store
	logDB    bool
	closers  []func() error
	logger   *slog.Logger
}

// #endregion app-struct

// #region open

// Open builds every component from cfg. Close releases them.
func Open(cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		logger:   logging.New("app"),
	}

	rules, err := fallback.LoadRules(cfg.Fallback.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load fallback rules: %w", err)
	}
	a.Rules = rules

	switch cfg.Store.Driver {
	case "sqlite":
		st, err := session.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		a.Store = st
		a.db = st.DB()
		a.closers = append(a.closers, st.Close)
		if cfg.Store.DecisionLog {
			if err := logging.EnsureSchema(a.db); err != nil {
				a.Close()
				return nil, fmt.Errorf("decision log schema: %w", err)
			}
			a.logDB = true
		}
	default:
		a.Store = session.NewMemoryStore()
	}

	if cfg.Provider.Address != "" {
		client, err := codec.NewContextClient(cfg.Provider.Address, cfg.Provider.Timeout())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("context provider: %w", err)
		}
		a.provider = client
		a.closers = append(a.closers, client.Close)
	}

	a.Metrics = telemetry.NewMetrics(a.Registry)
	a.Orch = pipeline.New(cfg.ToPipeline(), pipeline.Deps{
		Edge:      edge.New(cfg.ToEdge()),
		Enhancer:  enhance.New(cfg.ToEnhance()),
		Fallback:  fallback.New(rules),
		Resolver:  conflict.New(cfg.ToConflict()),
		Admission: admission.New(cfg.ToAdmission()),
		Store:     a.Store,
		Recorder:  a.Metrics,
	})
	return a, nil
}

// DB returns the SQLite handle, or nil for the memory store.
func (a *App) DB() *sql.DB {
	return a.db
}

// Close releases the store and the provider connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// #endregion open

// #region decide

// ResolveContext asks the provider for the session context. Without a
// provider, or when it fails, the context comes from the batch's device
// hint. A provider answer with an unknown device keeps the batch hint.
func (a *App) ResolveContext(ctx context.Context, b behavior.Batch) pipeline.SessionContext {
	local := codec.FromDevice(b.DeviceHint(), a.Config.Provider.EnhancementPermitted)
	if a.provider == nil {
		return local
	}
	sc, err := a.provider.Resolve(ctx, b.SessionID, b.FormID)
	if err != nil {
		a.logger.Warn("context provider failed, using device hint", "session_id", b.SessionID, "error", err)
		return local
	}
	if sc.Device.Normalize() == behavior.DeviceUnknown {
		sc.Device = local.Device
	}
	return sc
}

// Decide resolves the context for b, runs the pipeline and records the
// decision in the decision log when enabled.
func (a *App) Decide(ctx context.Context, b behavior.Batch) (pipeline.Decision, error) {
	sc := a.ResolveContext(ctx, b)
	d, err := a.Orch.Decide(ctx, b.SessionID, b.FormID, b.Events, sc)
	if err != nil {
		return pipeline.Decision{}, err
	}
	a.record(d)
	return d, nil
}

// DecideBatch decides many batches; see pipeline.Orchestrator.DecideBatch.
func (a *App) DecideBatch(ctx context.Context, batches []behavior.Batch) []pipeline.Result {
	reqs := make([]pipeline.Request, len(batches))
	for i, b := range batches {
		reqs[i] = pipeline.Request{
			SessionID: b.SessionID,
			FormID:    b.FormID,
			Events:    b.Events,
			Context:   a.ResolveContext(ctx, b),
		}
	}
	results := a.Orch.DecideBatch(ctx, reqs)
	for _, r := range results {
		if r.Err == nil {
			a.record(r.Decision)
		}
	}
	return results
}

func (a *App) record(d pipeline.Decision) {
	if !a.logDB {
		return
	}
	if err := logging.LogDecision(a.db, d.LogEntry()); err != nil {
		a.logger.Warn("decision log write failed", "decision_id", d.ID, "error", err)
	}
}

// Sweep drops sessions idle for longer than the configured TTL.
func (a *App) Sweep(ctx context.Context, now time.Time) (int, error) {
	return a.Store.Sweep(ctx, now.Add(-a.Config.Store.IdleTTL()))
}

// #endregion decide
