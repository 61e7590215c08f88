package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/admission"
	"github.com/danielpatrickdp/adaptive-form/internal/conflict"
	"github.com/danielpatrickdp/adaptive-form/internal/edge"
	"github.com/danielpatrickdp/adaptive-form/internal/enhance"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-form/internal/scoring"
)

// EnvPrefix prefixes every environment override, e.g. ADAPT_PIPELINE_BUDGET_MS.
const EnvPrefix = "ADAPT"

// #region types

// Config is the complete service configuration.
type Config struct {
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Edge        EdgeConfig        `mapstructure:"edge"`
	Enhancement EnhancementConfig `mapstructure:"enhancement"`
	Admission   AdmissionConfig   `mapstructure:"admission"`
	Conflict    ConflictConfig    `mapstructure:"conflict"`
	Fallback    FallbackConfig    `mapstructure:"fallback"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// PipelineConfig controls the orchestrator.
type PipelineConfig struct {
	// BudgetMs is the total pipeline budget; the enhancement tier gets what is left of it
	BudgetMs int `mapstructure:"budget_ms"`
	// EdgeTimeoutMs is the safety-net timeout around the edge tier
	EdgeTimeoutMs int `mapstructure:"edge_timeout_ms"`
	// EnhancementRatePerSec caps enhancement attempts per second (0 = unlimited)
	EnhancementRatePerSec float64 `mapstructure:"enhancement_rate_per_sec"`
	EnhancementBurst      int     `mapstructure:"enhancement_burst"`
	// BatchParallelism is how many sessions a batch decides at once
	BatchParallelism int `mapstructure:"batch_parallelism"`
	// OnStateUnavailable is "fail" or "degrade"
	OnStateUnavailable string `mapstructure:"on_state_unavailable"`
}

// EdgeConfig controls the edge tier.
type EdgeConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// Strategy is "decision_tree" or "linear"
	Strategy string `mapstructure:"strategy"`
}

// EnhancementConfig controls the enhancement tier.
type EnhancementConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	EdgeWeight          float64 `mapstructure:"edge_weight"`
}

// AdmissionConfig controls budgets, cooldown and the per-session cap.
type AdmissionConfig struct {
	CooldownMs    int     `mapstructure:"cooldown_ms"`
	MaxPerSession int     `mapstructure:"max_per_session"`
	HighErrorRate float64 `mapstructure:"high_error_rate"`
	ErrorBonus    float64 `mapstructure:"error_bonus"`
	MobileBonus   float64 `mapstructure:"mobile_bonus"`
	// Profiles maps low/medium/high to a resource budget
	Profiles map[string]adaptation.Cost `mapstructure:"profiles"`
}

// ConflictConfig controls tie handling in the resolver.
type ConflictConfig struct {
	Epsilon       float64 `mapstructure:"epsilon"`
	HighErrorRate float64 `mapstructure:"high_error_rate"`
}

// FallbackConfig points at an optional rule table; empty uses the built-in one.
type FallbackConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	// Driver is "memory" or "sqlite"
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	// IdleTTLMinutes is how long an untouched session survives a sweep
	IdleTTLMinutes int `mapstructure:"idle_ttl_minutes"`
	// DecisionLog persists every decision to the decision_log table (sqlite only)
	DecisionLog bool `mapstructure:"decision_log"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderConfig points at a remote context provider. An empty address
// derives the context from device hints.
type ProviderConfig struct {
	Address              string `mapstructure:"address"`
	TimeoutMs            int    `mapstructure:"timeout_ms"`
	EnhancementPermitted bool   `mapstructure:"enhancement_permitted"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration.
func Default() *Config {
	p := pipeline.DefaultConfig()
	e := edge.DefaultConfig()
	en := enhance.DefaultConfig()
	a := admission.DefaultConfig()
	c := conflict.DefaultConfig()

	profiles := make(map[string]adaptation.Cost, len(a.Budgets))
	for k, v := range a.Budgets {
		profiles[string(k)] = v
	}

	return &Config{
		Pipeline: PipelineConfig{
			BudgetMs:              int(p.Budget / time.Millisecond),
			EdgeTimeoutMs:         int(p.EdgeTimeout / time.Millisecond),
			EnhancementRatePerSec: p.EnhancementRate,
			EnhancementBurst:      p.EnhancementBurst,
			BatchParallelism:      p.BatchParallelism,
			OnStateUnavailable:    string(p.OnStateUnavailable),
		},
		Edge: EdgeConfig{
			ConfidenceThreshold: e.ConfidenceThreshold,
			Strategy:            string(e.Strategy),
		},
		Enhancement: EnhancementConfig{
			Enabled:             en.Enabled,
			ConfidenceThreshold: en.ConfidenceThreshold,
			EdgeWeight:          en.EdgeWeight,
		},
		Admission: AdmissionConfig{
			CooldownMs:    int(a.CooldownPeriod / time.Millisecond),
			MaxPerSession: a.MaxPerSession,
			HighErrorRate: a.HighErrorRate,
			ErrorBonus:    a.ErrorBonus,
			MobileBonus:   a.MobileBonus,
			Profiles:      profiles,
		},
		Conflict: ConflictConfig{
			Epsilon:       c.Epsilon,
			HighErrorRate: c.HighErrorRate,
		},
		Store: StoreConfig{
			Driver:         "memory",
			Path:           "adaptive-form.db",
			IdleTTLMinutes: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Provider: ProviderConfig{
			TimeoutMs: 100,
		},
	}
}

// SetDefaults registers default values with v so env overrides resolve
// for every key.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("pipeline.budget_ms", d.Pipeline.BudgetMs)
	v.SetDefault("pipeline.edge_timeout_ms", d.Pipeline.EdgeTimeoutMs)
	v.SetDefault("pipeline.enhancement_rate_per_sec", d.Pipeline.EnhancementRatePerSec)
	v.SetDefault("pipeline.enhancement_burst", d.Pipeline.EnhancementBurst)
	v.SetDefault("pipeline.batch_parallelism", d.Pipeline.BatchParallelism)
	v.SetDefault("pipeline.on_state_unavailable", d.Pipeline.OnStateUnavailable)

	v.SetDefault("edge.confidence_threshold", d.Edge.ConfidenceThreshold)
	v.SetDefault("edge.strategy", d.Edge.Strategy)

	v.SetDefault("enhancement.enabled", d.Enhancement.Enabled)
	v.SetDefault("enhancement.confidence_threshold", d.Enhancement.ConfidenceThreshold)
	v.SetDefault("enhancement.edge_weight", d.Enhancement.EdgeWeight)

	v.SetDefault("admission.cooldown_ms", d.Admission.CooldownMs)
	v.SetDefault("admission.max_per_session", d.Admission.MaxPerSession)
	v.SetDefault("admission.high_error_rate", d.Admission.HighErrorRate)
	v.SetDefault("admission.error_bonus", d.Admission.ErrorBonus)
	v.SetDefault("admission.mobile_bonus", d.Admission.MobileBonus)
	for name, cost := range d.Admission.Profiles {
		v.SetDefault("admission.profiles."+name+".compute", cost.Compute)
		v.SetDefault("admission.profiles."+name+".memory", cost.Memory)
		v.SetDefault("admission.profiles."+name+".animation", cost.Animation)
	}

	v.SetDefault("conflict.epsilon", d.Conflict.Epsilon)
	v.SetDefault("conflict.high_error_rate", d.Conflict.HighErrorRate)

	v.SetDefault("fallback.rules_file", d.Fallback.RulesFile)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.idle_ttl_minutes", d.Store.IdleTTLMinutes)
	v.SetDefault("store.decision_log", d.Store.DecisionLog)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("provider.address", d.Provider.Address)
	v.SetDefault("provider.timeout_ms", d.Provider.TimeoutMs)
	v.SetDefault("provider.enhancement_permitted", d.Provider.EnhancementPermitted)

	v.SetDefault("metrics.listen_addr", d.Metrics.ListenAddr)
}

// #endregion defaults

// #region load

// Load reads the YAML file at path (optional), applies ADAPT_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// #endregion load

// #region conversions

// ToPipeline converts the pipeline section.
func (c *Config) ToPipeline() pipeline.Config {
	return pipeline.Config{
		Budget:             time.Duration(c.Pipeline.BudgetMs) * time.Millisecond,
		EdgeTimeout:        time.Duration(c.Pipeline.EdgeTimeoutMs) * time.Millisecond,
		EnhancementRate:    c.Pipeline.EnhancementRatePerSec,
		EnhancementBurst:   c.Pipeline.EnhancementBurst,
		BatchParallelism:   c.Pipeline.BatchParallelism,
		OnStateUnavailable: pipeline.StatePolicy(c.Pipeline.OnStateUnavailable),
	}
}

// ToEdge converts the edge section.
func (c *Config) ToEdge() edge.Config {
	return edge.Config{
		ConfidenceThreshold: c.Edge.ConfidenceThreshold,
		Strategy:            scoring.Kind(c.Edge.Strategy),
	}
}

// ToEnhance converts the enhancement section.
func (c *Config) ToEnhance() enhance.Config {
	return enhance.Config{
		Enabled:             c.Enhancement.Enabled,
		ConfidenceThreshold: c.Enhancement.ConfidenceThreshold,
		EdgeWeight:          c.Enhancement.EdgeWeight,
	}
}

// ToAdmission converts the admission section. Profiles missing from the
// file keep their default budget.
func (c *Config) ToAdmission() admission.Config {
	budgets := admission.DefaultBudgets()
	for name, cost := range c.Admission.Profiles {
		budgets[adaptation.Profile(strings.ToLower(name))] = cost
	}
	return admission.Config{
		CooldownPeriod: time.Duration(c.Admission.CooldownMs) * time.Millisecond,
		MaxPerSession:  c.Admission.MaxPerSession,
		Budgets:        budgets,
		HighErrorRate:  c.Admission.HighErrorRate,
		ErrorBonus:     c.Admission.ErrorBonus,
		MobileBonus:    c.Admission.MobileBonus,
	}
}

// ToConflict converts the conflict section.
func (c *Config) ToConflict() conflict.Config {
	return conflict.Config{
		Epsilon:       c.Conflict.Epsilon,
		HighErrorRate: c.Conflict.HighErrorRate,
	}
}

// IdleTTL is the session sweep horizon.
func (s StoreConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

// Timeout is the per-call provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// #endregion conversions

// IsValidation reports whether err came from Validate.
func IsValidation(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}
