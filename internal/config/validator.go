package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-form/internal/scoring"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string // config key, e.g. "pipeline.budget_ms"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks every section and returns all problems found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateTiers()...)
	errs = append(errs, c.validateAdmission()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateProvider()...)
	return errs
}

func (c *Config) validatePipeline() []ValidationError {
	var errs []ValidationError
	p := c.Pipeline
	if p.BudgetMs <= 0 {
		errs = append(errs, ValidationError{"pipeline.budget_ms", p.BudgetMs, "must be positive"})
	}
	if p.EdgeTimeoutMs <= 0 {
		errs = append(errs, ValidationError{"pipeline.edge_timeout_ms", p.EdgeTimeoutMs, "must be positive"})
	} else if p.BudgetMs > 0 && p.EdgeTimeoutMs >= p.BudgetMs {
		errs = append(errs, ValidationError{"pipeline.edge_timeout_ms", p.EdgeTimeoutMs, "must be below budget_ms"})
	}
	if p.EnhancementRatePerSec < 0 {
		errs = append(errs, ValidationError{"pipeline.enhancement_rate_per_sec", p.EnhancementRatePerSec, "must not be negative"})
	}
	if p.BatchParallelism < 1 {
		errs = append(errs, ValidationError{"pipeline.batch_parallelism", p.BatchParallelism, "must be at least 1"})
	}
	switch pipeline.StatePolicy(p.OnStateUnavailable) {
	case pipeline.StatePolicyFail, pipeline.StatePolicyDegrade:
	default:
		errs = append(errs, ValidationError{"pipeline.on_state_unavailable", p.OnStateUnavailable, "must be fail or degrade"})
	}
	return errs
}

func (c *Config) validateTiers() []ValidationError {
	var errs []ValidationError
	switch scoring.Kind(c.Edge.Strategy) {
	case scoring.KindDecisionTree, scoring.KindLinear:
	default:
		errs = append(errs, ValidationError{"edge.strategy", c.Edge.Strategy, "must be decision_tree or linear"})
	}
	unit := map[string]float64{
		"edge.confidence_threshold":        c.Edge.ConfidenceThreshold,
		"enhancement.confidence_threshold": c.Enhancement.ConfidenceThreshold,
		"enhancement.edge_weight":          c.Enhancement.EdgeWeight,
		"conflict.epsilon":                 c.Conflict.Epsilon,
		"conflict.high_error_rate":         c.Conflict.HighErrorRate,
	}
	keys := make([]string, 0, len(unit))
	for k := range unit {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if v := unit[k]; v < 0 || v > 1 {
			errs = append(errs, ValidationError{k, v, "must be within [0,1]"})
		}
	}
	return errs
}

func (c *Config) validateAdmission() []ValidationError {
	var errs []ValidationError
	a := c.Admission
	if a.CooldownMs < 0 {
		errs = append(errs, ValidationError{"admission.cooldown_ms", a.CooldownMs, "must not be negative"})
	}
	if a.MaxPerSession < 1 {
		errs = append(errs, ValidationError{"admission.max_per_session", a.MaxPerSession, "must be at least 1"})
	}
	names := make([]string, 0, len(a.Profiles))
	for name := range a.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if !slices.Contains([]string{"low", "medium", "high"}, strings.ToLower(name)) {
			errs = append(errs, ValidationError{"admission.profiles." + name, name, "unknown profile"})
			continue
		}
		cost := a.Profiles[name]
		if cost.Compute < 0 || cost.Memory < 0 || cost.Animation < 0 {
			errs = append(errs, ValidationError{"admission.profiles." + name, cost, "budget components must not be negative"})
		}
	}
	return errs
}

func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError
	s := c.Store
	switch s.Driver {
	case "memory":
	case "sqlite":
		if s.Path == "" {
			errs = append(errs, ValidationError{"store.path", s.Path, "required for the sqlite driver"})
		}
	default:
		errs = append(errs, ValidationError{"store.driver", s.Driver, "must be memory or sqlite"})
	}
	if s.DecisionLog && s.Driver != "sqlite" {
		errs = append(errs, ValidationError{"store.decision_log", s.DecisionLog, "requires the sqlite driver"})
	}
	if s.IdleTTLMinutes < 0 {
		errs = append(errs, ValidationError{"store.idle_ttl_minutes", s.IdleTTLMinutes, "must not be negative"})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level, "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, ValidationError{"logging.format", c.Logging.Format, "must be text or json"})
	}
	return errs
}

func (c *Config) validateProvider() []ValidationError {
	if c.Provider.Address != "" && c.Provider.TimeoutMs <= 0 {
		return []ValidationError{{"provider.timeout_ms", c.Provider.TimeoutMs, "must be positive when an address is set"}}
	}
	return nil
}
