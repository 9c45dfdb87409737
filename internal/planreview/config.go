package planreview

import (
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/revgate/internal/verdict"
)

// Config bounds a convergence session.
type Config struct {
	MaxIterations   int
	Timeout         time.Duration
	ReviewerTimeout time.Duration
	Blocking        []verdict.Severity
}

// DefaultConfig returns the plan review config, reading from viper when available.
func DefaultConfig() Config {
	cfg := Config{
		MaxIterations:   viper.GetInt("plan_review.max_iterations"),
		Timeout:         viper.GetDuration("plan_review.timeout"),
		ReviewerTimeout: viper.GetDuration("plan_review.reviewer_timeout"),
		Blocking:        verdict.DefaultBlocking,
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Minute
	}
	if cfg.ReviewerTimeout <= 0 {
		cfg.ReviewerTimeout = 5 * time.Minute
	}
	if sevs := viper.GetStringSlice("gate.blocking_severities"); len(sevs) > 0 {
		var set []verdict.Severity
		for _, s := range sevs {
			if sev, err := verdict.ParseSeverity(s); err == nil {
				set = append(set, sev)
			}
		}
		if len(set) > 0 {
			cfg.Blocking = set
		}
	}
	return cfg
}
