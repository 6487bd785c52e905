package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	// MEMBERSHIP_BASE_URL is required; memberships have nowhere to go
	// without it.
	if cfg.MembershipBaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "MEMBERSHIP_BASE_URL",
			Message: "required",
		})
	}

	// MEMBERSHIP_SECRET is required; every directory request is signed.
	if cfg.MembershipSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "MEMBERSHIP_SECRET",
			Message: "required",
		})
	}

	// SYNC_SPEC and SWEEP_SPEC must be valid cron expressions
	if cfg.SyncSpec != "" {
		if _, err := cron.ParseStandard(cfg.SyncSpec); err != nil {
			errs = append(errs, ValidationError{
				Field:   "SYNC_SPEC",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.SweepSpec != "" {
		if _, err := cron.ParseStandard(cfg.SweepSpec); err != nil {
			errs = append(errs, ValidationError{
				Field:   "SWEEP_SPEC",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	// PROVIDER_TIMEOUT must be a valid positive duration
	if cfg.ProviderTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.ProviderTimeoutStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "PROVIDER_TIMEOUT",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "PROVIDER_TIMEOUT",
				Message: "must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
