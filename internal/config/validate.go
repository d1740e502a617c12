package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Provider selection is a closed set, resolved once at startup.
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER must be openai or anthropic, got %q", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}

	// Metering knobs must stay sane; a zero deadline would make every
	// remote attempt time out immediately.
	if c.Metering.FreeAllowance < 0 {
		errs = append(errs, "METERING_FREE_ALLOWANCE must not be negative")
	}
	if c.Metering.ReadDeadline <= 0 {
		errs = append(errs, "METERING_READ_DEADLINE must be positive")
	}
	if c.Metering.WriteDeadline <= 0 {
		errs = append(errs, "METERING_WRITE_DEADLINE must be positive")
	}
	if c.Metering.BackoffBase <= 0 || c.Metering.BackoffCap < c.Metering.BackoffBase {
		errs = append(errs, "METERING_BACKOFF_BASE must be positive and no greater than METERING_BACKOFF_CAP")
	}
	if c.Metering.AdminMaxOps < 1 {
		errs = append(errs, "METERING_ADMIN_MAX_OPS must be at least 1")
	}

	// Stripe: warn only, billing endpoints return 503 without it
	if c.Stripe.SecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY is empty — checkout and portal endpoints are disabled")
	}
	if c.Stripe.WebhookSecret == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET is empty — webhook endpoint rejects all events")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
