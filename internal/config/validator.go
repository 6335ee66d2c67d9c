package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// durationFields lists the string-typed duration knobs with their values
// resolved at validation time. Durations stay strings in the schema so YAML
// stays readable ("30s", "5m"); this checks they parse.
func (c *Config) durationFields() map[string]string {
	return map[string]string{
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"database.query_timeout":     c.Database.QueryTimeout,
		"mongo.op_timeout":           c.Mongo.OpTimeout,
		"redash.timeout":             c.Redash.Timeout,
		"acl.cache_ttl":              c.ACL.CacheTTL,
		"acl.negative_cache_ttl":     c.ACL.NegativeCacheTTL,
		"bridge.connect_timeout":     c.Bridge.ConnectTimeout,
		"bridge.call_timeout":        c.Bridge.CallTimeout,
	}
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	for field, value := range c.durationFields() {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field, value)
		}
	}

	// Redash is all-or-nothing: a base URL without a key (or vice versa)
	// is a misconfiguration, not a partial setup.
	if (c.Redash.BaseURL == "") != (c.Redash.APIKey == "") {
		return errors.New("redash: base_url and api_key must be set together")
	}

	return nil
}

// MustDuration parses a duration string that Validate has already accepted.
// Panics on failure; only call with validated config fields.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: invalid duration %q after validation", s))
	}
	return d
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
