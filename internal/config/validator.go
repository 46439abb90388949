package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "text": true}

// validate reports every problem in cfg at once.
func validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validLogLevels[cfg.Service.LogLevel] {
		add("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if !validLogFormats[cfg.Service.LogFormat] {
		add("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.ShutdownTimeout < 0 {
		add("service.shutdown_timeout must not be negative")
	}
	if cfg.Service.TickInterval <= 0 {
		add("service.tick_interval must be positive")
	}
	if cfg.Service.JobLease < 0 {
		add("service.job_lease must not be negative")
	}
	if cfg.Service.JobLogRetention < 0 {
		add("service.job_log_retention must not be negative")
	}
	if cfg.State.Path == "" {
		add("state.path is required")
	}

	if name, ok := unresolved(cfg.API.Auth.APIKey); ok {
		add("api.auth.api_key: environment variable ${%s} is not set", name)
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			add("api.auth.tokens[%d].token is required", i)
		} else if name, ok := unresolved(tok.Token); ok {
			add("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, name)
		}
		if len(tok.Scopes) == 0 {
			add("api.auth.tokens[%d].scopes must be non-empty", i)
		}
	}

	for name, value := range cfg.Tokens {
		if v, ok := unresolved(value); ok {
			add("tokens.%s: environment variable ${%s} is not set", name, v)
		}
	}

	if cfg.Webhooks.RateLimit.RequestsPerSecond < 0 {
		add("webhooks.rate_limit.requests_per_second must not be negative")
	}
	if cfg.Webhooks.RateLimit.Burst < 0 {
		add("webhooks.rate_limit.burst must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Webhooks.Sources))
	for i, src := range cfg.Webhooks.Sources {
		errs = append(errs, validateWebhookSource(i, src, cfg.Tokens, seen)...)
	}

	return errors.Join(errs...)
}

func validateWebhookSource(i int, src WebhookSource, tokens map[string]string, seen map[string]bool) []error {
	var errs []error
	prefix := fmt.Sprintf("webhooks.sources[%d]", i)
	if src.Name != "" {
		prefix = fmt.Sprintf("webhooks.sources[%d] (%s)", i, src.Name)
	}

	switch {
	case src.Name == "":
		errs = append(errs, fmt.Errorf("%s: name is required", prefix))
	case strings.ContainsAny(src.Name, "/?#% "):
		errs = append(errs, fmt.Errorf("%s: name must be a single path segment", prefix))
	case seen[src.Name]:
		errs = append(errs, fmt.Errorf("%s: duplicate name", prefix))
	}
	seen[src.Name] = true

	switch src.Type {
	case SourceGitHub, SourceSlack:
	case SourceHMAC:
		if src.SignatureHeader == "" {
			errs = append(errs, fmt.Errorf("%s: signature_header is required for hmac sources", prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: type must be one of github, slack, hmac (got %q)", prefix, src.Type))
	}

	if src.SecretRef != "" {
		if _, ok := tokens[src.SecretRef]; !ok {
			errs = append(errs, fmt.Errorf("%s: secret_ref %q not found in tokens", prefix, src.SecretRef))
		}
	} else if src.Secret == "" {
		errs = append(errs, fmt.Errorf("%s: no secret or secret_ref configured", prefix))
	} else if name, ok := unresolved(src.Secret); ok {
		errs = append(errs, fmt.Errorf("%s: secret: environment variable ${%s} is not set", prefix, name))
	}

	if _, err := ParseSize(src.MaxBodySize); err != nil {
		errs = append(errs, fmt.Errorf("%s: invalid max_body_size %q: %w", prefix, src.MaxBodySize, err))
	}
	if src.Tolerance < 0 || (src.Tolerance > 0 && src.Tolerance < time.Second) {
		errs = append(errs, fmt.Errorf("%s: tolerance must be at least 1s", prefix))
	}
	return errs
}
