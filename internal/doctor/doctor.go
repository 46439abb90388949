// Package doctor runs policy checks over a configuration that already
// loaded. Syntax and required fields are config.Load's job; doctor reports
// settings that are legal but unreachable, weak or deprecated.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/docscribe/internal/auth"
	"github.com/mattjoyce/docscribe/internal/config"
)

// minSecretLength is the shortest signing secret accepted without a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.validateWebhooks(r)
	d.warnUnreachableEndpoints(r)
	d.warnDeprecatedSyntax(r)
	d.warnIntegrity(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth",
			"no authentication configured; jobs, metrics and events endpoints will reject every request")
	}
}

// validateTokenScopes rejects scopes the API never checks.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if auth.KnownScope(scope) {
				continue
			}
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
				fmt.Sprintf("unknown scope %q (expected *, jobs:ro, jobs:rw, metrics:ro or events:ro)", scope))
		}
	}
}

func (d *Doctor) validateWebhooks(r *Result) {
	wh := d.cfg.Webhooks
	if len(wh.Sources) > 0 && wh.RateLimit.RequestsPerSecond == 0 {
		d.addWarning(r, "webhooks", "webhooks.rate_limit",
			"webhook sources are configured without rate limiting")
	}

	for i, src := range wh.Sources {
		field := fmt.Sprintf("webhooks.sources[%d]", i)

		secret := src.Secret
		if src.SecretRef != "" {
			secret = d.cfg.Tokens[src.SecretRef]
		} else if src.Secret != "" {
			d.addWarning(r, "webhooks", field+".secret",
				fmt.Sprintf("source %q keeps its secret inline; prefer secret_ref into tokens", src.Name))
		}
		if secret != "" && len(secret) < minSecretLength {
			d.addWarning(r, "webhooks", field,
				fmt.Sprintf("source %q signing secret is shorter than %d characters", src.Name, minSecretLength))
		}

		switch src.Type {
		case config.SourceSlack:
			if src.Tolerance > 5*time.Minute {
				d.addWarning(r, "webhooks", field+".tolerance",
					fmt.Sprintf("source %q replay window %s is wider than Slack's recommended 5m", src.Name, src.Tolerance))
			}
		case config.SourceGitHub:
			for j, b := range src.Branches {
				if strings.HasPrefix(b, "refs/") {
					d.addError(r, "webhooks", fmt.Sprintf("%s.branches[%d]", field, j),
						fmt.Sprintf("branch %q must be a short name such as main", b))
				}
			}
		}
	}
}

// warnUnreachableEndpoints flags endpoints no configured token can call.
func (d *Doctor) warnUnreachableEndpoints(r *Result) {
	if d.cfg.API.Auth.APIKey != "" || len(d.cfg.API.Auth.Tokens) == 0 {
		return
	}
	held := map[string]bool{}
	for _, tok := range d.cfg.API.Auth.Tokens {
		p := auth.Principal{Scopes: map[string]struct{}{}}
		for _, s := range tok.Scopes {
			p.Scopes[s] = struct{}{}
		}
		for _, s := range []string{auth.ScopeMetrics, auth.ScopeJobsWrite, auth.ScopeEvents} {
			if auth.HasAnyScope(p, s) {
				held[s] = true
			}
		}
	}
	if !held[auth.ScopeMetrics] {
		d.addWarning(r, "token_scopes", "api.auth.tokens", "no token holds metrics:ro; /metrics is unreachable")
	}
	if len(d.cfg.Webhooks.Sources) > 0 && !held[auth.ScopeJobsWrite] {
		d.addWarning(r, "token_scopes", "api.auth.tokens", "no token holds jobs:rw; queued jobs cannot be claimed")
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

func (d *Doctor) warnIntegrity(r *Result) {
	if d.cfg.SourcePath == "" {
		return
	}
	switch err := config.Verify(d.cfg.SourcePath); {
	case errors.Is(err, config.ErrNoChecksums):
		d.addWarning(r, "integrity", "", "configuration is not locked (run 'docscribe config lock')")
	case err != nil:
		d.addError(r, "integrity", "", err.Error())
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
