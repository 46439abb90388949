// Package sources builds webhook handlers from configuration.
package sources

import (
	"fmt"

	"github.com/mattjoyce/docscribe/internal/config"
	"github.com/mattjoyce/docscribe/internal/webhook"
	"github.com/mattjoyce/docscribe/internal/webhook/github"
	"github.com/mattjoyce/docscribe/internal/webhook/slack"
)

// Build converts the webhooks section into a webhook.Config. Secret
// references are resolved against tokens.
func Build(wc config.WebhooksConfig, tokens map[string]string, q webhook.Enqueuer) (webhook.Config, error) {
	cfg := webhook.Config{
		Sources:           make([]webhook.Source, 0, len(wc.Sources)),
		RequestsPerSecond: wc.RateLimit.RequestsPerSecond,
		Burst:             wc.RateLimit.Burst,
	}

	for _, sc := range wc.Sources {
		src, err := buildSource(sc, tokens, q)
		if err != nil {
			return webhook.Config{}, fmt.Errorf("webhook source %q: %w", sc.Name, err)
		}
		cfg.Sources = append(cfg.Sources, src)
	}
	return cfg, nil
}

func buildSource(sc config.WebhookSource, tokens map[string]string, q webhook.Enqueuer) (webhook.Source, error) {
	secret, err := resolveSecret(sc, tokens)
	if err != nil {
		return webhook.Source{}, err
	}

	maxBodySize, err := config.ParseSize(sc.MaxBodySize)
	if err != nil {
		return webhook.Source{}, fmt.Errorf("invalid max_body_size %q: %w", sc.MaxBodySize, err)
	}

	src := webhook.Source{
		Name:        sc.Name,
		MaxBodySize: maxBodySize,
	}

	switch sc.Type {
	case config.SourceGitHub:
		src.Handler = github.New(github.Options{Secret: secret, Branches: sc.Branches}, q)
	case config.SourceSlack:
		src.Handler = slack.New(slack.Options{SigningSecret: secret, Tolerance: sc.Tolerance}, q)
		src.RawResponse = true
	case config.SourceHMAC:
		if sc.SignatureHeader == "" {
			return webhook.Source{}, fmt.Errorf("signature_header is required")
		}
		src.SignatureHeader = sc.SignatureHeader
		src.Handler = webhook.NewHMACHandler(webhook.HMACOptions{
			Secret:         secret,
			EventHeader:    sc.EventHeader,
			DeliveryHeader: sc.DeliveryHeader,
			Kind:           sc.Kind,
		}, q)
	default:
		return webhook.Source{}, fmt.Errorf("unknown type %q", sc.Type)
	}
	return src, nil
}

// resolveSecret prefers SecretRef over Secret.
func resolveSecret(sc config.WebhookSource, tokens map[string]string) (string, error) {
	secret := sc.Secret
	if sc.SecretRef != "" {
		resolved, ok := tokens[sc.SecretRef]
		if !ok {
			return "", fmt.Errorf("secret_ref %q not found in tokens", sc.SecretRef)
		}
		secret = resolved
	}
	if secret == "" {
		return "", fmt.Errorf("no secret or secret_ref configured")
	}
	return secret, nil
}
