// Package webhook implements the verified ingress path for provider webhooks.
//
// Every provider is a Handler variant with three capabilities: signature
// verification over the raw request body, event classification, and event
// processing. Ingest drives a single request through the state machine
//
//	received -> verified -> extracted -> processed -> completed
//	         \-> rejected
//
// A rejected request never reaches ProcessEvent and its body is never parsed.
// Unrecognised event shapes are classified as UnknownEvent, which is a normal
// outcome rather than an error.
//
// # Security Model
//
// - Signatures are compared in constant time (crypto/hmac, crypto/subtle)
// - Body size limits are enforced before verification
// - Verification failures always answer a generic 403; the reason is only logged
// - Request logging excludes payloads
// - Per-client token bucket rate limiting
//
// # Configuration
//
//	webhooks:
//	  rate_limit:
//	    requests_per_second: 10
//	    burst: 20
//	  sources:
//	    - name: github
//	      type: github
//	      secret_ref: github_webhook_secret
//	    - name: slack
//	      type: slack
//	      secret_ref: slack_signing_secret
//	    - name: ci
//	      type: hmac
//	      secret: ${CI_WEBHOOK_SECRET}
//	      signature_header: X-Signature
//	      event_header: X-Event
//	      max_body_size: 512KB
//
// # Error Responses
//
// - 400 Bad Request: verified body is not a JSON object
// - 403 Forbidden: missing, malformed or mismatched signature (no details)
// - 404 Not Found: unknown source
// - 413 Payload Too Large: body exceeds max_body_size
// - 429 Too Many Requests: client exceeded its rate limit
// - 500 Internal Server Error: ProcessEvent failed
package webhook
