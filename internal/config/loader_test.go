package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		dotenv  string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal config gets defaults",
			yaml: `
state:
  path: ./test.db
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "./test.db", cfg.State.Path)
				assert.Equal(t, "docscribe", cfg.Service.Name)
				assert.Equal(t, "info", cfg.Service.LogLevel)
				assert.Equal(t, "json", cfg.Service.LogFormat)
				assert.Equal(t, 5*time.Second, cfg.Service.ShutdownTimeout)
				assert.Equal(t, time.Minute, cfg.Service.TickInterval)
				assert.Equal(t, 30*time.Minute, cfg.Service.JobLease)
				assert.Equal(t, 30*24*time.Hour, cfg.Service.JobLogRetention)
				assert.Equal(t, "127.0.0.1:8080", cfg.API.Listen)
				assert.True(t, cfg.Metrics.PrometheusEnabled())
				assert.NotNil(t, cfg.Tokens)
			},
		},
		{
			name: "full config with env interpolation",
			yaml: `
service:
  name: scribe
  log_level: debug
  log_format: text
  shutdown_timeout: 10s
  job_lease: 2h
api:
  listen: 0.0.0.0:9000
  auth:
    tokens:
      - token: ${WORKER_TOKEN}
        scopes: [jobs:rw]
tokens:
  github_secret: ${GH_SECRET}
webhooks:
  rate_limit:
    requests_per_second: 5
    burst: 10
  sources:
    - name: github
      type: github
      secret_ref: github_secret
      branches: [main]
    - name: ci
      type: hmac
      secret: plain
      signature_header: X-Signature
      event_header: X-Event
      max_body_size: 512KB
metrics:
  prometheus: false
`,
			env: map[string]string{"WORKER_TOKEN": "w-tok", "GH_SECRET": "gh-s"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "scribe", cfg.Service.Name)
				assert.Equal(t, 10*time.Second, cfg.Service.ShutdownTimeout)
				assert.Equal(t, 2*time.Hour, cfg.Service.JobLease)
				require.Len(t, cfg.API.Auth.Tokens, 1)
				assert.Equal(t, "w-tok", cfg.API.Auth.Tokens[0].Token)
				assert.Equal(t, "gh-s", cfg.Tokens["github_secret"])
				assert.Equal(t, 5.0, cfg.Webhooks.RateLimit.RequestsPerSecond)
				require.Len(t, cfg.Webhooks.Sources, 2)
				assert.Equal(t, []string{"main"}, cfg.Webhooks.Sources[0].Branches)
				assert.Equal(t, "512KB", cfg.Webhooks.Sources[1].MaxBodySize)
				assert.False(t, cfg.Metrics.PrometheusEnabled())
			},
		},
		{
			name: "dotenv fills missing variables",
			yaml: `
tokens:
  slack: ${SLACK_SIGNING_SECRET_TEST}
webhooks:
  sources:
    - name: slack
      type: slack
      secret_ref: slack
`,
			dotenv: "SLACK_SIGNING_SECRET_TEST=from-dotenv\n",
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-dotenv", cfg.Tokens["slack"])
			},
		},
		{
			name: "environment wins over dotenv",
			yaml: `
tokens:
  slack: ${SLACK_SIGNING_SECRET_TEST}
`,
			env:    map[string]string{"SLACK_SIGNING_SECRET_TEST": "from-env"},
			dotenv: "SLACK_SIGNING_SECRET_TEST=from-dotenv\n",
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-env", cfg.Tokens["slack"])
			},
		},
		{
			name: "unresolved token variable",
			yaml: `
api:
  auth:
    tokens:
      - token: ${DOCSCRIBE_UNSET_TOKEN_VAR}
        scopes: ["*"]
`,
			wantErr: "environment variable ${DOCSCRIBE_UNSET_TOKEN_VAR} is not set",
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: verbose
`,
			wantErr: "service.log_level",
		},
		{
			name:    "bad yaml",
			yaml:    "service: [",
			wantErr: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			if tt.dotenv != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte(tt.dotenv), 0600))
			}
			path := writeConfig(t, dir, tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, cfg.SourcePath)
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadAggregatesWebhookErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
webhooks:
  sources:
    - name: github
      type: gitlab
      secret: x
    - name: github
      type: hmac
      secret_ref: missing
      max_body_size: lots
    - type: slack
`)

	_, err := Load(path)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		`type must be one of github, slack, hmac (got "gitlab")`,
		"duplicate name",
		"signature_header is required for hmac sources",
		`secret_ref "missing" not found in tokens`,
		`invalid max_body_size "lots"`,
		"webhooks.sources[2]: name is required",
		"webhooks.sources[2]: no secret or secret_ref configured",
	} {
		assert.Contains(t, msg, want)
	}
	assert.GreaterOrEqual(t, strings.Count(msg, "\n"), 6)
}

func TestLoadDirectoryResolvesConfigYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "state:\n  path: ./x.db\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "./x.db", cfg.State.Path)

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	empty := t.TempDir()
	_, err = Load(empty)
	assert.ErrorContains(t, err, "config.yaml not found")
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"1048576", 1048576, false},
		{"1KB", 1024, false},
		{"2mb", 2 * 1024 * 1024, false},
		{" 1GB ", 1024 * 1024 * 1024, false},
		{"0", 0, true},
		{"-5MB", 0, true},
		{"lots", 0, true},
		{"9223372036854775807GB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
