package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/docscribe/internal/api"
	"github.com/mattjoyce/docscribe/internal/auth"
	"github.com/mattjoyce/docscribe/internal/config"
	"github.com/mattjoyce/docscribe/internal/events"
	"github.com/mattjoyce/docscribe/internal/lock"
	"github.com/mattjoyce/docscribe/internal/log"
	"github.com/mattjoyce/docscribe/internal/metrics"
	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/scheduler"
	"github.com/mattjoyce/docscribe/internal/storage"
	"github.com/mattjoyce/docscribe/internal/tui/watch"
	"github.com/mattjoyce/docscribe/internal/webhook"
	"github.com/mattjoyce/docscribe/internal/webhook/sources"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const (
	configEnvVar = "DOCSCRIBE_CONFIG"
	apiKeyEnvVar = "DOCSCRIBE_API_KEY"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "metrics":
		return runMetricsNoun(args)
	case "job":
		return runJobNoun(args)

	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: docscribe version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("docscribe %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`docscribe - webhook ingress and analysis job queue

Usage:
  docscribe <noun> <action> [flags]

System Commands:
  system start      Start the service in the foreground
  system status     Check config, state database and PID lock

Job Commands:
  job inspect       Show a job's payload, result and attempt history

Config Commands:
  config check      Validate configuration and report policy warnings
  config lock       Record BLAKE3 checksums for config.yaml and .env
  config token      Create scoped API tokens

Metrics Commands:
  metrics show      Print the request metrics snapshot
  metrics watch     Live dashboard (health, requests, webhook activity)

General:
  version           Show version information
  help              Show this help message

The config path defaults to $DOCSCRIBE_CONFIG, then ./config.yaml.
Use 'docscribe <noun> help' for action flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: docscribe system start [--config PATH]")
			fmt.Println("Start the API and webhook ingress in the foreground.")
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: docscribe system status [--config PATH] [--json]")
			fmt.Println("Exit code 0 when every check passes, 1 otherwise.")
			return 0
		}
		return runSystemStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runMetricsNoun(args []string) int {
	if len(args) < 1 {
		printMetricsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printMetricsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "show":
		return runMetricsShow(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printMetricsWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown metrics action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: docscribe system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printMetricsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: docscribe metrics <action> [--api URL] [--token TOKEN]")
	fmt.Fprintln(w, "Actions: show, watch")
}

func printMetricsWatchHelp() {
	fmt.Println("Usage: docscribe metrics watch [flags]")
	fmt.Println()
	fmt.Println("Live dashboard of service health, request metrics and webhook activity.")
	fmt.Println("The token needs metrics:ro and events:ro.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api URL        API base URL (default: http://localhost:8080)")
	fmt.Println("  --token TOKEN    API bearer token (or DOCSCRIBE_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll routes")
}

// defaultConfigPath prefers $DOCSCRIBE_CONFIG over ./config.yaml.
func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(configEnvVar)); p != "" {
		return p
	}
	return "config.yaml"
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("docscribe starting", "version", version, "config", cfg.SourcePath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	q := queue.New(db)
	collector := metrics.New(log.WithComponent("metrics"))
	hub := events.NewHub(256)

	sched := scheduler.New(cfg.Service, q, hub, log.WithComponent("scheduler"))
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}
	defer sched.Stop()

	webhookConfig, err := sources.Build(cfg.Webhooks, cfg.Tokens, q)
	if err != nil {
		logger.Error("failed to configure webhooks", "error", err)
		return 1
	}
	webhookConfig.Events = hub
	hooks, err := webhook.New(webhookConfig, collector.Registry(), log.WithComponent("webhook"))
	if err != nil {
		logger.Error("failed to build webhook ingress", "error", err)
		return 1
	}
	for _, name := range hooks.SourceNames() {
		logger.Info("webhook source registered", "source", name, "path", "/webhooks/"+name)
	}

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	apiServer := api.New(api.Config{
		Listen:          cfg.API.Listen,
		APIKey:          cfg.API.Auth.APIKey,
		Tokens:          tokens,
		Prometheus:      cfg.Metrics.PrometheusEnabled(),
		ShutdownTimeout: cfg.Service.ShutdownTimeout,
	}, q, collector, hooks, hub, log.WithComponent("api"))

	logger.Info("docscribe running (press Ctrl+C to stop)")

	if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return 1
	}

	logger.Info("docscribe stopped")
	return 0
}

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []statusCheck `json:"checks"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := systemStatus(context.Background(), *configPath)

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, c := range report.Checks {
			state := "OK"
			if !c.OK {
				state = "FAIL"
			}
			if c.Detail != "" {
				fmt.Printf("%s: %s (%s)\n", c.Name, state, c.Detail)
			} else {
				fmt.Printf("%s: %s\n", c.Name, state)
			}
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}

// systemStatus runs the offline checks. Checks that depend on the config
// fail with it.
func systemStatus(ctx context.Context, configPath string) statusReport {
	var report statusReport
	add := func(name string, ok bool, detail string) {
		report.Checks = append(report.Checks, statusCheck{Name: name, OK: ok, Detail: detail})
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		add("config_load", false, err.Error())
		add("state_db", false, "config not loaded")
		add("pid_lock", false, "config not loaded")
		return report
	}
	add("config_load", true, cfg.SourcePath)

	switch err := config.Verify(cfg.SourcePath); {
	case errors.Is(err, config.ErrNoChecksums):
		add("config_integrity", true, "not locked")
	case err != nil:
		add("config_integrity", false, err.Error())
	default:
		add("config_integrity", true, "checksums match")
	}

	if db, err := storage.OpenSQLite(ctx, cfg.State.Path); err != nil {
		add("state_db", false, err.Error())
	} else {
		depth, derr := queue.New(db).Depth(ctx)
		_ = db.Close()
		if derr != nil {
			add("state_db", false, derr.Error())
		} else {
			add("state_db", true, fmt.Sprintf("%s, %d queued", cfg.State.Path, depth))
		}
	}

	lockPath := lock.PathFor(cfg.State.Path)
	if l, err := lock.Acquire(lockPath); err != nil {
		add("pid_lock", true, fmt.Sprintf("held: %v", err))
	} else {
		_ = l.Release()
		add("pid_lock", true, "free")
	}

	report.Healthy = true
	for _, c := range report.Checks {
		report.Healthy = report.Healthy && c.OK
	}
	return report
}

func apiFlags(fs *flag.FlagSet) (apiURL, apiKey *string) {
	apiURL = fs.String("api", "http://localhost:8080", "API base URL")
	apiKey = fs.String("token", os.Getenv(apiKeyEnvVar), "API bearer token")
	return apiURL, apiKey
}

func runMetricsShow(args []string) int {
	fs := flag.NewFlagSet("metrics show", flag.ContinueOnError)
	apiURL, apiKey := apiFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*apiURL, "/")+"/metrics", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad API URL: %v\n", err)
		return 1
	}
	req.Header.Set("Authorization", "Bearer "+*apiKey)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "GET /metrics: %s\n", resp.Status)
		return 1
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid metrics response: %v\n", err)
		return 1
	}
	data, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(data))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("metrics watch", flag.ContinueOnError)
	apiURL, apiKey := apiFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: API token required. Use --token or %s env var.\n", apiKeyEnvVar)
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
