package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/docscribe/internal/auth"
	"github.com/mattjoyce/docscribe/internal/config"
	"github.com/mattjoyce/docscribe/internal/doctor"
	"github.com/mattjoyce/docscribe/internal/tui/tokenmgr"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: docscribe config lock [--config PATH] [-v|--verbose] [--dry-run]")
			fmt.Println("Record BLAKE3 checksums for config.yaml and .env in .checksums.")
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: docscribe config check [--config PATH] [--json] [--strict]")
			fmt.Println("Validate configuration and report policy warnings. --strict exits 2 on warnings.")
			return 0
		}
		return runConfigCheck(actionArgs)
	case "token":
		return runConfigToken(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: docscribe config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, token")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	// Load fails on syntax, required fields and checksum mismatch.
	cfg, err := config.Load(*configPath)
	if err != nil {
		if *jsonOut {
			out, _ := doctor.FormatJSON(&doctor.Result{
				Errors: []doctor.Issue{{Category: "load", Message: err.Error()}},
			})
			fmt.Println(out)
		} else {
			fmt.Printf("Configuration invalid: %v\n", err)
		}
		return 1
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	switch {
	case !result.Valid:
		return 1
	case *strict && len(result.Warnings) > 0:
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if verbose || verboseShort {
		for _, f := range report.Files {
			fmt.Printf("  HASH %s: %s\n", f.Filename, f.Hash)
		}
		if report.Written {
			fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
		} else {
			fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %s (no files written)\n", report.ConfigDir)
	} else {
		fmt.Printf("Successfully locked configuration in %s\n", report.ConfigDir)
	}
	return 0
}

func runConfigToken(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigTokenHelp()
		return 0
	}

	switch args[0] {
	case "create":
		return runConfigTokenCreate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown token action: %s\n", args[0])
		return 1
	}
}

func printConfigTokenHelp() {
	fmt.Println("Usage: docscribe config token create --name NAME [--scopes a,b] [--format human|json]")
	fmt.Println("Generate a bearer token. Without --scopes an interactive picker opens.")
	fmt.Println("Scopes: *, jobs:ro, jobs:rw, metrics:ro, events:ro")
}

type tokenCreateOutput struct {
	Name     string          `json:"name"`
	EnvVar   string          `json:"env_var"`
	TokenKey string          `json:"token_key"`
	Entry    config.APIToken `json:"entry"`
}

func runConfigTokenCreate(args []string) int {
	var name, scopesArg, format string

	fs := flag.NewFlagSet("token create", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "Token name")
	fs.StringVar(&scopesArg, "scopes", "", "Comma-separated scopes")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		return 1
	}

	scopes := parseScopes(scopesArg)
	if len(scopes) == 0 {
		picked, ok, err := pickScopes()
		if err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			return 1
		}
		if !ok {
			return 1
		}
		scopes = picked
	}
	if len(scopes) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no scopes provided")
		return 1
	}
	for _, s := range scopes {
		if !auth.KnownScope(s) {
			fmt.Fprintf(os.Stderr, "Error: unknown scope %q\n", s)
			return 1
		}
	}

	tokenKey, err := generateSecureToken(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		return 1
	}
	envVar := tokenEnvVarName(name)
	out := tokenCreateOutput{
		Name:     name,
		EnvVar:   envVar,
		TokenKey: tokenKey,
		Entry:    config.APIToken{Token: fmt.Sprintf("${%s}", envVar), Scopes: scopes},
	}

	if format == "json" {
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
		return 0
	}

	snippet, err := yaml.Marshal([]config.APIToken{out.Entry})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render token entry: %v\n", err)
		return 1
	}
	fmt.Printf("Token key: %s\n\n", tokenKey)
	fmt.Printf("Add under api.auth.tokens:\n%s\n", indent(string(snippet), "  "))
	fmt.Printf("Set environment variable (or add it to .env and re-run config lock):\n  export %s=\"%s\"\n", envVar, tokenKey)
	return 0
}

func pickScopes() ([]string, bool, error) {
	final, err := tea.NewProgram(*tokenmgr.New()).Run()
	if err != nil {
		return nil, false, err
	}
	picker, ok := final.(tokenmgr.Picker)
	if !ok || !picker.Confirmed() {
		return nil, false, nil
	}
	return picker.SelectedScopes(), true, nil
}

func parseScopes(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}

func tokenEnvVarName(name string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(name) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	result := strings.Trim(b.String(), "_")
	if result == "" {
		result = "DOCSCRIBE"
	}
	if !strings.HasSuffix(result, "_TOKEN") {
		result += "_TOKEN"
	}
	return result
}

func generateSecureToken(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
