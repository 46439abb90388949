package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/docscribe/internal/config"
	"github.com/mattjoyce/docscribe/internal/inspect"
	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/storage"
)

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "inspect":
		if hasHelpFlag(args[1:]) {
			fmt.Println("Usage: docscribe job inspect <job_id> [--config PATH] [--json]")
			fmt.Println("Show a job's payload, result and attempt history from the state database.")
			return 0
		}
		return runJobInspect(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", args[0])
		return 1
	}
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: docscribe job <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func runJobInspect(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	// The job id may come before or after the flags.
	var jobID string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && jobID == "" && !isFlagValue(remainingArgs) {
			jobID = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}
	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jobID == "" {
		fmt.Fprintln(os.Stderr, "Usage: docscribe job inspect <job_id> [--config PATH] [--json]")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	var report string
	if jsonOut {
		report, err = inspect.BuildJSONReport(ctx, db, jobID)
		report += "\n"
	} else {
		report, err = inspect.BuildReport(ctx, db, jobID)
	}
	if errors.Is(err, queue.ErrJobNotFound) {
		fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	fmt.Print(report)
	return 0
}

// isFlagValue reports whether the next argument belongs to the last flag.
func isFlagValue(seen []string) bool {
	if len(seen) == 0 {
		return false
	}
	last := seen[len(seen)-1]
	return last == "--config" || last == "-config"
}
