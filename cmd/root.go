package cmd

import (
	"context"
	"fmt"
	"strings"
)

const usage = `optiflow talks to the optimization backend API.

Usage:
  optiflow <command> [flags]

Commands:
  ping        Check that the backend is reachable
  complete    Request a text completion
  optimize    Submit an optimization job
  job         Show the status of a job
  wait        Poll a job until it finishes
  stub        Run a local stub backend

Common flags:
  --config   string   Path to YAML configuration file
  --base-url string   Backend base URL (overrides config and environment)

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "ping":
		return ping(ctx, args[1:])
	case "complete":
		return complete(ctx, args[1:])
	case "optimize":
		return optimize(ctx, args[1:])
	case "job":
		return jobStatus(ctx, args[1:])
	case "wait":
		return wait(ctx, args[1:])
	case "stub":
		return stub(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
