package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"optiflow/internal/jobwatch"
	"optiflow/internal/models"
)

const pingUsage = `Usage:
  optiflow ping [--config <path>] [--base-url <url>]`

const completeUsage = `Usage:
  optiflow complete --prompt <text> [--model <name>] [--max-tokens <n>]

Flags:
  --prompt     string   Prompt text (required)
  --model      string   Model name; backend default when omitted
  --max-tokens int      Token limit; backend default when omitted`

const optimizeUsage = `Usage:
  optiflow optimize --type <problem> [--constraints <json>] [--objectives <json>] [--timeout <seconds>] [--wait]

Flags:
  --type        string   Problem type, e.g. linear or vehicle_routing (required)
  --constraints string   Constraints payload, passed through as-is (default "{}")
  --objectives  string   Objectives payload, passed through as-is (default "{}")
  --timeout     int      Solver timeout in seconds; backend default when omitted
  --wait                 Poll until the job finishes and print the final status`

const jobUsage = `Usage:
  optiflow job [--config <path>] [--base-url <url>] <job-id>`

const waitUsage = `Usage:
  optiflow wait [--interval <duration>] [--timeout <duration>] <job-id>

Flags:
  --interval duration   Delay between polls (default from config, 1s)
  --timeout  duration   Give up after this long (default from config, 5m)`

func ping(ctx context.Context, args []string) error {
	var common commonFlags
	fs := newFlagSet("ping", pingUsage, &common)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	res, err := newClient(cfg).Ping(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func complete(ctx context.Context, args []string) error {
	var (
		common    commonFlags
		req       models.CompletionRequest
		maxTokens int
	)
	fs := newFlagSet("complete", completeUsage, &common)
	fs.StringVar(&req.Prompt, "prompt", "", "prompt text")
	fs.StringVar(&req.Model, "model", "", "model name")
	fs.IntVar(&maxTokens, "max-tokens", 0, "token limit")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New("complete command requires --prompt <text>")
	}
	if isSet(fs, "max-tokens") {
		req.MaxTokens = models.IntPtr(maxTokens)
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	res, err := newClient(cfg).GetCompletion(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func optimize(ctx context.Context, args []string) error {
	var (
		common   commonFlags
		req      models.OptimizeRequest
		timeout  int
		waitDone bool
	)
	fs := newFlagSet("optimize", optimizeUsage, &common)
	fs.StringVar(&req.ProblemType, "type", "", "problem type")
	fs.StringVar(&req.ConstraintsJSON, "constraints", "{}", "constraints payload")
	fs.StringVar(&req.ObjectivesJSON, "objectives", "{}", "objectives payload")
	fs.IntVar(&timeout, "timeout", 0, "solver timeout in seconds")
	fs.BoolVar(&waitDone, "wait", false, "poll until the job finishes")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	if strings.TrimSpace(req.ProblemType) == "" {
		return errors.New("optimize command requires --type <problem>")
	}
	if isSet(fs, "timeout") {
		req.TimeoutSeconds = models.IntPtr(timeout)
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	c := newClient(cfg)
	res, err := c.Optimize(ctx, req)
	if err != nil {
		return err
	}
	if !waitDone {
		return printJSON(res)
	}

	slog.Info("job submitted", "job_id", res.JobID, "status", res.Status)
	return waitAndPrint(ctx, c, res.JobID, jobwatch.Options{
		Interval: cfg.Poll.Interval,
		Timeout:  cfg.Poll.Timeout,
	})
}

func jobStatus(ctx context.Context, args []string) error {
	var common commonFlags
	fs := newFlagSet("job", jobUsage, &common)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	jobID, err := jobIDArg(fs, "job")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	res, err := newClient(cfg).GetJobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func wait(ctx context.Context, args []string) error {
	var common commonFlags
	fs := newFlagSet("wait", waitUsage, &common)
	interval := fs.Duration("interval", 0, "delay between polls")
	timeout := fs.Duration("timeout", 0, "give up after this long")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	jobID, err := jobIDArg(fs, "wait")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	opts := jobwatch.Options{Interval: cfg.Poll.Interval, Timeout: cfg.Poll.Timeout}
	if *interval > 0 {
		opts.Interval = *interval
	}
	if *timeout > 0 {
		opts.Timeout = *timeout
	}

	return waitAndPrint(ctx, newClient(cfg), jobID, opts)
}

func waitAndPrint(ctx context.Context, fetcher jobwatch.StatusFetcher, jobID string, opts jobwatch.Options) error {
	opts.OnUpdate = func(s models.JobStatus) {
		slog.Info("job status", "job_id", s.JobID, "status", s.Status)
	}

	final, err := jobwatch.Wait(ctx, fetcher, jobID, opts)
	if final != nil && jobwatch.IsTerminal(final.Status) {
		if perr := printJSON(final); perr != nil {
			return perr
		}
	}
	return err
}

func jobIDArg(fs *flag.FlagSet, command string) (string, error) {
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", fmt.Errorf("%s command requires exactly one <job-id> argument", command)
	}
	return fs.Arg(0), nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
