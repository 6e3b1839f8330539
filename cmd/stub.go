package cmd

import (
	"context"

	"optiflow/internal/jobstore"
	"optiflow/internal/server"
)

const stubUsage = `Usage:
  optiflow stub [--config <path>] [--port <port>] [--job-delay <duration>]

Flags:
  --config    string     Path to YAML configuration file
  --port      int        Override stub.port from configuration
  --job-delay duration   Override stub.job_delay from configuration`

func stub(ctx context.Context, args []string) error {
	var common commonFlags
	fs := newFlagSet("stub", stubUsage, &common)
	overridePort := fs.Int("port", 0, "override stub port")
	jobDelay := fs.Duration("job-delay", 0, "override simulated job duration")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}

	if *overridePort != 0 {
		cfg.Stub.Port = *overridePort
	}
	if *jobDelay > 0 {
		cfg.Stub.JobDelay = *jobDelay
	}

	srv, err := server.New(cfg, jobstore.New())
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
