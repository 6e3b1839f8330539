package cmd

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"optiflow/internal/client"
	"optiflow/internal/config"
)

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

type commonFlags struct {
	cfgPath string
	baseURL string
}

func newFlagSet(name, usage string, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
	}
	fs.StringVar(&common.cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&common.baseURL, "base-url", "", "backend base URL")
	return fs
}

// parseFlags parses args. A help request yields done=true with a nil error.
func parseFlags(fs *flag.FlagSet, args []string) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, fmt.Errorf("parse %s flags: %w", fs.Name(), err)
	}
	return false, nil
}

// loadConfig loads configuration, applies the --base-url override and
// installs the configured slog logger as the default.
func loadConfig(common commonFlags) (config.Config, error) {
	cfg, err := config.Load(common.cfgPath)
	if err != nil {
		return config.Config{}, err
	}

	if override := strings.TrimRight(strings.TrimSpace(common.baseURL), "/"); override != "" {
		if err := config.ValidateBaseURL(override); err != nil {
			return config.Config{}, fmt.Errorf("--base-url: %w", err)
		}
		cfg.API.BaseURL = override
	}

	slog.SetDefault(cfg.NewLogger(os.Stderr))
	return cfg, nil
}

func newClient(cfg config.Config) *client.Client {
	return client.New(client.Options{
		BaseURL: cfg.API.BaseURL,
		Headers: cfg.API.Headers,
		Timeout: cfg.API.Timeout,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
