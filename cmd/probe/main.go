package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edgeopslabs/probe/pkg/common"
	"github.com/edgeopslabs/probe/pkg/config"
	"github.com/edgeopslabs/probe/pkg/discovery"
	"github.com/edgeopslabs/probe/pkg/inventory"
	"github.com/edgeopslabs/probe/pkg/policy"
	"github.com/edgeopslabs/probe/pkg/providers"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "install" {
		return runInstall(args[1:], stderr)
	}

	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "probe.yaml", "path to probe configuration file")
	providersDir := fs.String("providers-dir", "", "directory of provider definitions (overrides config)")
	timeout := fs.Duration("timeout", 0, "default discovery deadline per provider (overrides config)")
	concurrency := fs.Int("concurrency", 0, "max providers discovered at once (overrides config)")
	safeMode := fs.Bool("safe-mode", false, "mark mutating tools as denied in the report")
	noBanner := fs.Bool("no-banner", false, "do not print the banner")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !*noBanner {
		common.PrintBanner(stderr)
	}

	cfg, err := config.LoadConfig(*configPath)
	if *providersDir != "" {
		cfg.Discovery.ProvidersDir = *providersDir
	}
	if *timeout > 0 {
		cfg.Discovery.Timeout = *timeout
	}
	if *concurrency > 0 {
		cfg.Discovery.Concurrency = *concurrency
	}
	if *safeMode {
		cfg.Policy.SafeMode = true
	}
	logger := configureLogging(cfg, stderr)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("config file not found, using defaults", "path", *configPath)
		} else {
			logger.Warn("failed to load config, using defaults", "path", *configPath, "error", err)
		}
	}

	command, names := "discover", fs.Args()
	if len(names) > 0 && (names[0] == "discover" || names[0] == "list") {
		command, names = names[0], names[1:]
	}

	defs, err := loadDefinitions(cfg)
	if err != nil {
		logger.Error("failed to load provider definitions", "error", err)
		return 1
	}
	selected, err := providers.Select(defs, names)
	if err != nil {
		logger.Error("failed to select providers", "error", err)
		return 2
	}

	if command == "list" {
		return writeJSON(stdout, listDefinitions(selected, cfg.Discovery.Timeout), logger)
	}
	if len(selected) == 0 {
		logger.Warn("no providers configured", "providers_dir", cfg.Discovery.ProvidersDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := discovery.NewClient(
		discovery.WithClientInfo(cfg.Client.Name, cfg.Client.Version),
		discovery.WithProtocolVersion(cfg.Client.ProtocolVersion),
		discovery.WithLogger(logger),
	)
	report := inventory.Report{
		Client:    cfg.Client.Name,
		Version:   cfg.Client.Version,
		Transport: "stdio",
		Providers: inventory.Run(ctx, client, selected, inventory.Options{
			Timeout:     cfg.Discovery.Timeout,
			Concurrency: cfg.Discovery.Concurrency,
			Policy:      policy.New(cfg.Policy),
			Logger:      logger,
		}),
	}
	if code := writeJSON(stdout, report, logger); code != 0 {
		return code
	}
	if failed := report.Failed(); failed > 0 {
		logger.Warn("discovery failed for some providers", "failed", failed, "total", len(report.Providers))
		return 1
	}
	return 0
}

func runInstall(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "probe.yaml", "path to probe configuration file")
	providersDir := fs.String("providers-dir", "", "providers directory (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	remaining := fs.Args()
	if len(remaining) == 0 {
		fmt.Fprintln(stderr, "Usage: probe install [--providers-dir providers] <path-or-url>")
		return 2
	}

	cfg, _ := config.LoadConfig(*configPath)
	dir := cfg.Discovery.ProvidersDir
	if *providersDir != "" {
		dir = *providersDir
	}

	installedPath, err := providers.Install(remaining[0], dir)
	if err != nil {
		fmt.Fprintf(stderr, "Install failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "Installed provider definition at %s\n", installedPath)
	return 0
}

func configureLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadDefinitions(cfg *config.Config) ([]providers.Definition, error) {
	defs := providers.FromConfig(cfg)
	fromDir, err := providers.LoadDir(cfg.Discovery.ProvidersDir)
	if err != nil {
		return nil, err
	}
	defs = append(defs, fromDir...)
	if err := providers.Validate(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

type definitionSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	Timeout     string   `json:"timeout"`
	Source      string   `json:"source"`
	Disabled    bool     `json:"disabled,omitempty"`
}

func listDefinitions(defs []providers.Definition, defaultTimeout time.Duration) []definitionSummary {
	summaries := make([]definitionSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, definitionSummary{
			Name:        def.Name,
			Description: def.Description,
			Command:     def.Command,
			Args:        def.Args,
			Timeout:     def.Invocation(defaultTimeout).Deadline.String(),
			Source:      def.Source,
			Disabled:    def.Disabled,
		})
	}
	return summaries
}

func writeJSON(w io.Writer, v any, logger *slog.Logger) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("failed to write report", "error", err)
		return 1
	}
	return 0
}
