// Command synth turns a published scholarship report into a representative,
// row-level dataset.
//
//	synth run -source memoria-2020.pdf -family memoria-2020
//	synth schedule -source https://example.org/memoria.pdf -cron "0 3 * * *"
//	synth families
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/family"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/config"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/cron"
)

const usage = `usage: synth <command> [flags]

commands:
  run        synthesize one document and store the artifacts
  schedule   re-run the batch on a cron schedule
  families   list the built-in document families
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "synth:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		if err := parseFlags(cmd, rest, cfg); err != nil {
			return err
		}
		return runOnce(ctx, cfg)
	case "schedule":
		if err := parseFlags(cmd, rest, cfg); err != nil {
			return err
		}
		return runSchedule(ctx, cfg)
	case "families":
		for _, name := range family.Names() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parseFlags overrides environment configuration with command-line flags.
func parseFlags(cmd string, args []string, cfg *config.Config) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&cfg.Run.Source, "source", cfg.Run.Source, "document URL or path")
	fs.StringVar(&cfg.Run.Family, "family", cfg.Run.Family, "built-in document family")
	fs.StringVar(&cfg.Run.FamilyFile, "family-file", cfg.Run.FamilyFile, "family YAML file, overrides -family")
	fs.StringVar(&cfg.Run.Category, "category", cfg.Run.Category, "read the source as a canonical CSV of this category")
	fs.IntVar(&cfg.Run.Year, "year", cfg.Run.Year, "year stamped on every row (0 = family year)")
	fs.Int64Var(&cfg.Run.Seed, "seed", cfg.Run.Seed, "sampler seed (0 = family seed)")
	fs.IntVar(&cfg.Run.Workers, "workers", cfg.Run.Workers, "normalization workers (0 = CPU count)")
	fs.Float64Var(&cfg.Run.Tolerance, "tolerance", cfg.Run.Tolerance, "relative reconciliation tolerance")
	formats := fs.String("formats", strings.Join(cfg.Run.OutputFormats, ","), "output formats: csv, xlsx")
	fs.StringVar(&cfg.Storage.LocalPath, "out", cfg.Storage.LocalPath, "local artifact directory")
	fs.StringVar(&cfg.Observability.LogLevel, "log-level", cfg.Observability.LogLevel, "debug, info, warn or error")
	if cmd == "schedule" {
		fs.StringVar(&cfg.Schedule.Cron, "cron", cfg.Schedule.Cron, "cron schedule")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Run.OutputFormats = cfg.Run.OutputFormats[:0]
	for _, f := range strings.Split(*formats, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			cfg.Run.OutputFormats = append(cfg.Run.OutputFormats, f)
		}
	}
	if cfg.Run.Source == "" {
		return errors.New("a source is required (-source or SOURCE)")
	}
	return cfg.Validate()
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Observability.LogLevel)

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	_, err = deps.RunBatch(ctx)
	return err
}

func runSchedule(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Observability.LogLevel)

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	scheduler, err := cron.NewScheduler(cfg.Schedule.Cron, func(ctx context.Context) error {
		_, err := deps.RunBatch(ctx)
		return err
	}, cfg.Schedule.Timeout, logger)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	<-scheduler.Stop().Done()
	total, failed := scheduler.Runs()
	logger.Info("scheduler stopped",
		slog.Int64("runs", total),
		slog.Int64("failed", failed),
	)
	return nil
}

// newLogger creates a JSON logger with the specified level
func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
