package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/config"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/escalation"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/memory"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/metrics"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/workflow"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *workflow.Engine
	history  *memory.Store
	registry *prometheus.Registry
	closers  []io.Closer
}

// loadConfig resolves configuration and applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, usageError(err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}
	if flags.Changed("provider") {
		cfg.LLM.Provider = g.provider
	}
	if flags.Changed("max-retries") {
		cfg.Workflow.MaxRetryAttempts = g.maxRetries
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newApp wires the generator, recorders, metrics and engine from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	provider, err := llm.NewProvider(ctx, cfg.Provider())
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	gen := llm.NewClient(provider, cfg.ClientOptions(), logger)

	a := &app{cfg: cfg, logger: logger}

	recorder, err := a.recorders(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	m, err := metrics.New(a.registry)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.history = memory.NewStore(cfg.Server.HistoryLimit)
	a.engine = workflow.New(gen, nil, recorder,
		workflow.WithLogger(logger),
		workflow.WithMaxRetries(cfg.Workflow.MaxRetryAttempts),
		workflow.WithTemperatures(cfg.LLM.Temperatures),
		workflow.WithContextBudget(cfg.Workflow.ContextBudget()),
		workflow.WithMemory(a.history),
		workflow.WithMetrics(m),
		workflow.WithRecordTimeout(cfg.Escalation.RecordTimeout),
	)

	logger.Debug("agent ready",
		"provider", cfg.Provider().Name,
		"model", cfg.Provider().Model,
		"max_retry_attempts", cfg.Workflow.MaxRetryAttempts)
	return a, nil
}

// recorders builds the escalation sinks enabled in the configuration.
func (a *app) recorders(ctx context.Context) (escalation.Recorder, error) {
	esc := a.cfg.Escalation
	var multi escalation.Multi

	if esc.LogPath != "" {
		multi = append(multi, escalation.NewCSV(esc.LogPath))
	}
	if len(esc.Kafka.Brokers) > 0 {
		k := escalation.NewKafka(esc.Kafka.Brokers, esc.Kafka.Topic)
		a.closers = append(a.closers, k)
		multi = append(multi, k)
	}
	if esc.Postgres.DSN != "" {
		p, err := escalation.NewPostgres(ctx, esc.Postgres.DSN, esc.Postgres.Table)
		if err != nil {
			return nil, fmt.Errorf("escalation postgres: %w", err)
		}
		a.closers = append(a.closers, p)
		multi = append(multi, p)
	}

	if len(multi) == 0 {
		a.logger.Warn("no escalation sinks configured; escalations are only logged")
		return escalation.Nop{}, nil
	}
	return multi, nil
}

// Close releases escalation sinks.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads configuration, builds the app and runs fn, closing the app afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn("close escalation sinks", "error", cerr)
		}
	}()
	return fn(ctx, a)
}
