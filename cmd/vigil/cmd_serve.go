package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/dispatch"
	"github.com/veldt-labs/vigil/internal/daemon"
	"github.com/veldt-labs/vigil/orchestrator"
	"github.com/veldt-labs/vigil/policy"
	"github.com/veldt-labs/vigil/server"
	"github.com/veldt-labs/vigil/storage"
	"github.com/veldt-labs/vigil/telemetry"
	"github.com/veldt-labs/vigil/wal"
)

func openStore(dir string) (*storage.AuditStore, error) {
	store, err := storage.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return store, nil
}

var (
	serveConfigPath   string
	serveAddr         string
	serveAsync        bool
	serveInterval     time.Duration
	serveSubjects     []string
	serveRuleFiles    []string
	serveOTELEndpoint string
	serveInsecure     bool
)

// serveCmd runs the HTTP API and, when subjects are configured, the
// continuous assessment daemon
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assessment API server",
	Long: `Run Vigil's HTTP API for submitting assessments and reading
reports, baselines, health, and metrics.

When --subject is given, a background loop also assesses those subjects
at the configured interval.`,
	Example: `  vigil serve --config vigil.yaml
  vigil serve --config vigil.yaml --async
  vigil serve --config vigil.yaml --subject agent-7 --interval 1m
  vigil serve --config vigil.yaml --rule rules/crisis.rego`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "vigil.yaml", "Configuration file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveAsync, "async", false, "Accept submissions asynchronously (202 + cycle ID)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 5*time.Minute, "Scheduled assessment interval")
	serveCmd.Flags().StringSliceVar(&serveSubjects, "subject", nil, "Subjects to assess continuously")
	serveCmd.Flags().StringSliceVar(&serveRuleFiles, "rule", nil, "Rego override rule files")
	serveCmd.Flags().StringVar(&serveOTELEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint for traces/metrics")
	serveCmd.Flags().BoolVar(&serveInsecure, "otel-insecure", false, "Use insecure OTLP transport")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	fmt.Printf("🚀 Starting Vigil...\n")
	fmt.Printf("   Config: %s\n", serveConfigPath)
	fmt.Printf("   Storage: %s\n", cfg.StoragePath)
	fmt.Printf("   WAL: %s\n", cfg.WALPath)
	if len(serveSubjects) > 0 {
		fmt.Printf("   Subjects: %v every %s\n", serveSubjects, serveInterval)
	}
	fmt.Println()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveAsync {
		cfg.Server.Async = true
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "vigil",
		ServiceVersion: version,
		OTELEndpoint:   serveOTELEndpoint,
		Insecure:       serveInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	orch, journal, cleanup, err := buildOrchestrator(ctx, cfg, serveRuleFiles)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = journal.Close() }()

	srv := server.New(orch, cfg.Profiles, cfg.Server.Async)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	// HTTP API
	g.Add(func() error {
		logger := telemetry.NewLogger("serve")
		logger.Info().Str("addr", cfg.Server.Addr).Msg("API server listening")
		return httpServer.ListenAndServe()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})

	// Scheduled assessment loop
	if len(serveSubjects) > 0 {
		profile := resolveServeProfile(cfg)
		d := daemon.New(orch, daemon.Config{
			Interval: serveInterval,
			Subjects: serveSubjects,
			Profile:  profile,
		})
		daemonCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(daemonCtx)
		}, func(error) {
			cancel()
		})
	}

	// Signal handling
	g.Add(run.SignalHandler(ctx, os.Interrupt))

	err = g.Run()
	if _, ok := err.(run.SignalError); ok || err == http.ErrServerClosed {
		return nil
	}
	return err
}

// buildOrchestrator wires the store, journal, dispatchers, and override
// rules into an orchestrator. Shared by serve and assess.
func buildOrchestrator(ctx context.Context, cfg *config.Config, ruleFiles []string) (*orchestrator.Orchestrator, *wal.WAL, func(), error) {
	if err := os.MkdirAll(cfg.StoragePath, 0750); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	store, err := openStore(cfg.StoragePath)
	if err != nil {
		return nil, nil, nil, err
	}

	journal, err := wal.Open(cfg.WALPath, wal.DefaultConfig())
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to open WAL: %w", err)
	}

	orch := orchestrator.New(store).WithJournal(journal)

	if len(ruleFiles) > 0 {
		overrides := policy.NewOverrideEngine()
		for _, path := range ruleFiles {
			code, err := os.ReadFile(path) // #nosec G304 -- rule path is operator input
			if err != nil {
				_ = store.Close()
				_ = journal.Close()
				return nil, nil, nil, fmt.Errorf("failed to read rule %s: %w", path, err)
			}
			name := filepath.Base(path)
			if err := overrides.LoadRule(ctx, name, string(code)); err != nil {
				_ = store.Close()
				_ = journal.Close()
				return nil, nil, nil, err
			}
		}
		orch.WithOverrides(overrides)
	}

	dispatchers := []dispatch.Dispatcher{dispatch.NewLogDispatcher()}
	if cfg.Dispatch.SQSQueueURL != "" {
		sqsDispatcher, err := dispatch.NewSQSDispatcher(ctx, cfg.Dispatch.SQSQueueURL, cfg.Dispatch.Region)
		if err != nil {
			_ = store.Close()
			_ = journal.Close()
			return nil, nil, nil, err
		}
		dispatchers = append(dispatchers, sqsDispatcher)
	}
	orch.WithDispatchers(dispatchers...)

	cleanup := func() { _ = store.Close() }
	return orch, journal, cleanup, nil
}

func resolveServeProfile(cfg *config.Config) config.Profile {
	if p, ok := cfg.Profiles["default"]; ok {
		return p
	}
	for _, p := range cfg.Profiles {
		return p
	}
	return config.DefaultProfile("default")
}
