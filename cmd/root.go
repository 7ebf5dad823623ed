package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"questionpaper-ingest/internal/config"
	"questionpaper-ingest/internal/metrics"
	"questionpaper-ingest/internal/modules/ingestor"
	"questionpaper-ingest/internal/modules/pipeline"
	"questionpaper-ingest/internal/modules/reporter"
	"questionpaper-ingest/internal/modules/urlsource"
	"questionpaper-ingest/internal/store"
)

// ErrItemsFailed is returned with --fail-on-error when at least one URL failed.
var ErrItemsFailed = errors.New("some urls failed")

// openStore is swapped out in tests.
var openStore = func(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.NewFirestoreStore(ctx, cfg)
}

// NewRootCmd builds the pdfingest command. level is raised or lowered from
// the --log-level flag once configuration is loaded.
func NewRootCmd(logger *zap.Logger, level zap.AtomicLevel) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pdfingest [url...]",
		Short: "Register hosted question paper PDFs in Firestore",
		Long: `Adds a {name, url} record to the question paper collection for every PDF URL
that is not already present. URLs come from the arguments, from --urls, or
from the built-in list, in that order of preference.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			level.SetLevel(cfg.LogLevel)
			return run(cmd.Context(), cmd, cfg, args, logger)
		},
	}
	config.RegisterFlags(rootCmd.Flags())
	return rootCmd
}

// Execute runs the root command with ctx and returns its error.
func Execute(ctx context.Context, logger *zap.Logger, level zap.AtomicLevel) error {
	return NewRootCmd(logger, level).ExecuteContext(ctx)
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string, logger *zap.Logger) error {
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	urls, err := urlsource.Select(args, cfg.URLFile).URLs(ctx)
	if err != nil {
		return err
	}

	rep := reporter.New(cmd.OutOrStdout())
	if len(urls) == 0 {
		logger.Info("no urls to ingest")
		rep.Finish()
		return nil
	}

	logger.Info("starting ingestion",
		zap.String("collection", cfg.Collection),
		zap.String("project", cfg.ProjectID),
		zap.Int("urls", len(urls)))

	s, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("closing store failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	p := pipeline.New(logger)
	p.AddStage(urlsource.NewList(urls))
	p.AddStage(ingestor.New(s, logger, ingestor.Options{OpTimeout: cfg.Timeout, Metrics: m}))
	p.AddStage(rep)

	input := make(chan interface{})
	close(input)
	runErr := p.Run(ctx, input)

	rep.Finish()
	m.MarkCompleted(time.Now())
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("writing metrics failed", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}

	summary := rep.Summary()
	logger.Info("ingestion completed",
		zap.Int("added", summary.Added),
		zap.Int("existing", summary.Existed),
		zap.Int("failed", summary.Failed))

	if cfg.FailOnError && summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrItemsFailed, summary.Failed, summary.Total)
	}
	return nil
}
