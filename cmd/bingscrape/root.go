package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/FranksOps/bingscrape/internal/metrics"
	"github.com/FranksOps/bingscrape/internal/pipeline"
	"github.com/FranksOps/bingscrape/internal/report"
	"github.com/FranksOps/bingscrape/internal/serp/bing"
	"github.com/FranksOps/bingscrape/internal/storage"
	"github.com/FranksOps/bingscrape/internal/storage/csvbackend"
	"github.com/FranksOps/bingscrape/internal/storage/jsonbackend"
	"github.com/FranksOps/bingscrape/internal/storage/postgres"
	"github.com/FranksOps/bingscrape/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "bingscrape [flags] <query>...",
		Short: "Scrape Bing web search results",
		Long: `Queries Bing for the given search terms and extracts the title, url and
caption of every result. With --output the results are written as a JSON
array (or CSV); otherwise the result urls are printed as one JSON line.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, args)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
		},
	}

	registerFlags(cmd.Flags())
	return cmd
}

// bindConfig layers flags over BINGSCRAPE_* environment variables over the
// optional config file.
func bindConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg config, stdout, stderr io.Writer, logger *slog.Logger) error {
	provider, err := bing.NewFromConfig(cfg.scraperConfig(), logger)
	if err != nil {
		return err
	}

	output, err := openOutput(cfg)
	if err != nil {
		return err
	}
	if output != nil {
		defer output.Close()
	}

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	p := &pipeline.Pipeline{
		Provider:   provider,
		Output:     output,
		OutputPath: cfg.Output,
		Stdout:     stdout,
		Logger:     logger,
	}
	// Assigning a nil storage.Archive would leave a non-nil interface.
	if archive != nil {
		p.Archive = archive
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			return metrics.NewServer(cfg.MetricsAddr).Run(serveCtx)
		})
	}

	var result *storage.Run
	g.Go(func() error {
		defer stopServing()
		var err error
		result, err = p.Run(gctx, cfg.request())
		return err
	})

	runErr := g.Wait()

	if result != nil && !result.Found && runErr == nil {
		logger.Info("there are no results", "query", cfg.Query)
	}
	if result != nil && cfg.Report != report.FormatNone {
		if err := report.Write(stderr, cfg.Report, report.GenerateSummary(result)); err != nil {
			logger.Warn("failed to write report", "err", err)
		}
	}
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", runErr)
	}
	return runErr
}

func openOutput(cfg config) (storage.Backend, error) {
	switch {
	case cfg.Output == "":
		return nil, nil
	case cfg.Format == formatCSV:
		return csvbackend.New(cfg.Output)
	default:
		return jsonbackend.New(cfg.Output)
	}
}

func openArchive(ctx context.Context, cfg config) (storage.Archive, error) {
	switch cfg.ArchiveDriver {
	case driverSQLite:
		return sqlite.New(cfg.ArchiveDSN)
	case driverPostgres:
		return postgres.New(ctx, cfg.ArchiveDSN)
	default:
		return nil, nil
	}
}
