package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/categories"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/llm/factory"
	"github.com/joseph-ayodele/bookkeeper/internal/pipeline"
	"github.com/joseph-ayodele/bookkeeper/internal/repository"
)

// app is what every subcommand shares once flags and environment are loaded.
type app struct {
	cfg    *common.Config
	logger *slog.Logger

	provider     string
	jurisdiction string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bookkeeper",
		Short: "Turn receipts and invoices dropped in a folder into bookkeeping records.",
		Long: `bookkeeper watches an inbox folder for PDF and image documents, extracts
transaction fields with a configurable LLM provider, validates them, stores the
records, and files each document into a processed or needs-review archive.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.provider, "provider", "", "LLM provider: openai, anthropic, xai, google (overrides LLM_PROVIDER)")
	root.PersistentFlags().StringVar(&a.jurisdiction, "jurisdiction", "", "category jurisdiction (overrides JURISDICTION)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newWatchCmd(a),
		newProcessCmd(a),
		newExportCmd(a),
		newReportCmd(a),
		newReviewCmd(a),
		newCategoriesCmd(a),
		newDBHealthCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg := common.LoadConfig()
	if a.provider != "" {
		p, err := constants.ParseProvider(a.provider)
		if err != nil {
			return err
		}
		cfg.LLM.Provider = p
	}
	if a.jurisdiction != "" {
		cfg.Categories.Jurisdiction = a.jurisdiction
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.logger = common.NewLogger(os.Stderr, cfg.Log)
	slog.SetDefault(a.logger)

	if err := cfg.Validate(); err != nil {
		a.logger.Error("invalid configuration", "error", err)
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) openStore(ctx context.Context) (*repository.DB, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:              a.cfg.Database.DSN,
		MaxConns:         a.cfg.Database.MaxConns,
		MinConns:         a.cfg.Database.MinConns,
		MaxConnLifetime:  a.cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  a.cfg.Database.MaxConnIdleTime,
		DialTimeout:      a.cfg.Database.DialTimeout,
		StatementTimeout: a.cfg.Database.StatementTimeout,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) catalog() (*categories.Catalog, error) {
	return categories.NewCatalog(a.cfg.Categories.File, a.logger)
}

// processor wires provider, categories and normalizer. The provider factory fails
// here if the API key is missing, before anything touches the network.
func (a *app) processor(ctx context.Context) (*pipeline.Processor, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	if _, err := cat.Jurisdiction(a.cfg.Categories.Jurisdiction); err != nil {
		return nil, err
	}
	provider, err := factory.New(ctx, a.cfg.LLM.Provider, common.EnvKeySource{}, a.cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessor(a.logger, provider, cat, a.cfg.Categories.Jurisdiction), nil
}

// parseWindow reads optional YYYY-MM-DD bounds.
func parseWindow(from, to string) (*time.Time, *time.Time, error) {
	parse := func(s, name string) (*time.Time, error) {
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
		}
		return &t, nil
	}
	f, err := parse(from, "from")
	if err != nil {
		return nil, nil, err
	}
	t, err := parse(to, "to")
	if err != nil {
		return nil, nil, err
	}
	if f != nil && t != nil && t.Before(*f) {
		return nil, nil, fmt.Errorf("--to is before --from")
	}
	return f, t, nil
}
