package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/filing-validator/internal/config"
	"github.com/jonathan/filing-validator/internal/db"
	"github.com/jonathan/filing-validator/internal/extraction"
	"github.com/jonathan/filing-validator/internal/llm"
	"github.com/jonathan/filing-validator/internal/logging"
	"github.com/jonathan/filing-validator/internal/pipeline"
	"github.com/jonathan/filing-validator/internal/prompts"
	"github.com/jonathan/filing-validator/internal/storage"
)

// app holds the process-wide handles shared by the commands
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Store
	database *db.DB
	llm      llm.Client
}

// loadApp reads configuration and opens storage and, when configured, the database
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, storage.Options{
		Backend:     cfg.StorageBackend,
		Root:        cfg.StorageRoot,
		AccountName: cfg.AzureStorageAccount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if cfg.DatabaseURL != "" {
		a.database, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// pipeline builds the validation pipeline, connecting to the model
func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if a.cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY (or api_key in the config file) is required")
	}

	llmCfg := llm.DefaultConfig()
	if a.cfg.Model != "" {
		llmCfg = llmCfg.WithModel(llm.TierStandard, a.cfg.Model)
	}
	client, err := llm.NewClient(ctx, llmCfg, a.cfg.APIKey)
	if err != nil {
		return nil, err
	}
	a.llm = client
	a.logger.Debug("cli: model client ready", zap.String("model", client.GetModel(llm.TierStandard)))

	promptStore, err := a.promptStore()
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Store:   a.store,
		LLM:     client,
		Prompts: promptStore,
		Logger:  a.logger.Named("pipeline"),
	}
	if !a.cfg.DisablePageImages {
		deps.Renderer = extraction.NewChromeRenderer()
	}
	if a.database != nil {
		deps.Recorder = a.database
	}
	return pipeline.New(deps, optionsFrom(a.cfg)), nil
}

// promptStore selects the configured template source
func (a *app) promptStore() (prompts.Store, error) {
	switch a.cfg.PromptSource {
	case config.PromptSourceBlob:
		return prompts.NewBlobStore(a.store, a.cfg.PromptFile), nil
	case config.PromptSourceDB:
		if a.database == nil {
			return nil, fmt.Errorf("prompt source %q requires DATABASE_URL", config.PromptSourceDB)
		}
		return prompts.NewDBStore(a.database), nil
	default:
		return prompts.EmbeddedStore{}, nil
	}
}

func optionsFrom(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		MaxWorkers:          cfg.MaxWorkers,
		BatchSize:           cfg.BatchSize,
		TaxonomyContainer:   cfg.TaxonomyContainer,
		ResultsContainer:    cfg.ResultsContainer,
		MatchTaxonomy:       !cfg.DisableTaxonomyMatch,
		AttachImages:        !cfg.DisablePageImages,
		ValidatePeriods:     !cfg.DisablePeriodValidation,
		ValidateMatchedRows: !cfg.SkipMatchedRowValidation,
	}
}

// Close releases the model client and database pool
func (a *app) Close() {
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			a.logger.Warn("cli: failed to close model client", zap.Error(err))
		}
	}
	if a.database != nil {
		a.database.Close()
	}
	_ = a.logger.Sync()
}
