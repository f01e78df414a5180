package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
	"github.com/kmufti7/intelliflow-supportflow/internal/audit"
	"github.com/kmufti7/intelliflow-supportflow/internal/config"
	"github.com/kmufti7/intelliflow-supportflow/internal/costs"
	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	"github.com/kmufti7/intelliflow-supportflow/internal/policy"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

// pipeline bundles the wired services a command needs. Close releases the
// store.
type pipeline struct {
	cfg          *config.Config
	db           *store.DB
	orchestrator *agent.Orchestrator
	costs        *costs.Tracker
	audit        *audit.Service
}

func (p *pipeline) Close() error {
	return p.db.Close()
}

// buildPipeline loads config and wires the full agent stack. Commands that
// only read the store can pass needAPIKey=false to work without provider
// credentials.
func buildPipeline(ctx context.Context, needAPIKey bool) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if cfg.UsingDerivedSigningKey() {
		log.Warn().Msg("using derived audit signing key; set SUPPORTFLOW_SIGNING_KEY for production")
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if cfg.PricingFile != "" {
		if err := db.LoadPricingFile(ctx, cfg.PricingFile); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("loading pricing overrides: %w", err)
		}
	}

	var client *llm.Client
	if needAPIKey {
		apiKey, err := cfg.APIKey()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		var provider llm.Provider
		switch cfg.Provider {
		case "openai":
			provider = llm.NewOpenAIProvider(apiKey)
		default:
			provider = llm.NewAnthropicProvider(apiKey)
		}
		client = llm.NewClient(provider,
			llm.WithMaxAttempts(cfg.RetryMaxAttempts),
			llm.WithDefaultModel(cfg.Model),
		)
	}

	signer, err := audit.NewSigner(cfg.SigningKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating audit signer: %w", err)
	}
	auditSvc := audit.NewService(db, signer, log.Logger)
	costTracker := costs.NewTracker(db, log.Logger)

	deps := &agent.Deps{
		DB:       db,
		LLM:      client,
		Costs:    costTracker,
		Audit:    auditSvc,
		Policies: policy.NewStore(),
		Log:      log.Logger,
	}

	return &pipeline{
		cfg:          cfg,
		db:           db,
		orchestrator: agent.NewOrchestrator(deps),
		costs:        costTracker,
		audit:        auditSvc,
	}, nil
}
