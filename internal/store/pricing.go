package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// ModelPricing is the per-1K-token rate card for one model. Seeded at
// startup and read-mostly afterwards.
type ModelPricing struct {
	ModelName            string    `json:"model_name" yaml:"model_name"`
	Provider             string    `json:"provider" yaml:"provider"`
	InputCostPer1K       float64   `json:"input_cost_per_1k" yaml:"input_cost_per_1k"`
	OutputCostPer1K      float64   `json:"output_cost_per_1k" yaml:"output_cost_per_1k"`
	CachedInputCostPer1K float64   `json:"cached_input_cost_per_1k" yaml:"cached_input_cost_per_1k"`
	UpdatedAt            time.Time `json:"updated_at" yaml:"-"`
}

// defaultPricing is the seed rate card, USD per 1K tokens.
var defaultPricing = []ModelPricing{
	{ModelName: "gpt-4o", Provider: "openai", InputCostPer1K: 0.0025, OutputCostPer1K: 0.01, CachedInputCostPer1K: 0.00125},
	{ModelName: "gpt-4o-mini", Provider: "openai", InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006, CachedInputCostPer1K: 0.000075},
	{ModelName: "gpt-4-turbo", Provider: "openai", InputCostPer1K: 0.01, OutputCostPer1K: 0.03, CachedInputCostPer1K: 0.005},
	{ModelName: "gpt-3.5-turbo", Provider: "openai", InputCostPer1K: 0.0005, OutputCostPer1K: 0.0015, CachedInputCostPer1K: 0.00025},
	{ModelName: "claude-3-opus-20240229", Provider: "anthropic", InputCostPer1K: 0.015, OutputCostPer1K: 0.075, CachedInputCostPer1K: 0.0075},
	{ModelName: "claude-3-sonnet-20240229", Provider: "anthropic", InputCostPer1K: 0.003, OutputCostPer1K: 0.015, CachedInputCostPer1K: 0.0015},
	{ModelName: "claude-3-haiku-20240307", Provider: "anthropic", InputCostPer1K: 0.00025, OutputCostPer1K: 0.00125, CachedInputCostPer1K: 0.000125},
	{ModelName: "claude-3-5-sonnet-20241022", Provider: "anthropic", InputCostPer1K: 0.003, OutputCostPer1K: 0.015, CachedInputCostPer1K: 0.0015},
}

func (s *DB) seedPricing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range defaultPricing {
		if err := s.upsertPricingLocked(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

// ModelPricingFor returns pricing for a model, or (nil, nil) when no row
// exists: callers record zero-cost usage for unknown models.
func (s *DB) ModelPricingFor(ctx context.Context, modelName string) (*ModelPricing, error) {
	ctx, span := tracer.Start(ctx, "store.model_pricing",
		trace.WithAttributes(attribute.String("model_name", modelName)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var p ModelPricing
	err := s.db.QueryRowContext(ctx, `
		SELECT model_name, provider, input_cost_per_1k, output_cost_per_1k,
		       cached_input_cost_per_1k, updated_at
		FROM model_pricing WHERE model_name = ?`, modelName).
		Scan(&p.ModelName, &p.Provider, &p.InputCostPer1K, &p.OutputCostPer1K,
			&p.CachedInputCostPer1K, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying model pricing: %w", err)
	}
	return &p, nil
}

// UpsertModelPricing inserts or replaces one pricing row.
func (s *DB) UpsertModelPricing(ctx context.Context, p *ModelPricing) error {
	ctx, span := tracer.Start(ctx, "store.upsert_model_pricing",
		trace.WithAttributes(attribute.String("model_name", p.ModelName)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPricingLocked(ctx, p)
}

func (s *DB) upsertPricingLocked(ctx context.Context, p *ModelPricing) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO model_pricing
		(model_name, provider, input_cost_per_1k, output_cost_per_1k,
		 cached_input_cost_per_1k, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ModelName, p.Provider, p.InputCostPer1K, p.OutputCostPer1K,
		p.CachedInputCostPer1K, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting pricing for %s: %w", p.ModelName, err)
	}
	return nil
}

// AllModelPricing returns every pricing row, ordered by provider then model.
func (s *DB) AllModelPricing(ctx context.Context) ([]*ModelPricing, error) {
	ctx, span := tracer.Start(ctx, "store.all_model_pricing")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT model_name, provider, input_cost_per_1k, output_cost_per_1k,
		       cached_input_cost_per_1k, updated_at
		FROM model_pricing ORDER BY provider, model_name`)
	if err != nil {
		return nil, fmt.Errorf("querying model pricing: %w", err)
	}
	defer rows.Close()

	var out []*ModelPricing
	for rows.Next() {
		var p ModelPricing
		err := rows.Scan(&p.ModelName, &p.Provider, &p.InputCostPer1K, &p.OutputCostPer1K,
			&p.CachedInputCostPer1K, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning pricing row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// LoadPricingFile applies pricing overrides from a YAML file containing a
// list of ModelPricing entries. Missing file is not an error when optional.
func (s *DB) LoadPricingFile(ctx context.Context, path string) error {
	ctx, span := tracer.Start(ctx, "store.load_pricing_file",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading pricing file: %w", err)
	}

	var overrides []ModelPricing
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing pricing file: %w", err)
	}

	for i := range overrides {
		if overrides[i].ModelName == "" {
			return fmt.Errorf("pricing file entry %d: model_name is required", i)
		}
		if err := s.UpsertModelPricing(ctx, &overrides[i]); err != nil {
			return err
		}
	}
	span.SetAttributes(attribute.Int("pricing.overrides", len(overrides)))
	return nil
}
