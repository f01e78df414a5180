package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmufti7/intelliflow-supportflow/internal/audit"
	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

const (
	classifierName        = "classifier"
	classifierMaxTokens   = 256
	classifierTemperature = 0.3
)

// classificationSchema validates the model's JSON output before any field
// is trusted. Category is the only hard requirement; its allowed values
// are checked after lowercasing, so models that answer "POSITIVE" still
// classify. Confidence and reasoning fall back to defaults.
const classificationSchema = `{
	"type": "object",
	"required": ["category"],
	"properties": {
		"category": {"type": "string"},
		"confidence": {"type": "number"},
		"reasoning": {"type": "string"}
	}
}`

var classificationValidator = gojsonschema.NewStringLoader(classificationSchema)

// Classification is the classifier's verdict on a message.
type Classification struct {
	Category   store.Category `json:"category"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
}

// ClassificationError reports a model response that could not be turned
// into a valid classification. Raw carries the unparsed model output.
type ClassificationError struct {
	Msg string
	Raw string
}

func (e *ClassificationError) Error() string {
	return "classification failed: " + e.Msg
}

// Classifier labels customer messages as positive, negative, or query.
type Classifier struct {
	deps *Deps
}

// NewClassifier builds a classifier over the shared services.
func NewClassifier(deps *Deps) *Classifier {
	return &Classifier{deps: deps}
}

// Name returns the agent name used in audit entries.
func (c *Classifier) Name() string { return classifierName }

// Classify runs the classification model over a message and parses its
// verdict. A second audit entry records the parsed category, reasoning,
// and confidence alongside the raw call entry.
func (c *Classifier) Classify(ctx context.Context, ticketID, message string) (*Classification, error) {
	ctx, span := tracer.Start(ctx, "agent.classify",
		trace.WithAttributes(attribute.String("ticket_id", ticketID)))
	defer span.End()

	c.deps.Log.Info().
		Str("ticket_id", ticketID).
		Int("message_length", len(message)).
		Msg("classifying message")

	resp, err := callModel(ctx, c.deps, classifierName, ticketID, store.ActionClassify, &llm.Request{
		SystemPrompt: classifierSystemPrompt,
		UserMessage:  message,
		MaxTokens:    classifierMaxTokens,
		Temperature:  classifierTemperature,
	})
	if err != nil {
		return nil, err
	}

	result, err := parseClassification(resp.Content)
	if err != nil {
		c.deps.Log.Error().
			Str("ticket_id", ticketID).
			Err(err).
			Msg("classification parse error")
		return nil, err
	}

	confidence := result.Confidence
	if err := c.deps.Audit.LogAction(ctx, &store.AuditEntry{
		TicketID:        ticketID,
		AgentName:       classifierName,
		Action:          store.ActionClassify,
		InputSummary:    audit.Truncate(message),
		OutputSummary:   "category=" + string(result.Category),
		Reasoning:       result.Reasoning,
		ConfidenceScore: &confidence,
		Success:         true,
	}); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("category", string(result.Category)),
		attribute.Float64("confidence", result.Confidence),
	)
	c.deps.Log.Info().
		Str("ticket_id", ticketID).
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Msg("message classified")
	return result, nil
}

// parseClassification turns the raw model output into a Classification.
// Markdown code fences around the JSON are tolerated.
func parseClassification(content string) (*Classification, error) {
	cleaned := stripCodeFence(content)

	verdict, err := gojsonschema.Validate(classificationValidator, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, &ClassificationError{Msg: fmt.Sprintf("invalid JSON: %v", err), Raw: content}
	}
	if !verdict.Valid() {
		msgs := make([]string, 0, len(verdict.Errors()))
		for _, e := range verdict.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &ClassificationError{Msg: strings.Join(msgs, "; "), Raw: content}
	}

	var raw struct {
		Category   string   `json:"category"`
		Confidence *float64 `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, &ClassificationError{Msg: err.Error(), Raw: content}
	}

	category, err := store.ParseCategory(strings.ToLower(raw.Category))
	if err != nil {
		return nil, &ClassificationError{Msg: "invalid category: " + raw.Category, Raw: content}
	}

	confidence := 0.5
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	return &Classification{Category: category, Confidence: confidence, Reasoning: reasoning}, nil
}

func stripCodeFence(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	if len(lines) <= 2 {
		return cleaned
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
