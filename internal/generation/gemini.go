package generation

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"notto/pkg/platform/circuit"
)

// responseSchema constrains the model to an array of {name, numbers} objects
// so the response parses without prose stripping.
var responseSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {Type: genai.TypeString},
			"numbers": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeInteger},
			},
		},
		Required: []string{"name", "numbers"},
	},
}

// Gemini generates number sets through the Gemini API with structured JSON
// output. Every failure mode degrades to an empty result; the service layer
// decides whether a miss means retry-later or random fallback.
type Gemini struct {
	client  *genai.Client
	model   string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewGemini builds the client. The API key must be set.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   model,
		breaker: circuit.New("gemini", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}, nil
}

// Generate runs one model call for the given names. Partial responses are
// normal; the returned slice holds only the names the model answered with a
// valid set.
func (g *Gemini) Generate(ctx context.Context, promptTemplate string, names []string) ([]Assignment, error) {
	if len(names) == 0 {
		return nil, nil
	}

	prompt := BuildPrompt(promptTemplate, names)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.Error("gemini circuit opened", "model", g.model, "error", err)
		} else {
			g.logger.Warn("gemini call failed", "model", g.model, "names", len(names), "error", err)
		}
		return nil, nil
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.Info("gemini circuit closed", "model", g.model)
	}

	assignments := ParseAssignments(resp.Text(), names)
	if len(assignments) < len(names) {
		g.logger.Warn("gemini returned partial result",
			"model", g.model, "requested", len(names), "returned", len(assignments))
	}
	return assignments, nil
}
