// Package classifier runs the single structured-output LLM call that
// decides which search sources and widgets a query needs, and produces
// a self-contained reformulation of the query (spec.md §4.3).
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
)

const systemPrompt = `You are a routing classifier for a research assistant.
Given the user's latest message and prior conversation turns, decide:
- whether web/personal/academic/discussion search is needed
- which result widgets (weather, stock, calculation, product, hotel, place, movie) apply
- a standalone, pronoun-resolved reformulation of the user's request

Respond with a single JSON object matching this exact shape, no prose:
{"skipSearch":bool,"personalSearch":bool,"academicSearch":bool,"discussionSearch":bool,
"showWeatherWidget":bool,"showStockWidget":bool,"showCalculationWidget":bool,
"showProductWidget":bool,"showHotelWidget":bool,"showPlaceWidget":bool,"showMovieWidget":bool,
"standaloneFollowUp":string}`

// Classifier wraps an llmclient.Client to implement the classify
// contract (spec.md §4.3): classify(query, history) -> ClassifierOutput.
type Classifier struct {
	llm    llmclient.Client
	logger *slog.Logger
}

// New creates a Classifier.
func New(llm llmclient.Client, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: llm, logger: logger}
}

// Classify issues the structured-output call and validates the result.
// Any error — call failure, malformed JSON, or an invalid shape — fails
// open to model.PermissiveDefault(query), never propagated to the
// caller (spec.md §4.3, §7: ClassifierFailed is a soft failure).
func (c *Classifier) Classify(ctx context.Context, query string, history []model.ChatTurn) model.ClassifierOutput {
	req := llmclient.GenerateRequest{
		System:   systemPrompt,
		Messages: buildMessages(query, history),
		// Low token budget: this call only ever emits one compact object.
		MaxTokens: 512,
	}

	resp, err := c.llm.Generate(ctx, req)
	if err != nil {
		c.logger.Warn("classifier call failed, using permissive default", "error", err)
		return model.PermissiveDefault(query)
	}

	out, err := parse(resp.Text)
	if err != nil {
		c.logger.Warn("classifier returned invalid shape, using permissive default", "error", err)
		return model.PermissiveDefault(query)
	}
	if err := validate(out); err != nil {
		c.logger.Warn("classifier output failed validation, using permissive default", "error", err)
		return model.PermissiveDefault(query)
	}
	if out.StandaloneFollowUp == "" {
		out.StandaloneFollowUp = query
	}
	return out
}

func buildMessages(query string, history []model.ChatTurn) []llmclient.Message {
	messages := make([]llmclient.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, llmclient.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llmclient.Message{Role: "user", Content: query})
	return messages
}

// parse extracts the JSON object from the model's response text,
// tolerating surrounding code-fence or prose the model occasionally
// adds despite instructions.
func parse(text string) (model.ClassifierOutput, error) {
	var out model.ClassifierOutput
	trimmed := extractJSONObject(text)
	if trimmed == "" {
		return out, fmt.Errorf("classifier: no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return out, fmt.Errorf("classifier: invalid JSON: %w", err)
	}
	return out, nil
}

func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// validate enforces the closed-schema shape (spec.md §3): the
// reformulation may be at most 4000 characters long. An empty
// reformulation passes; Classify replaces it with the original query.
func validate(out model.ClassifierOutput) error {
	return validation.Validate(&out.StandaloneFollowUp, validation.Length(0, 4000))
}
