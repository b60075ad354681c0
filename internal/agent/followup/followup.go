// Package followup runs the post-answer structured LLM call that
// suggests contextual next-step queries (spec.md §4.8).
package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
)

// DefaultMax is the default cap on suggestions returned (spec.md §4.8:
// "up to N (default 3)").
const DefaultMax = 3

// DefaultMaxLength bounds each suggestion's length (spec.md §4.8: "each
// <= L characters").
const DefaultMaxLength = 140

// DefaultHistoryWindow is how many of the user's most recent queries a
// suggestion must not duplicate (spec.md §4.8: "last K user queries,
// default K=5").
const DefaultHistoryWindow = 5

const systemPrompt = `You suggest helpful next questions a user might ask
after receiving an answer from a research assistant. Respond with a
single JSON array of strings, no prose, no surrounding object. Each
string is a complete standalone question, not a fragment.`

// Generator produces follow-up suggestions for a completed answer.
type Generator struct {
	llm    llmclient.Client
	logger *slog.Logger

	max           int
	maxLength     int
	historyWindow int
}

// New creates a Generator with spec.md's default limits.
func New(llm llmclient.Client, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		llm:           llm,
		logger:        logger,
		max:           DefaultMax,
		maxLength:     DefaultMaxLength,
		historyWindow: DefaultHistoryWindow,
	}
}

// Input is everything the generator needs to propose suggestions.
type Input struct {
	Query   string
	Answer  string
	Cards   []model.Card
	History []model.ChatTurn
}

// Generate issues the structured-output call and post-processes the
// result: dedup case-insensitively, drop anything matching one of the
// last K user queries, cap length, cap count. On any failure it returns
// an empty slice rather than propagating the error (spec.md §4.8: "On
// LLM failure, returns an empty array").
func (g *Generator) Generate(ctx context.Context, in Input) []string {
	req := llmclient.GenerateRequest{
		System:    systemPrompt,
		Messages:  []llmclient.Message{{Role: "user", Content: buildPrompt(in)}},
		MaxTokens: 512,
	}

	resp, err := g.llm.Generate(ctx, req)
	if err != nil {
		g.logger.Warn("follow-up generation call failed", "error", err)
		return []string{}
	}

	raw, err := parseSuggestions(resp.Text)
	if err != nil {
		g.logger.Warn("follow-up generation returned invalid shape", "error", err)
		return []string{}
	}

	recent := recentUserQueries(in.History, g.historyWindow)
	return g.postProcess(raw, recent)
}

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Original question: ")
	b.WriteString(in.Query)
	b.WriteString("\n\nAnswer given: ")
	b.WriteString(in.Answer)
	if len(in.Cards) > 0 {
		fmt.Fprintf(&b, "\n\n%d related card(s) were also shown to the user.", len(in.Cards))
	}
	return b.String()
}

func parseSuggestions(text string) ([]string, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("followup: no JSON array found in response")
	}
	var out []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("followup: invalid JSON array: %w", err)
	}
	return out, nil
}

// postProcess applies spec.md §4.8's filtering pipeline in order: trim,
// drop empties, dedup case-insensitively, drop anything matching a
// recent user query, truncate to maxLength, cap to max entries.
func (g *Generator) postProcess(raw []string, recent map[string]bool) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, g.max)

	for _, s := range raw {
		if len(out) >= g.max {
			break
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		norm := strings.ToLower(s)
		if seen[norm] || recent[norm] {
			continue
		}
		seen[norm] = true
		if len(s) > g.maxLength {
			s = s[:g.maxLength]
		}
		out = append(out, s)
	}

	return out
}

func recentUserQueries(history []model.ChatTurn, window int) map[string]bool {
	recent := make(map[string]bool)
	count := 0
	for i := len(history) - 1; i >= 0 && count < window; i-- {
		if history[i].Role != "user" {
			continue
		}
		recent[strings.ToLower(strings.TrimSpace(history[i].Content))] = true
		count++
	}
	return recent
}
