package action

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

var queriesSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"queries": {
			"type": "array",
			"items": {"type": "string"},
			"minItems": 1
		}
	},
	"required": ["queries"]
}`)

type queriesParams struct {
	Queries []string `json:"queries"`
}

// searchAction is the shared implementation behind web_search,
// academic_search, and discussion_search: same params schema, same
// fan-out-over-queries execution, different backend/topic (spec.md
// §4.5: "analogous, different backends").
type searchAction struct {
	name        string
	description string
	topic       string
	client      SearchClient
	enabledFor  func(model.ClassifierOutput) bool
}

func (a *searchAction) Name() string        { return a.name }
func (a *searchAction) Description() string { return a.description }
func (a *searchAction) ParameterSchema() map[string]interface{} { return queriesSchema }
func (a *searchAction) EnabledFor(c model.ClassifierOutput) bool { return a.enabledFor(c) }

func (a *searchAction) Execute(ctx context.Context, params map[string]interface{}, _ []model.ChatTurn) model.ActionOutput {
	var p queriesParams
	if err := marshalRoundTrip(params, &p); err != nil || len(p.Queries) == 0 {
		return model.ActionOutput{Err: fmt.Errorf("%s: missing queries parameter", a.name)}
	}

	var chunks []model.Chunk
	for _, q := range p.Queries {
		results, err := a.client.Search(ctx, q, a.topic, 5)
		if err != nil {
			continue // isolate per-query failure; partial results still useful
		}
		for _, r := range results {
			chunks = append(chunks, model.Chunk{
				Title:   r.Title,
				URL:     r.URL,
				Content: cleanSnippet(r.Snippet),
				Metadata: map[string]interface{}{
					"thumbnail": r.Thumb,
					"query":     q,
				},
			})
		}
	}

	if chunks == nil {
		return model.ActionOutput{Err: fmt.Errorf("%s: all queries failed", a.name)}
	}
	return model.ActionOutput{Chunks: chunks}
}

// NewWebSearch builds the web_search action (spec.md §4.5), enabled
// whenever the classifier hasn't set skipSearch.
func NewWebSearch(client SearchClient) Action {
	return &searchAction{
		name:        "web_search",
		description: "Search the general web for up-to-date information.",
		topic:       "general",
		client:      client,
		enabledFor: func(c model.ClassifierOutput) bool {
			return !c.SkipSearch
		},
	}
}

// NewAcademicSearch builds the academic_search action, enabled when
// the classifier's academicSearch flag is set.
func NewAcademicSearch(client SearchClient) Action {
	return &searchAction{
		name:        "academic_search",
		description: "Search academic papers and scholarly sources.",
		topic:       "academic",
		client:      client,
		enabledFor: func(c model.ClassifierOutput) bool {
			return c.AcademicSearch
		},
	}
}

// NewDiscussionSearch builds the discussion_search action, enabled
// when the classifier's discussionSearch flag is set.
func NewDiscussionSearch(client SearchClient) Action {
	return &searchAction{
		name:        "discussion_search",
		description: "Search forums and discussion threads (e.g. Reddit, Stack Exchange).",
		topic:       "discussion",
		client:      client,
		enabledFor: func(c model.ClassifierOutput) bool {
			return c.DiscussionSearch
		},
	}
}
