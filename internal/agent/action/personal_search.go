package action

import (
	"context"
	"fmt"
	"math"

	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
)

var personalSearchSchema = mustSchema(`{
	"type": "object",
	"properties": {
		"query": {"type": "string"}
	},
	"required": ["query"]
}`)

// Document is one previously embedded user-uploaded file passage.
// File upload/indexing itself is out of scope (spec.md §1); callers
// supply an already-embedded PersonalIndex.
type Document struct {
	Title     string
	URL       string
	Content   string
	Embedding []float64
}

// PersonalIndex is the minimal retrieval surface personal_search needs
// over a user's previously indexed documents.
type PersonalIndex interface {
	Documents(userID string) []Document
}

// PersonalSearch implements embedding-based retrieval over a user's
// uploaded files (spec.md §4.5).
type PersonalSearch struct {
	index    PersonalIndex
	embedder llmclient.Embedder
	userID   string
}

// NewPersonalSearch builds the personal_search action for one user.
func NewPersonalSearch(index PersonalIndex, embedder llmclient.Embedder, userID string) Action {
	return &PersonalSearch{index: index, embedder: embedder, userID: userID}
}

func (p *PersonalSearch) Name() string        { return "personal_search" }
func (p *PersonalSearch) Description() string  { return "Search the user's own uploaded files." }
func (p *PersonalSearch) ParameterSchema() map[string]interface{} { return personalSearchSchema }

func (p *PersonalSearch) EnabledFor(c model.ClassifierOutput) bool {
	return c.PersonalSearch
}

func (p *PersonalSearch) Execute(ctx context.Context, params map[string]interface{}, _ []model.ChatTurn) model.ActionOutput {
	query, _ := params["query"].(string)
	if query == "" {
		return model.ActionOutput{Err: fmt.Errorf("personal_search: missing query parameter")}
	}

	docs := p.index.Documents(p.userID)
	if len(docs) == 0 {
		return model.ActionOutput{Chunks: nil}
	}

	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		return model.ActionOutput{Err: fmt.Errorf("personal_search: embedding failed: %w", err)}
	}
	queryVec := vectors[0]

	top := rankByCosineSimilarity(docs, queryVec, 5)
	chunks := make([]model.Chunk, 0, len(top))
	for _, d := range top {
		chunks = append(chunks, model.Chunk{Title: d.Title, URL: d.URL, Content: d.Content})
	}
	return model.ActionOutput{Chunks: chunks}
}

func rankByCosineSimilarity(docs []Document, query []float64, limit int) []Document {
	type scored struct {
		doc   Document
		score float64
	}
	scoredDocs := make([]scored, 0, len(docs))
	for _, d := range docs {
		scoredDocs = append(scoredDocs, scored{doc: d, score: cosineSimilarity(d.Embedding, query)})
	}
	// Simple selection sort over a small candidate set; personal
	// indexes are expected to be modest in size (no external
	// vector-database dependency is named anywhere in scope).
	for i := 0; i < len(scoredDocs); i++ {
		best := i
		for j := i + 1; j < len(scoredDocs); j++ {
			if scoredDocs[j].score > scoredDocs[best].score {
				best = j
			}
		}
		scoredDocs[i], scoredDocs[best] = scoredDocs[best], scoredDocs[i]
	}
	if limit > len(scoredDocs) {
		limit = len(scoredDocs)
	}
	out := make([]Document, limit)
	for i := 0; i < limit; i++ {
		out[i] = scoredDocs[i].doc
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
