package orchestrator

import (
	"strings"

	"researchagent/internal/agent/model"
	"researchagent/internal/agent/research"
	"researchagent/internal/agent/widget"
)

// buildFinalAggregate assembles the terminal "end" payload (spec.md
// §4.9, step 9):
//   - Sources = dedup(chunk urls, widget card links), first occurrence.
//   - Images  = dedup(chunk thumbnails, widget card photos), first
//     occurrence.
//   - Cards-by-domain = map from widgetType -> cards.
//   - Answer = concatenated text of all text blocks in emission order.
func buildFinalAggregate(answer string, suggestions []string, rr research.Result, wr widget.Result) model.FinalAggregate {
	return model.FinalAggregate{
		Answer:              answer,
		FollowUpSuggestions: suggestions,
		Sources:             dedupeSources(rr.Chunks, wr.CardsByType),
		Images:              dedupeImages(rr.Chunks, rr.Images, wr.CardsByType),
		CardsByDomain:       wr.CardsByType,
	}
}

func concatText(blocks []*model.TextValue) string {
	var b strings.Builder
	for _, tv := range blocks {
		b.WriteString(tv.Text)
	}
	return b.String()
}

func dedupeSources(chunks []model.Chunk, cardsByType map[string][]model.Card) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(url string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		out = append(out, url)
	}

	for _, c := range chunks {
		add(c.URL)
	}
	for _, cards := range cardsByType {
		for _, card := range cards {
			if link, ok := card.Link(); ok {
				add(link)
			}
		}
	}
	return out
}

func dedupeImages(chunks []model.Chunk, researchImages []string, cardsByType map[string][]model.Card) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(url string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		out = append(out, url)
	}

	for _, c := range chunks {
		if thumb, ok := c.Metadata["thumbnail"].(string); ok {
			add(thumb)
		}
	}
	for _, img := range researchImages {
		add(img)
	}
	for _, cards := range cardsByType {
		for _, card := range cards {
			if photo, ok := card.Photo(); ok {
				add(photo)
			}
		}
	}
	return out
}
