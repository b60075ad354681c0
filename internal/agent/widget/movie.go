package widget

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

// Movie fetches showtimes or title metadata matching the query.
type Movie struct {
	provider *HTTPProvider
}

func NewMovie(provider *HTTPProvider) *Movie { return &Movie{provider: provider} }

func (m *Movie) Type() string { return "movie" }

func (m *Movie) ShouldRun(c model.ClassifierOutput, query string) bool {
	return c.ShowMovieWidget
}

func (m *Movie) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	var resp struct {
		Movies []struct {
			Title    string  `json:"title"`
			Rating   float64 `json:"rating"`
			Year     int     `json:"year"`
			Link     string  `json:"link"`
			PhotoURL string  `json:"photoUrl"`
		} `json:"movies"`
	}
	if err := m.provider.FetchJSON(ctx, map[string]interface{}{"query": in.Query}, &resp); err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "movie search failed"}
	}
	if len(resp.Movies) == 0 {
		return model.WidgetOutput{Success: false, ErrNote: "no movies found"}
	}

	cards := make([]model.Card, 0, len(resp.Movies))
	for _, mv := range resp.Movies {
		cards = append(cards, model.Card{
			"title":  mv.Title,
			"rating": mv.Rating,
			"year":   mv.Year,
			"link":   mv.Link,
			"photo":  mv.PhotoURL,
		})
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      cards,
		LLMContext: fmt.Sprintf("Found %d matching movie titles.", len(cards)),
	}
}
