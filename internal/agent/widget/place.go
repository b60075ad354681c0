package widget

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

// Place fetches points of interest (restaurants, landmarks, venues)
// matching the query.
type Place struct {
	provider *HTTPProvider
}

func NewPlace(provider *HTTPProvider) *Place { return &Place{provider: provider} }

func (p *Place) Type() string { return "place" }

func (p *Place) ShouldRun(c model.ClassifierOutput, query string) bool {
	return c.ShowPlaceWidget
}

func (p *Place) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	var resp struct {
		Places []struct {
			Name     string  `json:"name"`
			Address  string  `json:"address"`
			Rating   float64 `json:"rating"`
			Link     string  `json:"link"`
			PhotoURL string  `json:"photoUrl"`
		} `json:"places"`
	}
	if err := p.provider.FetchJSON(ctx, map[string]interface{}{"query": in.Query}, &resp); err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "place search failed"}
	}
	if len(resp.Places) == 0 {
		return model.WidgetOutput{Success: false, ErrNote: "no places found"}
	}

	cards := make([]model.Card, 0, len(resp.Places))
	for _, pl := range resp.Places {
		cards = append(cards, model.Card{
			"name":    pl.Name,
			"address": pl.Address,
			"rating":  pl.Rating,
			"link":    pl.Link,
			"photo":   pl.PhotoURL,
		})
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      cards,
		LLMContext: fmt.Sprintf("Found %d places matching the request.", len(cards)),
	}
}
