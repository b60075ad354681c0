package widget

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

// Hotel fetches lodging listings for the destination in the query
// (spec.md §8 scenario S2).
type Hotel struct {
	provider *HTTPProvider
}

func NewHotel(provider *HTTPProvider) *Hotel { return &Hotel{provider: provider} }

func (h *Hotel) Type() string { return "hotel" }

func (h *Hotel) ShouldRun(c model.ClassifierOutput, query string) bool {
	return c.ShowHotelWidget
}

func (h *Hotel) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	var resp struct {
		Hotels []struct {
			Name     string  `json:"name"`
			Price    float64 `json:"pricePerNight"`
			Rating   float64 `json:"rating"`
			Link     string  `json:"link"`
			PhotoURL string  `json:"photoUrl"`
		} `json:"hotels"`
	}
	if err := h.provider.FetchJSON(ctx, map[string]interface{}{"query": in.Query}, &resp); err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "hotel search failed"}
	}
	if len(resp.Hotels) == 0 {
		return model.WidgetOutput{Success: false, ErrNote: "no hotels found"}
	}

	cards := make([]model.Card, 0, len(resp.Hotels))
	for _, hh := range resp.Hotels {
		cards = append(cards, model.Card{
			"name":          hh.Name,
			"pricePerNight": hh.Price,
			"rating":        hh.Rating,
			"link":          hh.Link,
			"photo":         hh.PhotoURL,
		})
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      cards,
		LLMContext: fmt.Sprintf("Found %d hotel options for the requested destination.", len(cards)),
	}
}
