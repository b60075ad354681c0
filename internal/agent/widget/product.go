package widget

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

// Product fetches shopping listings matching the query.
type Product struct {
	provider *HTTPProvider
}

func NewProduct(provider *HTTPProvider) *Product { return &Product{provider: provider} }

func (p *Product) Type() string { return "product" }

func (p *Product) ShouldRun(c model.ClassifierOutput, query string) bool {
	return c.ShowProductWidget
}

func (p *Product) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	var resp struct {
		Products []struct {
			Name     string  `json:"name"`
			Price    float64 `json:"price"`
			Merchant string  `json:"merchant"`
			Link     string  `json:"link"`
			PhotoURL string  `json:"photoUrl"`
		} `json:"products"`
	}
	if err := p.provider.FetchJSON(ctx, map[string]interface{}{"query": in.Query}, &resp); err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "product search failed"}
	}
	if len(resp.Products) == 0 {
		return model.WidgetOutput{Success: false, ErrNote: "no products found"}
	}

	cards := make([]model.Card, 0, len(resp.Products))
	for _, pr := range resp.Products {
		cards = append(cards, model.Card{
			"name":     pr.Name,
			"price":    pr.Price,
			"merchant": pr.Merchant,
			"link":     pr.Link,
			"photo":    pr.PhotoURL,
		})
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      cards,
		LLMContext: fmt.Sprintf("Found %d matching products.", len(cards)),
	}
}
