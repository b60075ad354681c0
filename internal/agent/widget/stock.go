package widget

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

// Stock fetches a quote for the ticker or company named in the query.
type Stock struct {
	provider *HTTPProvider
}

func NewStock(provider *HTTPProvider) *Stock { return &Stock{provider: provider} }

func (s *Stock) Type() string { return "stock" }

func (s *Stock) ShouldRun(c model.ClassifierOutput, query string) bool {
	return c.ShowStockWidget
}

func (s *Stock) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	var resp struct {
		Symbol        string  `json:"symbol"`
		Price         float64 `json:"price"`
		ChangePercent float64 `json:"changePercent"`
		Link          string  `json:"link"`
	}
	if err := s.provider.FetchJSON(ctx, map[string]interface{}{"query": in.Query}, &resp); err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "stock lookup failed"}
	}

	card := model.Card{
		"symbol":        resp.Symbol,
		"price":         resp.Price,
		"changePercent": resp.ChangePercent,
		"link":          resp.Link,
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      []model.Card{card},
		LLMContext: fmt.Sprintf("%s is trading at $%.2f (%.2f%% today).", resp.Symbol, resp.Price, resp.ChangePercent),
	}
}
