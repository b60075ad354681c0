package widget

import (
	"context"
	"fmt"

	"researchagent/internal/agent/model"
)

// Weather fetches current conditions for the location named in the
// query. It runs whenever the classifier's showWeatherWidget flag is
// set.
type Weather struct {
	provider *HTTPProvider
}

// NewWeather creates a Weather widget backed by provider.
func NewWeather(provider *HTTPProvider) *Weather { return &Weather{provider: provider} }

func (w *Weather) Type() string { return "weather" }

func (w *Weather) ShouldRun(c model.ClassifierOutput, query string) bool {
	return c.ShowWeatherWidget
}

func (w *Weather) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	var resp struct {
		Location    string  `json:"location"`
		TempF       float64 `json:"tempF"`
		Condition   string  `json:"condition"`
		Link        string  `json:"link"`
		PhotoURL    string  `json:"photoUrl"`
	}
	if err := w.provider.FetchJSON(ctx, map[string]interface{}{"query": in.Query}, &resp); err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "weather lookup failed"}
	}

	card := model.Card{
		"location":  resp.Location,
		"tempF":     resp.TempF,
		"condition": resp.Condition,
		"link":      resp.Link,
		"photo":     resp.PhotoURL,
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      []model.Card{card},
		LLMContext: fmt.Sprintf("Current weather in %s: %s, %.0f°F.", resp.Location, resp.Condition, resp.TempF),
	}
}
