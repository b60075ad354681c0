// Package widget runs domain-specific data-fetching widgets (weather,
// stock, calculation, product, hotel, place, movie) in parallel and
// emits their results as session blocks as they complete (spec.md
// §4.4).
package widget

import (
	"context"

	"researchagent/internal/agent/model"
)

// RunInput is the context a widget needs to decide and execute.
type RunInput struct {
	Query   string
	History []model.ChatTurn
}

// Widget is any object exposing a stable type name, a predicate over
// the classifier's output, and a run method (spec.md §4.4).
type Widget interface {
	// Type is the stable widget type string, e.g. "weather".
	Type() string
	// ShouldRun reports whether this widget applies to the current
	// turn, given the classifier's routing decision.
	ShouldRun(classifier model.ClassifierOutput, query string) bool
	// Run executes the widget's fetch. ctx carries the orchestrator's
	// abort signal and the executor's soft timeout.
	Run(ctx context.Context, in RunInput) model.WidgetOutput
}
