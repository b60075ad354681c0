package widget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"researchagent/internal/agent/model"
)

// DefaultSoftTimeout bounds how long any single widget may run before
// its context is cancelled; the executor still emits a failed widget
// block rather than hanging the whole request (spec.md §4.4).
const DefaultSoftTimeout = 6 * time.Second

// Emitter is the subset of session.Session the executor needs. Widgets
// are decoupled from the session package so they can be tested without
// a live session (spec.md §4.1's EmitBlock contract).
type Emitter interface {
	NewBlockID() string
	NextBlockIndex() int
	EmitBlock(id string, kind model.BlockKind, index int, value interface{}) (model.Event, error)
}

// Executor runs the applicable subset of a Registry's widgets
// concurrently against one turn.
type Executor struct {
	registry    *Registry
	softTimeout time.Duration
	descriptors *DescriptorSet
	logger      *slog.Logger
}

// NewExecutor creates an Executor. softTimeout of zero uses
// DefaultSoftTimeout. Every widget type runs enabled with no per-type
// timeout override until UseDescriptors is called.
func NewExecutor(registry *Registry, softTimeout time.Duration, logger *slog.Logger) *Executor {
	if softTimeout <= 0 {
		softTimeout = DefaultSoftTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, softTimeout: softTimeout, logger: logger}
}

// UseDescriptors attaches a DescriptorSet so Run can skip disabled
// widget types and honor per-type soft-timeout overrides (spec.md
// §4.4).
func (e *Executor) UseDescriptors(d *DescriptorSet) {
	e.descriptors = d
}

// Result is the aggregated output of one Run call (spec.md §4.9:
// "Cards-by-domain = map from widgetType -> array of cards").
type Result struct {
	LLMContexts []string
	CardsByType map[string][]model.Card
}

// Run selects every widget whose ShouldRun predicate holds, executes
// them concurrently (each under its own soft-timeout context derived
// from ctx), emits a widget block as each completes, and returns the
// aggregated llmContext strings and cards in no particular order —
// callers that need determinism should sort by widget type.
//
// Widget blocks are emitted as they become ready, not batched, so the
// client can progressively render cards (spec.md §4.4).
func (e *Executor) Run(ctx context.Context, emitter Emitter, in RunInput, classifier model.ClassifierOutput) Result {
	var applicable []Widget
	for _, w := range e.registry.All() {
		if !e.descriptors.Enabled(w.Type()) {
			continue
		}
		if w.ShouldRun(classifier, in.Query) {
			applicable = append(applicable, w)
		}
	}
	if len(applicable) == 0 {
		return Result{}
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		llmContexts []string
		cardsByType = make(map[string][]model.Card)
	)

	for _, w := range applicable {
		wg.Add(1)
		go func(w Widget) {
			defer wg.Done()
			out := e.runOne(ctx, w, in)

			blockID := emitter.NewBlockID()
			index := emitter.NextBlockIndex()
			value := &model.WidgetValue{
				WidgetType: out.Type,
				Success:    out.Success,
				Cards:      out.Cards,
				ErrNote:    out.ErrNote,
			}
			if _, err := emitter.EmitBlock(blockID, model.BlockKindWidget, index, value); err != nil {
				e.logger.Warn("failed to emit widget block", "widget_type", out.Type, "error", err)
				return
			}

			if !out.Success {
				return
			}
			mu.Lock()
			if out.LLMContext != "" {
				llmContexts = append(llmContexts, out.LLMContext)
			}
			if len(out.Cards) > 0 {
				cardsByType[out.Type] = append(cardsByType[out.Type], out.Cards...)
			}
			mu.Unlock()
		}(w)
	}

	wg.Wait()
	return Result{LLMContexts: llmContexts, CardsByType: cardsByType}
}

// runOne isolates one widget's panic/timeout/error from the others
// (spec.md §4.4: "A widget failure is isolated").
func (e *Executor) runOne(ctx context.Context, w Widget, in RunInput) (out model.WidgetOutput) {
	timeout := e.descriptors.TimeoutFor(w.Type(), e.softTimeout)
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("widget panicked", "widget_type", w.Type(), "panic", r)
			out = model.WidgetOutput{Type: w.Type(), Success: false, ErrNote: "widget failed unexpectedly"}
		}
	}()

	out = w.Run(wctx, in)
	out.Type = w.Type()
	if wctx.Err() != nil && !out.Success {
		out.ErrNote = "widget timed out"
	}
	return out
}
