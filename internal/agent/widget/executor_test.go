package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"researchagent/internal/agent/model"
)

type fakeWidget struct {
	typ        string
	shouldRun  bool
	out        model.WidgetOutput
	delay      time.Duration
	panics     bool
}

func (f *fakeWidget) Type() string { return f.typ }
func (f *fakeWidget) ShouldRun(c model.ClassifierOutput, q string) bool { return f.shouldRun }
func (f *fakeWidget) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.WidgetOutput{Success: false}
		}
	}
	return f.out
}

type fakeEmitter struct {
	mu     sync.Mutex
	blocks []model.BlockKind
	values []interface{}
}

func (e *fakeEmitter) NewBlockID() string     { return "block-id" }
func (e *fakeEmitter) NextBlockIndex() int    { return 0 }
func (e *fakeEmitter) EmitBlock(id string, kind model.BlockKind, index int, value interface{}) (model.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocks = append(e.blocks, kind)
	e.values = append(e.values, value)
	return model.Event{}, nil
}

func TestExecutorRunsOnlyApplicableWidgets(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeWidget{typ: "weather", shouldRun: true, out: model.WidgetOutput{Success: true, LLMContext: "sunny"}})
	reg.Register(&fakeWidget{typ: "stock", shouldRun: false})

	exec := NewExecutor(reg, time.Second, nil)
	emitter := &fakeEmitter{}

	result := exec.Run(context.Background(), emitter, RunInput{Query: "weather?"}, model.ClassifierOutput{})

	if len(emitter.blocks) != 1 {
		t.Fatalf("expected exactly 1 widget block emitted, got %d", len(emitter.blocks))
	}
	if len(result.LLMContexts) != 1 || result.LLMContexts[0] != "sunny" {
		t.Fatalf("expected llmContext [sunny], got %v", result.LLMContexts)
	}
}

func TestExecutorIsolatesPanickingWidget(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeWidget{typ: "broken", shouldRun: true, panics: true})
	reg.Register(&fakeWidget{typ: "ok", shouldRun: true, out: model.WidgetOutput{Success: true, LLMContext: "fine"}})

	exec := NewExecutor(reg, time.Second, nil)
	emitter := &fakeEmitter{}

	result := exec.Run(context.Background(), emitter, RunInput{}, model.ClassifierOutput{})

	if len(emitter.blocks) != 2 {
		t.Fatalf("expected both widgets to emit a block, got %d", len(emitter.blocks))
	}
	if len(result.LLMContexts) != 1 || result.LLMContexts[0] != "fine" {
		t.Fatalf("expected only the healthy widget's context, got %v", result.LLMContexts)
	}
}

func TestExecutorEnforcesSoftTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeWidget{typ: "slow", shouldRun: true, delay: 50 * time.Millisecond})

	exec := NewExecutor(reg, 5*time.Millisecond, nil)
	emitter := &fakeEmitter{}

	start := time.Now()
	exec.Run(context.Background(), emitter, RunInput{}, model.ClassifierOutput{})
	if time.Since(start) > 40*time.Millisecond {
		t.Fatalf("expected soft timeout to bound widget runtime")
	}
	if len(emitter.blocks) != 1 {
		t.Fatalf("expected a widget block even on timeout, got %d", len(emitter.blocks))
	}
}

func TestExecutorAggregatesCardsByType(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeWidget{typ: "stock", shouldRun: true, out: model.WidgetOutput{
		Type: "stock", Success: true, Cards: []model.Card{{"ticker": "AAPL"}},
	}})

	exec := NewExecutor(reg, time.Second, nil)
	emitter := &fakeEmitter{}

	result := exec.Run(context.Background(), emitter, RunInput{}, model.ClassifierOutput{})
	if len(result.CardsByType["stock"]) != 1 {
		t.Fatalf("expected one card under stock, got %v", result.CardsByType)
	}
}

func TestExecutorReturnsNoContextsWhenNoneApplicable(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeWidget{typ: "stock", shouldRun: false})

	exec := NewExecutor(reg, time.Second, nil)
	emitter := &fakeEmitter{}

	result := exec.Run(context.Background(), emitter, RunInput{}, model.ClassifierOutput{})
	if result.LLMContexts != nil {
		t.Fatalf("expected nil contexts, got %v", result.LLMContexts)
	}
	if len(emitter.blocks) != 0 {
		t.Fatalf("expected no widget blocks emitted, got %d", len(emitter.blocks))
	}
}
