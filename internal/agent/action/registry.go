package action

import (
	"context"
	"fmt"
	"sync"

	"researchagent/internal/agent/model"
)

// Registry holds the set of actions available to a request (spec.md
// §4.5), mirroring the teacher's tool registry shape.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds a, replacing any existing action with the same Name.
func (r *Registry) Register(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[a.Name()] = a
}

// Get retrieves an action by name, or nil if unregistered.
func (r *Registry) Get(name string) Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// AvailableActions returns every action whose EnabledFor predicate
// holds for the given classifier output (spec.md §4.5).
func (r *Registry) AvailableActions(classifier model.ClassifierOutput) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Action
	for _, a := range r.actions {
		if a.EnabledFor(classifier) {
			out = append(out, a)
		}
	}
	return out
}

// ExecuteAll runs every call concurrently and returns results in the
// same order as calls (spec.md §4.5). An unknown tool name produces an
// error-kind ActionOutput rather than aborting the batch; an action
// that fails likewise produces a failure ActionOutput but does not
// affect its peers.
func (r *Registry) ExecuteAll(ctx context.Context, calls []Call, history []model.ChatTurn) []model.ActionOutput {
	results := make([]model.ActionOutput, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = r.executeOne(ctx, call, history)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (r *Registry) executeOne(ctx context.Context, call Call, history []model.ChatTurn) model.ActionOutput {
	a := r.Get(call.Name)
	if a == nil {
		err := fmt.Errorf("action: unknown tool %q", call.Name)
		return model.ActionOutput{Name: call.Name, ToolCallID: call.ToolCallID, Err: err}
	}

	out := a.Execute(ctx, call.Params, history)
	out.Name = call.Name
	out.ToolCallID = call.ToolCallID
	return out
}
