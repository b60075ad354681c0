// Package action implements the callable tools exposed to the research
// LLM: web/academic/discussion/personal search and the done sentinel
// (spec.md §4.5).
package action

import (
	"context"
	"encoding/json"

	"researchagent/internal/agent/model"
)

// Call is one tool invocation the research loop wants executed,
// mirroring the shape an llmclient.ToolCall arrives in.
type Call struct {
	ToolCallID string
	Name       string
	Params     map[string]interface{}
}

// Action is a callable tool exposed to the research LLM (spec.md §4.5).
type Action interface {
	// Name is the stable tool name used in LLM tool-calling.
	Name() string
	// Description is shown to the LLM as the tool's docstring.
	Description() string
	// ParameterSchema is the JSON-schema-shaped parameter contract used
	// both to advertise the tool and to validate incoming calls.
	ParameterSchema() map[string]interface{}
	// EnabledFor reports whether this action should be offered to the
	// LLM at all, given the classifier's routing decision.
	EnabledFor(classifier model.ClassifierOutput) bool
	// Execute runs the action. ctx carries the research loop's
	// cancellation/abort signal.
	Execute(ctx context.Context, params map[string]interface{}, history []model.ChatTurn) model.ActionOutput
}

// ValidateParams parses raw JSON-able params against the action's
// schema, implementing the research loop's safe-call filter (spec.md
// §4.5: "a tool call is safe iff its parameters parse against the
// action's schema").
func ValidateParams(a Action, params map[string]interface{}) error {
	return validateAgainstSchema(a.ParameterSchema(), params)
}

// marshalRoundTrip is a small helper actions use to coerce a loosely
// typed params map into a concrete struct.
func marshalRoundTrip(params map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
