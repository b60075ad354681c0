package action

import (
	"context"

	"researchagent/internal/agent/model"
)

var doneSchema = mustSchema(`{"type": "object", "properties": {}}`)

// Done is the no-params sentinel action that signals the research loop
// should terminate (spec.md §4.5).
type Done struct{}

// NewDone builds the done action.
func NewDone() Action { return &Done{} }

func (d *Done) Name() string        { return "done" }
func (d *Done) Description() string { return "Signal that research is complete and ready to write the answer." }
func (d *Done) ParameterSchema() map[string]interface{} { return doneSchema }
func (d *Done) EnabledFor(model.ClassifierOutput) bool  { return true }

func (d *Done) Execute(context.Context, map[string]interface{}, []model.ChatTurn) model.ActionOutput {
	return model.ActionOutput{Done: true}
}
