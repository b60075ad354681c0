package widget

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Knetic/govaluate"

	"researchagent/internal/agent/model"
)

// expressionPattern extracts the arithmetic expression from a query,
// stripping leading natural-language framing like "what is" or
// "calculate". It is deliberately permissive; govaluate itself rejects
// anything that isn't a valid expression.
var expressionPattern = regexp.MustCompile(`[-+*/^()%.\d\s]{2,}`)

// Calculation evaluates an arithmetic expression found in the query
// locally, without calling out to the LLM or any external service.
type Calculation struct{}

// NewCalculation creates a Calculation widget.
func NewCalculation() *Calculation { return &Calculation{} }

func (c *Calculation) Type() string { return "calculation" }

func (c *Calculation) ShouldRun(classifier model.ClassifierOutput, query string) bool {
	return classifier.ShowCalculationWidget
}

func (c *Calculation) Run(ctx context.Context, in RunInput) model.WidgetOutput {
	expr := expressionPattern.FindString(in.Query)
	if expr == "" {
		return model.WidgetOutput{Success: false, ErrNote: "no expression found in query"}
	}

	eval, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "could not parse expression"}
	}
	result, err := eval.Evaluate(nil)
	if err != nil {
		return model.WidgetOutput{Success: false, ErrNote: "could not evaluate expression"}
	}

	card := model.Card{
		"expression": expr,
		"result":     result,
	}
	return model.WidgetOutput{
		Success:    true,
		Cards:      []model.Card{card},
		LLMContext: fmt.Sprintf("%s = %v", expr, result),
	}
}
