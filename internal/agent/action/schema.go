package action

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateAgainstSchema implements spec.md §4.5's safe-call rule: a
// tool call's parameters are safe iff they parse against the action's
// declared JSON schema.
func validateAgainstSchema(schema map[string]interface{}, params map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	if params == nil {
		params = map[string]interface{}{}
	}
	docLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("action: schema evaluation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("action: unsafe tool call: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// mustSchema panics on a malformed literal schema at init time; used
// only for the small, hand-written schemas in this package.
func mustSchema(raw string) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		panic(fmt.Sprintf("action: invalid embedded schema: %v", err))
	}
	return out
}
