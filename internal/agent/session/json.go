package session

import (
	"encoding/json"
	"fmt"

	"researchagent/internal/agent/model"
)

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalLike unmarshals raw into a freshly allocated value of the same
// concrete type as like, returning the new pointer.
func unmarshalLike(like interface{}, raw []byte) (interface{}, error) {
	switch like.(type) {
	case *model.WidgetValue:
		out := &model.WidgetValue{}
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
		return out, nil
	case *model.ResearchProgressValue:
		out := &model.ResearchProgressValue{}
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unmarshalLike: unsupported type %T", like)
	}
}
