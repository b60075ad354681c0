package session

import "researchagent/internal/agent/model"

// AppendTextPatch builds the patch the writer uses for each streamed
// text delta (spec.md §4.7, §9 Open Question 1): a single "add" op
// against "/text/-", applied by Session as an append to the materialized
// string.
func AppendTextPatch(delta string) []model.PatchOp {
	return []model.PatchOp{{Op: "add", Path: "/text/-", Value: delta}}
}

// MarkTextDonePatch marks a text block's materialized value as done,
// used by the writer when a stream ends or errors.
func MarkTextDonePatch() []model.PatchOp {
	return []model.PatchOp{{Op: "replace", Path: "/done", Value: true}}
}

// BlockValue returns the current materialized value of block id, and
// whether it exists.
func (s *Session) BlockValue(id string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.blocks[id]
	if !ok {
		return nil, false
	}
	return bs.value, true
}

// TextBlocksInOrder returns the materialized TextValue of every text
// block, in the order their "block" events were first emitted
// (spec.md §4.9: "Answer = concatenated text of all text blocks in
// emission order").
func (s *Session) TextBlocksInOrder() []*model.TextValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.TextValue
	seen := make(map[string]bool)
	for _, ev := range s.log {
		if ev.Kind != model.EventKindBlock {
			continue
		}
		bp, ok := ev.Payload.(model.BlockPayload)
		if !ok || bp.Kind != model.BlockKindText || seen[bp.BlockID] {
			continue
		}
		seen[bp.BlockID] = true
		if bs, ok := s.blocks[bp.BlockID]; ok {
			if tv, ok := bs.value.(*model.TextValue); ok {
				out = append(out, tv)
			}
		}
	}
	return out
}

// WidgetBlocksInOrder returns the materialized WidgetValue of every
// widget block emitted so far, in emission order.
func (s *Session) WidgetBlocksInOrder() []*model.WidgetValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.WidgetValue
	seen := make(map[string]bool)
	for _, ev := range s.log {
		if ev.Kind != model.EventKindBlock {
			continue
		}
		bp, ok := ev.Payload.(model.BlockPayload)
		if !ok || bp.Kind != model.BlockKindWidget || seen[bp.BlockID] {
			continue
		}
		seen[bp.BlockID] = true
		if bs, ok := s.blocks[bp.BlockID]; ok {
			if wv, ok := bs.value.(*model.WidgetValue); ok {
				out = append(out, wv)
			}
		}
	}
	return out
}
