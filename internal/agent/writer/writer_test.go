package writer

import (
	"context"
	"errors"
	"testing"

	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
)

type fakeStreamClient struct {
	deltas []llmclient.TextDelta
	err    error
}

func (f *fakeStreamClient) Generate(ctx context.Context, req llmclient.GenerateRequest) (*llmclient.GenerateResponse, error) {
	panic("not used by writer")
}

func (f *fakeStreamClient) StreamText(ctx context.Context, req llmclient.GenerateRequest) (<-chan llmclient.TextDelta, <-chan error) {
	deltaCh := make(chan llmclient.TextDelta, len(f.deltas))
	errCh := make(chan error, 1)
	for _, d := range f.deltas {
		deltaCh <- d
	}
	close(deltaCh)
	errCh <- f.err
	close(errCh)
	return deltaCh, errCh
}

type fakeEmitter struct {
	blockIDs  []string
	patches   [][]model.PatchOp
	nextIndex int
}

func (e *fakeEmitter) NewBlockID() string  { id := "block"; return id }
func (e *fakeEmitter) NextBlockIndex() int { i := e.nextIndex; e.nextIndex++; return i }
func (e *fakeEmitter) EmitBlock(id string, kind model.BlockKind, index int, value interface{}) (model.Event, error) {
	e.blockIDs = append(e.blockIDs, id)
	return model.Event{}, nil
}
func (e *fakeEmitter) UpdateBlock(id string, kind model.BlockKind, patch []model.PatchOp) (model.Event, error) {
	e.patches = append(e.patches, patch)
	return model.Event{}, nil
}

func TestWriteStreamsDeltasIntoOneBlock(t *testing.T) {
	client := &fakeStreamClient{deltas: []llmclient.TextDelta{{Text: "Hello"}, {Text: " world"}, {Done: true}}}
	w := New(client, nil)
	emitter := &fakeEmitter{}

	text, err := w.Write(context.Background(), emitter, Input{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("expected concatenated text, got %q", text)
	}
	if len(emitter.blockIDs) != 1 {
		t.Fatalf("expected exactly one text block allocated, got %d", len(emitter.blockIDs))
	}
	// 2 append patches + 1 done patch
	if len(emitter.patches) != 3 {
		t.Fatalf("expected 3 patches (2 appends + done), got %d", len(emitter.patches))
	}
}

func TestWriteAppendsErrorNoteOnStreamFailure(t *testing.T) {
	client := &fakeStreamClient{deltas: []llmclient.TextDelta{{Text: "partial"}}, err: errors.New("upstream died")}
	w := New(client, nil)
	emitter := &fakeEmitter{}

	_, err := w.Write(context.Background(), emitter, Input{Query: "q"})
	if err == nil {
		t.Fatal("expected stream failure to propagate")
	}
	if len(emitter.blockIDs) != 1 {
		t.Fatalf("expected a block to have been allocated before failure, got %d", len(emitter.blockIDs))
	}
	// 1 append for "partial" + 1 append for the error note
	if len(emitter.patches) != 2 {
		t.Fatalf("expected 2 patches (partial text + error note), got %d", len(emitter.patches))
	}
}

func TestWriteWithNoTextNeverAllocatesBlock(t *testing.T) {
	client := &fakeStreamClient{deltas: []llmclient.TextDelta{{Done: true}}}
	w := New(client, nil)
	emitter := &fakeEmitter{}

	text, err := w.Write(context.Background(), emitter, Input{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
	if len(emitter.blockIDs) != 0 {
		t.Fatalf("expected no block allocated, got %d", len(emitter.blockIDs))
	}
}
