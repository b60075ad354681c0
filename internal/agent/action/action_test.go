package action

import (
	"context"
	"testing"

	"researchagent/internal/agent/model"
)

type fakeSearchClient struct {
	results []SearchResult
	err     error
}

func (f *fakeSearchClient) Search(ctx context.Context, query, topic string, maxResults int) ([]SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestWebSearchReturnsChunksAcrossQueries(t *testing.T) {
	client := &fakeSearchClient{results: []SearchResult{{Title: "T", URL: "https://example.com", Snippet: "<b>hi</b>"}}}
	a := NewWebSearch(client)

	out := a.Execute(context.Background(), map[string]interface{}{"queries": []interface{}{"q1", "q2"}}, nil)
	if out.IsError() {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if len(out.Chunks) != 2 {
		t.Fatalf("expected 2 chunks (one per query), got %d", len(out.Chunks))
	}
	if out.Chunks[0].Content != "hi" {
		t.Fatalf("expected sanitized content %q, got %q", "hi", out.Chunks[0].Content)
	}
}

func TestWebSearchErrorsWhenAllQueriesFail(t *testing.T) {
	client := &fakeSearchClient{err: errBoom}
	a := NewWebSearch(client)

	out := a.Execute(context.Background(), map[string]interface{}{"queries": []interface{}{"q1"}}, nil)
	if !out.IsError() {
		t.Fatal("expected error when all backend queries fail")
	}
}

func TestWebSearchRejectsMissingQueries(t *testing.T) {
	a := NewWebSearch(&fakeSearchClient{})
	out := a.Execute(context.Background(), map[string]interface{}{}, nil)
	if !out.IsError() {
		t.Fatal("expected error for missing queries parameter")
	}
}

func TestValidateParamsRejectsUnsafeCall(t *testing.T) {
	a := NewWebSearch(&fakeSearchClient{})
	if err := ValidateParams(a, map[string]interface{}{"queries": "not an array"}); err == nil {
		t.Fatal("expected schema validation to reject a non-array queries field")
	}
}

func TestValidateParamsAcceptsSafeCall(t *testing.T) {
	a := NewWebSearch(&fakeSearchClient{})
	if err := ValidateParams(a, map[string]interface{}{"queries": []interface{}{"q"}}); err != nil {
		t.Fatalf("expected safe call to validate, got %v", err)
	}
}

func TestDoneActionSignalsTermination(t *testing.T) {
	d := NewDone()
	out := d.Execute(context.Background(), nil, nil)
	if !out.Done {
		t.Fatal("expected done=true")
	}
}

func TestRegistryExecuteAllHandlesUnknownAndFailingActions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewWebSearch(&fakeSearchClient{results: []SearchResult{{Title: "T", URL: "u", Snippet: "s"}}}))
	reg.Register(NewDone())

	calls := []Call{
		{ToolCallID: "1", Name: "web_search", Params: map[string]interface{}{"queries": []interface{}{"q"}}},
		{ToolCallID: "2", Name: "unknown_tool", Params: nil},
		{ToolCallID: "3", Name: "done", Params: nil},
	}

	results := reg.ExecuteAll(context.Background(), calls, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].IsError() {
		t.Fatalf("expected web_search to succeed, got %v", results[0].Err)
	}
	if !results[1].IsError() {
		t.Fatal("expected unknown tool to produce an error output")
	}
	if !results[2].Done {
		t.Fatal("expected done output to carry Done=true")
	}
}

func TestAvailableActionsFiltersByClassifier(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewAcademicSearch(&fakeSearchClient{}))
	reg.Register(NewDone())

	available := reg.AvailableActions(model.ClassifierOutput{AcademicSearch: false})
	for _, a := range available {
		if a.Name() == "academic_search" {
			t.Fatal("expected academic_search to be excluded when the classifier flag is false")
		}
	}

	available = reg.AvailableActions(model.ClassifierOutput{AcademicSearch: true})
	found := false
	for _, a := range available {
		if a.Name() == "academic_search" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected academic_search to be included when the classifier flag is true")
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
