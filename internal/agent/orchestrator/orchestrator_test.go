package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"researchagent/internal/agent/action"
	"researchagent/internal/agent/admission"
	"researchagent/internal/agent/classifier"
	"researchagent/internal/agent/followup"
	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
	"researchagent/internal/agent/research"
	"researchagent/internal/agent/session"
	"researchagent/internal/agent/widget"
	"researchagent/internal/agent/writer"
)

// fakeLLM routes Generate/StreamText behavior by inspecting which
// component's system prompt issued the call, since every structured-call
// component shares the llmclient.Client interface.
type fakeLLM struct {
	classifyText string
	followupText string
	streamDeltas []llmclient.TextDelta
}

func (f *fakeLLM) Generate(ctx context.Context, req llmclient.GenerateRequest) (*llmclient.GenerateResponse, error) {
	switch {
	case strings.Contains(req.System, "routing classifier"):
		return &llmclient.GenerateResponse{Text: f.classifyText}, nil
	case strings.Contains(req.System, "next question"):
		return &llmclient.GenerateResponse{Text: f.followupText}, nil
	default:
		return &llmclient.GenerateResponse{ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "done"}}}, nil
	}
}

func (f *fakeLLM) StreamText(ctx context.Context, req llmclient.GenerateRequest) (<-chan llmclient.TextDelta, <-chan error) {
	deltaCh := make(chan llmclient.TextDelta, len(f.streamDeltas))
	errCh := make(chan error, 1)
	for _, d := range f.streamDeltas {
		deltaCh <- d
	}
	close(deltaCh)
	errCh <- nil
	close(errCh)
	return deltaCh, errCh
}

func waitForEnd(t *testing.T, sess *session.Session) model.FinalAggregate {
	t.Helper()
	done := make(chan model.FinalAggregate, 1)
	unsub := sess.Subscribe(func(ev model.Event) error {
		if ev.Kind == model.EventKindEnd {
			final, _ := ev.Payload.(model.FinalAggregate)
			select {
			case done <- final:
			default:
			}
		}
		return nil
	})
	defer unsub()

	select {
	case final := <-done:
		return final
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for end event")
		return model.FinalAggregate{}
	}
}

func newTestAdmitter(params admission.Params) (*admission.Admitter, *admission.Gate) {
	limiter := admission.NewRateLimiter(1000, 1000)
	gate := admission.NewGate(params)
	return admission.NewAdmitter(limiter, gate, nil), gate
}

func newTestOrchestrator(llm *fakeLLM) (*Orchestrator, *admission.Gate) {
	admitter, gate := newTestAdmitter(admission.Params{MaxActivePerUser: 10, MaxActiveGlobal: 10, MaxQueueDepth: 10})
	cl := classifier.New(llm, nil)
	widgetExec := widget.NewExecutor(widget.NewRegistry(), time.Second, nil)
	reg := action.NewRegistry()
	reg.Register(action.NewDone())
	researchLoop := research.New(llm, reg, nil)
	w := writer.New(llm, nil)
	fg := followup.New(llm, nil)

	return New(admitter, cl, widgetExec, researchLoop, w, fg, ConfigIterationLimits{Speed: 1, Balanced: 1, Quality: 1}, nil), gate
}

func TestOrchestratorProducesFinalAggregateFromSkipSearchTurn(t *testing.T) {
	llm := &fakeLLM{
		classifyText: `{"skipSearch":true,"standaloneFollowUp":"resolved query"}`,
		followupText: `["A good next question?"]`,
		streamDeltas: []llmclient.TextDelta{{Text: "Hello"}, {Text: " world"}, {Done: true}},
	}
	o, _ := newTestOrchestrator(llm)

	sess, err := o.Start(context.Background(), "user-1", Request{Query: "original query", Mode: ModeBalanced})
	if err != nil {
		t.Fatalf("unexpected admission error: %v", err)
	}

	final := waitForEnd(t, sess)
	if final.Answer != "Hello world" {
		t.Fatalf("expected concatenated answer, got %q", final.Answer)
	}
	if len(final.FollowUpSuggestions) != 1 || final.FollowUpSuggestions[0] != "A good next question?" {
		t.Fatalf("expected one follow-up suggestion, got %v", final.FollowUpSuggestions)
	}
}

func TestOrchestratorReleasesAdmissionTicketOnCompletion(t *testing.T) {
	llm := &fakeLLM{
		classifyText: `{"skipSearch":true,"standaloneFollowUp":"q"}`,
		followupText: `[]`,
		streamDeltas: []llmclient.TextDelta{{Done: true}},
	}
	o, gate := newTestOrchestrator(llm)

	sess, err := o.Start(context.Background(), "user-1", Request{Query: "q", Mode: ModeBalanced})
	if err != nil {
		t.Fatalf("unexpected admission error: %v", err)
	}
	waitForEnd(t, sess)

	if gate.ActiveGlobal() != 0 {
		t.Fatalf("expected admission ticket released, got %d active", gate.ActiveGlobal())
	}
}

func TestOrchestratorStartReturnsAdmissionErrorWithoutLaunchingPipeline(t *testing.T) {
	admitter, _ := newTestAdmitter(admission.Params{MaxActivePerUser: 0, MaxActiveGlobal: 1, MaxQueueDepth: 0})
	llm := &fakeLLM{classifyText: `{"skipSearch":true,"standaloneFollowUp":"q"}`, followupText: `[]`}
	o := New(admitter, classifier.New(llm, nil), widget.NewExecutor(widget.NewRegistry(), time.Second, nil),
		research.New(llm, action.NewRegistry(), nil), writer.New(llm, nil), followup.New(llm, nil),
		ConfigIterationLimits{Speed: 1, Balanced: 1, Quality: 1}, nil)

	_, err := o.Start(context.Background(), "user-a", Request{Query: "fresh"})
	if err == nil {
		t.Fatal("expected admission to reject a request at zero per-user capacity")
	}
}

func TestOrchestratorStartReturnsAdmissionErrorWhenRateLimited(t *testing.T) {
	limiter := admission.NewRateLimiter(1, 0.001)
	gate := admission.NewGate(admission.Params{MaxActivePerUser: 10, MaxActiveGlobal: 10, MaxQueueDepth: 10})
	admitter := admission.NewAdmitter(limiter, gate, nil)

	llm := &fakeLLM{classifyText: `{"skipSearch":true,"standaloneFollowUp":"q"}`, followupText: `[]`}
	o := New(admitter, classifier.New(llm, nil), widget.NewExecutor(widget.NewRegistry(), time.Second, nil),
		research.New(llm, action.NewRegistry(), nil), writer.New(llm, nil), followup.New(llm, nil),
		ConfigIterationLimits{Speed: 1, Balanced: 1, Quality: 1}, nil)

	if _, err := o.Start(context.Background(), "user-a", Request{Query: "fresh"}); err != nil {
		t.Fatalf("expected the first request to consume the only token, got %v", err)
	}
	if _, err := o.Start(context.Background(), "user-a", Request{Query: "fresh"}); err != admission.ErrRateLimited {
		t.Fatalf("expected ErrRateLimited on the second immediate request, got %v", err)
	}
}
