package handler

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"researchagent/internal/agent/action"
	"researchagent/internal/agent/admission"
	"researchagent/internal/agent/classifier"
	"researchagent/internal/agent/followup"
	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
	"researchagent/internal/agent/orchestrator"
	"researchagent/internal/agent/research"
	"researchagent/internal/agent/session"
	"researchagent/internal/agent/widget"
	"researchagent/internal/agent/writer"
)

type fakeLLM struct{}

func (f *fakeLLM) Generate(ctx context.Context, req llmclient.GenerateRequest) (*llmclient.GenerateResponse, error) {
	switch {
	case strings.Contains(req.System, "routing classifier"):
		return &llmclient.GenerateResponse{Text: `{"skipSearch":true,"standaloneFollowUp":"q"}`}, nil
	case strings.Contains(req.System, "next question"):
		return &llmclient.GenerateResponse{Text: `[]`}, nil
	default:
		return &llmclient.GenerateResponse{ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "done"}}}, nil
	}
}

func (f *fakeLLM) StreamText(ctx context.Context, req llmclient.GenerateRequest) (<-chan llmclient.TextDelta, <-chan error) {
	deltaCh := make(chan llmclient.TextDelta, 2)
	errCh := make(chan error, 1)
	deltaCh <- llmclient.TextDelta{Text: "hi"}
	deltaCh <- llmclient.TextDelta{Done: true}
	close(deltaCh)
	errCh <- nil
	close(errCh)
	return deltaCh, errCh
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyUserID(token string) (string, error) {
	if token == "valid" {
		return "user-1", nil
	}
	return "", fiber.NewError(fiber.StatusUnauthorized)
}

func newTestHandler() *ResearchHandler {
	llm := &fakeLLM{}
	limiter := admission.NewRateLimiter(1000, 1000)
	gate := admission.NewGate(admission.Params{MaxActivePerUser: 10, MaxActiveGlobal: 10, MaxQueueDepth: 10})
	admitter := admission.NewAdmitter(limiter, gate, nil)
	cl := classifier.New(llm, nil)
	widgetExec := widget.NewExecutor(widget.NewRegistry(), time.Second, nil)
	reg := action.NewRegistry()
	reg.Register(action.NewDone())
	researchLoop := research.New(llm, reg, nil)
	w := writer.New(llm, nil)
	fg := followup.New(llm, nil)
	o := orchestrator.New(admitter, cl, widgetExec, researchLoop, w, fg,
		orchestrator.ConfigIterationLimits{Speed: 1, Balanced: 1, Quality: 1}, nil)
	return NewResearchHandler(o, fakeVerifier{}, NewSessionStore(time.Minute), nil)
}

func newTestApp() *fiber.App {
	h := newTestHandler()
	app := fiber.New()
	app.Post("/api/research", h.StartResearch)
	app.Get("/api/sessions/:id/events", h.ReconnectSession)
	return app
}

func TestStartResearchRejectsMissingAuth(t *testing.T) {
	app := newTestApp()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{"query":"hello"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStartResearchRejectsEmptyQuery(t *testing.T) {
	app := newTestApp()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid")

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStartResearchStreamsEndEvent(t *testing.T) {
	app := newTestApp()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{"query":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid")

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	found := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, `"kind":"end"`) {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected an end event in the SSE stream")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}

// TestReconnectSessionSkipsAlreadySeenEvents guards against a prior bug
// where ReconnectSession replayed missed events and then subscribed with
// full-log replay again, resending everything from event 1 on every
// reconnect (violating the no-duplicates/no-gaps round trip).
func TestReconnectSessionSkipsAlreadySeenEvents(t *testing.T) {
	store := NewSessionStore(time.Minute)
	sess := session.New(nil)
	store.Put(sess)

	var lastSeen int64
	for i := 0; i < 3; i++ {
		ev, err := sess.EmitBlock(sess.NewBlockID(), model.BlockKindText, sess.NextBlockIndex(), &model.TextValue{})
		if err != nil {
			t.Fatalf("unexpected error emitting block: %v", err)
		}
		lastSeen = ev.EventID
	}

	app := fiber.New()
	h := NewResearchHandler(nil, fakeVerifier{}, store, nil)
	app.Get("/api/sessions/:id/events", h.ReconnectSession)

	go func() {
		time.Sleep(50 * time.Millisecond)
		sess.EmitEnd(model.FinalAggregate{})
	}()

	url := "/api/sessions/" + sess.ID() + "/events?lastEventId=" + strconv.FormatInt(lastSeen, 10)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer valid")

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "id: ") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(line, "id: "), 10, 64)
		if err == nil && id <= lastSeen {
			t.Fatalf("reconnect resent already-seen event id %d (lastEventId=%d)", id, lastSeen)
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}
