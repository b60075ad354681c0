package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"researchagent/internal/agent/admission"
	"researchagent/internal/agent/authn"
	"researchagent/internal/agent/model"
	"researchagent/internal/agent/orchestrator"
	"researchagent/internal/agent/session"
	"researchagent/internal/config"
)

// ResearchHandler streams one research turn end-to-end over SSE
// (spec.md §6, §7).
type ResearchHandler struct {
	orchestrator *orchestrator.Orchestrator
	verifier     authn.Verifier
	sessions     *SessionStore
	logger       *slog.Logger
}

// NewResearchHandler creates a ResearchHandler.
func NewResearchHandler(o *orchestrator.Orchestrator, verifier authn.Verifier, sessions *SessionStore, logger *slog.Logger) *ResearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchHandler{orchestrator: o, verifier: verifier, sessions: sessions, logger: logger}
}

// researchRequest is the wire shape of the request body (spec.md §6).
type researchRequest struct {
	Query              string           `json:"query"`
	History            []model.ChatTurn `json:"history"`
	Mode               string           `json:"mode"`
	SystemInstructions string           `json:"systemInstructions"`
	IsFollowUp         bool             `json:"isFollowUp"`
}

// StartResearch handles POST /api/research. It admits the request,
// opens a session, and streams its events back as SSE until the
// terminal end/error event or client disconnect (spec.md §5, §7).
func (h *ResearchHandler) StartResearch(c *fiber.Ctx) error {
	userID, err := h.resolveUserID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var body researchRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	query := strings.TrimSpace(body.Query)
	if query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}
	if len(query) > config.MaxQueryLength {
		return fiber.NewError(fiber.StatusBadRequest, "query too long")
	}

	history := body.History
	if len(history) > config.MaxHistoryTurns {
		history = history[len(history)-config.MaxHistoryTurns:]
	}
	systemInstructions := body.SystemInstructions
	if len(systemInstructions) > config.MaxSystemInstructionsLength {
		systemInstructions = systemInstructions[:config.MaxSystemInstructionsLength]
	}

	req := orchestrator.Request{
		Query:              query,
		History:            history,
		Mode:               parseMode(body.Mode),
		SystemInstructions: systemInstructions,
		IsFollowUp:         body.IsFollowUp,
	}

	// The request's lifetime must outlive StartResearch's own fiber.Ctx
	// (the pipeline keeps running, and a client may reconnect against a
	// different handler call entirely), so the pipeline gets its own
	// background context rather than c.Context().
	ctx, cancel := context.WithCancel(context.Background())

	sess, err := h.orchestrator.Start(ctx, userID, req)
	if err != nil {
		cancel()
		return admissionError(err)
	}
	h.sessions.Put(sess)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		streamSession(w, sess, 0, h.logger)
	})

	return nil
}

// ReconnectSession handles GET /api/sessions/:id/events?lastEventId=N,
// replaying missed events then tailing the live stream (spec.md §6).
func (h *ResearchHandler) ReconnectSession(c *fiber.Ctx) error {
	if _, err := h.resolveUserID(c); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id := c.Params("id")
	sess, ok := h.sessions.Get(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	lastEventID := int64(0)
	if raw := c.Query("lastEventId"); raw != "" {
		fmt.Sscanf(raw, "%d", &lastEventID)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamSession(w, sess, lastEventID, h.logger)
	})

	return nil
}

// streamSession subscribes to sess from lastEventID (0 replays the whole
// log, for a freshly started session) and writes every subsequent event
// to w as SSE, sending periodic keepalive comments, until the session
// terminates or a flush failure signals the client disconnected
// (grounded on the teacher's StreamTurn loop).
func streamSession(w *bufio.Writer, sess *session.Session, lastEventID int64, logger *slog.Logger) {
	eventCh := make(chan model.Event, 64)
	unsub := sess.SubscribeFrom(lastEventID, func(ev model.Event) error {
		eventCh <- ev
		if ev.Kind == model.EventKindEnd || ev.Kind == model.EventKindError {
			close(eventCh)
		}
		return nil
	})
	defer unsub()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if !writeEvent(w, ev, logger) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				logger.Info("client disconnected during keepalive", "error", err)
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, ev model.Event, logger *slog.Logger) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to marshal event", "error", err)
		return true
	}
	if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.EventID, payload); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		logger.Info("client disconnected during event write", "error", err)
		return false
	}
	return true
}

func (h *ResearchHandler) resolveUserID(c *fiber.Ctx) (string, error) {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", authn.ErrUnauthorized
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", authn.ErrUnauthorized
	}
	return h.verifier.VerifyUserID(token)
}

func parseMode(raw string) orchestrator.Mode {
	switch orchestrator.Mode(raw) {
	case orchestrator.ModeSpeed, orchestrator.ModeQuality:
		return orchestrator.Mode(raw)
	default:
		return orchestrator.ModeBalanced
	}
}

func admissionError(err error) error {
	switch {
	case err == context.Canceled, err == context.DeadlineExceeded:
		return fiber.NewError(fiber.StatusRequestTimeout, "request cancelled")
	case errors.Is(err, admission.ErrQueueFull):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	}
}
