// Package orchestrator wires the full pipeline — admission, session,
// classifier, widget/research fan-out, writer, follow-ups, and final
// aggregation — and owns per-request cancellation (spec.md §4.9).
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"researchagent/internal/agent/admission"
	"researchagent/internal/agent/classifier"
	"researchagent/internal/agent/followup"
	"researchagent/internal/agent/model"
	"researchagent/internal/agent/research"
	"researchagent/internal/agent/session"
	"researchagent/internal/agent/widget"
	"researchagent/internal/agent/writer"
)

// Request is one inbound turn (spec.md §6's request fields). The
// chatId/messageId correlation fields are carried neither here nor by
// the handler's request body.
type Request struct {
	Query              string
	History            []model.ChatTurn
	Mode               Mode
	SystemInstructions string

	// IsFollowUp marks a request originating from a previously
	// suggested follow-up query, which the admission gate serves ahead
	// of fresh queries (spec.md §4.2: "priority (follow-ups > fresh
	// queries)"). The request schema has no other signal for this, so
	// the transport layer is responsible for setting it (DESIGN.md
	// Open Question decision 4).
	IsFollowUp bool
}

// Orchestrator composes one instance of every pipeline component.
type Orchestrator struct {
	admitter   *admission.Admitter
	classifier *classifier.Classifier
	widgets    *widget.Executor
	research   *research.Loop
	writer     *writer.Writer
	followups  *followup.Generator
	limits     IterationLimits
	logger     *slog.Logger
}

// New creates an Orchestrator. Any nil IterationLimits falls back to
// DefaultIterationLimits.
func New(
	admitter *admission.Admitter,
	cl *classifier.Classifier,
	widgets *widget.Executor,
	researchLoop *research.Loop,
	w *writer.Writer,
	followups *followup.Generator,
	limits IterationLimits,
	logger *slog.Logger,
) *Orchestrator {
	if limits == nil {
		limits = DefaultIterationLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		admitter:   admitter,
		classifier: cl,
		widgets:    widgets,
		research:   researchLoop,
		writer:     w,
		followups:  followups,
		limits:     limits,
		logger:     logger,
	}
}

// Start admits userID's request, opens a session, and launches the
// pipeline in the background, returning the session immediately so the
// transport can subscribe before any event is emitted (spec.md §4.9,
// steps 1-2). The caller must eventually cancel the context passed to
// the background pipeline via ctx — typically on client disconnect
// (spec.md §5: "Client disconnect -> abort").
func (o *Orchestrator) Start(ctx context.Context, userID string, req Request) (*session.Session, error) {
	priority := admission.PriorityFreshQuery
	if req.IsFollowUp {
		priority = admission.PriorityFollowUp
	}

	ticket, err := o.admitter.Admit(ctx, userID, priority)
	if err != nil {
		return nil, err
	}

	sess := session.New(o.logger)
	go o.run(ctx, sess, ticket, req)
	return sess, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, ticket *admission.Ticket, req Request) {
	defer ticket.Release()

	if _, err := sess.EmitBlock(sess.NewBlockID(), model.BlockKindText, sess.NextBlockIndex(), &model.TextValue{}); err != nil {
		o.logger.Error("failed to announce session", "session_id", sess.ID(), "error", err)
		return
	}

	classifierOut := o.classifier.Classify(ctx, req.Query, req.History)
	query := classifierOut.StandaloneFollowUp

	var (
		widgetResult   widget.Result
		researchResult research.Result
		wg             sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		widgetResult = o.widgets.Run(ctx, sess, widget.RunInput{Query: query, History: req.History}, classifierOut)
	}()
	go func() {
		defer wg.Done()
		maxIterations := o.limits.MaxIterations(req.Mode)
		researchResult = o.research.Run(ctx, sess, query, classifierOut, maxIterations)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		_, _ = sess.EmitError("cancelled", ctx.Err().Error())
		return
	}

	_, err := o.writer.Write(ctx, sess, writer.Input{
		Query:      query,
		History:    req.History,
		Chunks:     researchResult.Chunks,
		LLMContext: widgetResult.LLMContexts,
	})
	if err != nil {
		o.logger.Warn("writer failed", "session_id", sess.ID(), "error", err)
		_, _ = sess.EmitError("writer_failed", err.Error())
		return
	}

	textBlocks := sess.TextBlocksInOrder()
	answer := concatText(textBlocks)

	suggestions := o.followups.Generate(ctx, followup.Input{
		Query:   query,
		Answer:  answer,
		Cards:   flattenCards(widgetResult.CardsByType),
		History: req.History,
	})

	final := buildFinalAggregate(answer, suggestions, researchResult, widgetResult)
	if _, err := sess.EmitEnd(final); err != nil {
		o.logger.Warn("failed to emit end event", "session_id", sess.ID(), "error", err)
	}
}

func flattenCards(cardsByType map[string][]model.Card) []model.Card {
	var out []model.Card
	for _, cards := range cardsByType {
		out = append(out, cards...)
	}
	return out
}
