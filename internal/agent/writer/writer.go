// Package writer produces the final, streamed user-visible answer from
// assembled research chunks and widget context (spec.md §4.7).
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
	"researchagent/internal/agent/session"
)

const systemPrompt = `You are a research assistant writing the final answer to the user.
Use the numbered sources and widget context below when relevant, and
cite sources naturally in prose. Do not fabricate facts not supported
by the provided context or your own general knowledge.`

// errorNote is appended to the last open text block when the stream
// fails mid-output (spec.md §4.7).
const errorNote = "\n\n_The answer was cut short due to an internal error._"

// Emitter is the subset of session.Session the writer needs.
type Emitter interface {
	NewBlockID() string
	NextBlockIndex() int
	EmitBlock(id string, kind model.BlockKind, index int, value interface{}) (model.Event, error)
	UpdateBlock(id string, kind model.BlockKind, patch []model.PatchOp) (model.Event, error)
}

// Writer streams the final answer into one or more text blocks.
type Writer struct {
	llm    llmclient.Client
	logger *slog.Logger
}

// New creates a Writer.
func New(llm llmclient.Client, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{llm: llm, logger: logger}
}

// Input is everything the writer needs to produce an answer.
type Input struct {
	Query      string
	History    []model.ChatTurn
	Chunks     []model.Chunk
	LLMContext []string
}

// Write streams the model's answer into text blocks via emitter. It
// returns the full answer text (used by the orchestrator to build the
// final aggregate) and an error if the stream failed mid-output, in
// which case the caller must emitError after this returns (spec.md
// §4.7: "fail the request with emitError").
func (w *Writer) Write(ctx context.Context, emitter Emitter, in Input) (string, error) {
	req := llmclient.GenerateRequest{
		System:   systemPrompt,
		Messages: buildMessages(in),
	}

	deltas, errs := w.llm.StreamText(ctx, req)

	var (
		blockID   string
		allocated bool
		full      strings.Builder
	)

	for delta := range deltas {
		if delta.Done {
			break
		}
		if delta.Text == "" {
			continue
		}
		if !allocated {
			blockID = emitter.NewBlockID()
			index := emitter.NextBlockIndex()
			if _, err := emitter.EmitBlock(blockID, model.BlockKindText, index, &model.TextValue{}); err != nil {
				return full.String(), fmt.Errorf("writer: emit text block: %w", err)
			}
			allocated = true
		}
		if _, err := emitter.UpdateBlock(blockID, model.BlockKindText, session.AppendTextPatch(delta.Text)); err != nil {
			return full.String(), fmt.Errorf("writer: append text delta: %w", err)
		}
		full.WriteString(delta.Text)
	}

	if err := <-errs; err != nil {
		if allocated {
			_, _ = emitter.UpdateBlock(blockID, model.BlockKindText, session.AppendTextPatch(errorNote))
		}
		return full.String(), fmt.Errorf("writer: stream failed: %w", err)
	}

	if allocated {
		_, _ = emitter.UpdateBlock(blockID, model.BlockKindText, session.MarkTextDonePatch())
	}

	return full.String(), nil
}

func buildMessages(in Input) []llmclient.Message {
	messages := make([]llmclient.Message, 0, len(in.History)+1)
	for _, turn := range in.History {
		messages = append(messages, llmclient.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llmclient.Message{Role: "user", Content: assembleContext(in)})
	return messages
}

// assembleContext serializes chunks as a numbered list with title and
// snippet, and widget contexts as a parallel labeled block (spec.md
// §4.7).
func assembleContext(in Input) string {
	var b strings.Builder
	b.WriteString(in.Query)
	b.WriteString("\n\n")

	if len(in.Chunks) > 0 {
		b.WriteString("Sources:\n")
		for i, c := range in.Chunks {
			b.WriteString(strconv.Itoa(i+1) + ". " + c.Title + " (" + c.URL + "): " + c.Content + "\n")
		}
	}

	if len(in.LLMContext) > 0 {
		b.WriteString("\nWidget context:\n")
		for _, c := range in.LLMContext {
			b.WriteString("- " + c + "\n")
		}
	}

	return b.String()
}
