// Package research implements the iterative tool-calling loop that
// decides what to search and when to stop (spec.md §4.6).
package research

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"researchagent/internal/agent/action"
	"researchagent/internal/agent/llmclient"
	"researchagent/internal/agent/model"
)

const systemPrompt = `You are the research planner for a search assistant.
Decide what, if anything, needs to be searched to answer the user's
question well. Call one or more of the available search tools, or call
"done" once you have enough information. Prefer calling "done" as soon
as the accumulated results are sufficient; do not over-search.`

// ProgressEmitter is the subset of session.Session the loop needs to
// report progress (spec.md §4.6: "emit a researchProgress event").
type ProgressEmitter interface {
	EmitResearchProgress(step, maxSteps int, actionNames []string) (model.Event, error)
}

// Loop runs the planning/executing state machine for one request.
type Loop struct {
	llm      llmclient.Client
	registry *action.Registry
	logger   *slog.Logger
}

// New creates a Loop.
func New(llm llmclient.Client, registry *action.Registry, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{llm: llm, registry: registry, logger: logger}
}

// Result is the loop's accumulated output (spec.md §4.6: "union of all
// chunks across iterations; deduplicated images; deduplicated videos").
type Result struct {
	Chunks []model.Chunk
	Images []string
	Videos []string
}

// Run executes the state machine. If classifier.SkipSearch is true the
// loop is skipped entirely and an empty Result is returned (spec.md
// §4.6: "init → planning: only if skipSearch == false").
func (l *Loop) Run(ctx context.Context, emitter ProgressEmitter, query string, classifier model.ClassifierOutput, maxIterations int) Result {
	if classifier.SkipSearch {
		return Result{}
	}

	available := l.registry.AvailableActions(classifier)
	tools := toolSpecs(available)

	transcript := []llmclient.Message{{Role: "user", Content: query}}

	var (
		chunks    []model.Chunk
		images    []string
		seenImage = make(map[string]bool)
		videos    []string
		seenVideo = make(map[string]bool)
		done      bool
	)

	for step := 1; step <= maxIterations; step++ {
		if ctx.Err() != nil {
			break
		}

		resp, err := l.llm.Generate(ctx, llmclient.GenerateRequest{
			System:   systemPrompt,
			Messages: transcript,
			Tools:    tools,
		})
		if err != nil {
			l.logger.Warn("research planning call failed, stopping loop", "error", err, "step", step)
			break
		}

		safeCalls := l.filterSafe(resp.ToolCalls)
		if len(safeCalls) == 0 {
			// All calls (if any) were unsafe or there were none: this
			// iteration counts against the budget but the transcript is
			// left unchanged (spec.md §4.6: "go back to planning with
			// the previous transcript unchanged").
			continue
		}

		calls := make([]action.Call, len(safeCalls))
		for i, tc := range safeCalls {
			calls[i] = action.Call{ToolCallID: tc.ID, Name: tc.Name, Params: tc.Arguments}
		}

		outputs := l.registry.ExecuteAll(ctx, calls, nil)

		transcript = appendToolRound(transcript, safeCalls, outputs)

		actionNames := make([]string, len(safeCalls))
		for i, tc := range safeCalls {
			actionNames[i] = tc.Name
		}
		if _, err := emitter.EmitResearchProgress(step, maxIterations, actionNames); err != nil {
			l.logger.Warn("failed to emit research progress", "error", err)
		}

		for _, out := range outputs {
			if out.Done {
				done = true
			}
			if out.IsError() {
				continue
			}
			chunks = append(chunks, out.Chunks...)
			for _, img := range out.Images {
				if !seenImage[img] {
					seenImage[img] = true
					images = append(images, img)
				}
			}
			for _, vid := range out.Videos {
				if !seenVideo[vid] {
					seenVideo[vid] = true
					videos = append(videos, vid)
				}
			}
		}

		if done {
			break
		}
	}

	return Result{Chunks: chunks, Images: images, Videos: videos}
}

// filterSafe keeps only tool calls whose parameters validate against
// their action's schema (spec.md §4.6: "safe-list filtering happens
// before any execution").
func (l *Loop) filterSafe(calls []llmclient.ToolCall) []llmclient.ToolCall {
	var safe []llmclient.ToolCall
	for _, tc := range calls {
		a := l.registry.Get(tc.Name)
		if a == nil {
			continue
		}
		if err := action.ValidateParams(a, tc.Arguments); err != nil {
			l.logger.Warn("dropping unsafe tool call", "tool", tc.Name, "error", err)
			continue
		}
		safe = append(safe, tc)
	}
	return safe
}

func toolSpecs(actions []action.Action) []llmclient.ToolSpec {
	specs := make([]llmclient.ToolSpec, len(actions))
	for i, a := range actions {
		specs[i] = llmclient.ToolSpec{
			Name:        a.Name(),
			Description: a.Description(),
			Parameters:  a.ParameterSchema(),
		}
	}
	return specs
}

// appendToolRound appends the assistant's tool_use message and the
// paired user tool_result message for one round (spec.md §4.6: "append
// an assistant tool_calls message ... and per-tool tool result
// messages"). Every call gets a result block even if the registry
// somehow didn't return one for it, synthesized as an error result so
// the provider never sees a dangling tool_use — the same guard the
// teacher's MessageBuilderService applies when resuming an interrupted
// turn.
func appendToolRound(transcript []llmclient.Message, calls []llmclient.ToolCall, outputs []model.ActionOutput) []llmclient.Message {
	byCallID := make(map[string]model.ActionOutput, len(outputs))
	for _, out := range outputs {
		byCallID[out.ToolCallID] = out
	}

	results := make([]llmclient.ToolResult, len(calls))
	for i, c := range calls {
		out, ok := byCallID[c.ID]
		if !ok {
			results[i] = llmclient.ToolResult{ToolCallID: c.ID, Content: "tool execution was interrupted", IsError: true}
			continue
		}
		results[i] = llmclient.ToolResult{ToolCallID: c.ID, Content: summarizeOutput(out), IsError: out.IsError()}
	}

	transcript = append(transcript, llmclient.Message{Role: "assistant", ToolCalls: calls})
	transcript = append(transcript, llmclient.Message{Role: "user", ToolResults: results})
	return transcript
}

func summarizeOutput(out model.ActionOutput) string {
	if out.IsError() {
		return out.Name + " failed: " + out.Err.Error()
	}
	if out.Done {
		return "done"
	}
	var b strings.Builder
	b.WriteString(out.Name + " returned " + strconv.Itoa(len(out.Chunks)) + " result(s).")
	for _, c := range out.Chunks {
		b.WriteString("\n- " + c.Title + ": " + c.Content)
	}
	return b.String()
}
