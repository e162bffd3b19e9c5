// Package agent runs the language-model-driven decision loop. The model picks
// tool calls, results are fed back as tool messages, and the loop ends when
// the model answers in plain text or the iteration cap is reached.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"forge/internal/infra"
	"forge/internal/llm"
)

const (
	defaultMaxIterations = 5
	hardMaxIterations    = 10
)

const systemPrompt = `You are a content-generation assistant with a prepaid credit budget.
Use the provided tools to generate images, video, music or 3D models, or plan_and_execute for multi-step goals.
Report artifact URLs and remaining credits in your final answer. If a tool fails, decide whether to retry, substitute, or explain the failure.`

// LLMClient is the slice of the language-model client the loop needs.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Tools is the callable surface offered to the model.
type Tools interface {
	Catalog() []llm.Tool
	Execute(ctx context.Context, accountID string, call llm.ToolCall) (string, error)
}

// Events receives loop progress for incremental delivery (SSE). Any field may
// be nil.
type Events struct {
	OnStep       func(iteration int)
	OnThinking   func(content string)
	OnToolCalls  func(calls []llm.ToolCall)
	OnToolResult func(name, result string)
	OnResponse   func(content string)
}

// Request is one agent conversation turn.
type Request struct {
	AccountID     string
	Message       string
	History       []llm.Message
	Autonomous    bool
	MaxIterations int
}

// ToolResult pairs a tool name with its textual result.
type ToolResult struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// Result is the loop's final state.
type Result struct {
	Response     string         `json:"response"`
	Iterations   int            `json:"iterations"`
	ToolResults  []ToolResult   `json:"tool_results,omitempty"`
	PendingCalls []llm.ToolCall `json:"pending_calls,omitempty"`
}

// Loop drives bounded agent iterations.
type Loop struct {
	client LLMClient
	tools  Tools
	logger infra.Logger
}

// NewLoop wires a Loop.
func NewLoop(client LLMClient, tools Tools, logger infra.Logger) *Loop {
	return &Loop{client: client, tools: tools, logger: logger}
}

// Run executes the loop. In non-autonomous mode the first batch of tool calls
// is returned to the caller unexecuted for confirmation.
func (l *Loop) Run(ctx context.Context, req Request, ev *Events) (*Result, error) {
	if ev == nil {
		ev = &Events{}
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if maxIterations > hardMaxIterations {
		maxIterations = hardMaxIterations
	}

	messages := append([]llm.Message{}, req.History...)
	if strings.TrimSpace(req.Message) != "" {
		messages = append(messages, llm.Message{Role: "user", Content: req.Message})
	}

	result := &Result{}
	catalog := l.tools.Catalog()
	for iteration := 1; iteration <= maxIterations; iteration++ {
		result.Iterations = iteration
		if ev.OnStep != nil {
			ev.OnStep(iteration)
		}

		resp, err := l.client.Complete(ctx, llm.CompletionRequest{
			System:      systemPrompt,
			Messages:    messages,
			Tools:       catalog,
			Temperature: 0.4,
			MaxTokens:   2048,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}

		calls := resp.ToolCalls
		if len(calls) == 0 {
			// Legacy fallback: some models emit the call as JSON text
			// instead of a structured tool_calls block.
			if call, ok := parseTextToolCall(resp.Content); ok {
				calls = []llm.ToolCall{call}
			}
		}

		if len(calls) == 0 {
			// Plain text is the final answer.
			result.Response = resp.Content
			if ev.OnResponse != nil {
				ev.OnResponse(resp.Content)
			}
			return result, nil
		}

		if resp.Content != "" && ev.OnThinking != nil {
			ev.OnThinking(resp.Content)
		}
		if ev.OnToolCalls != nil {
			ev.OnToolCalls(calls)
		}

		if !req.Autonomous {
			result.PendingCalls = calls
			result.Response = resp.Content
			return result, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: calls})
		for _, call := range calls {
			text, err := l.tools.Execute(ctx, req.AccountID, call)
			if err != nil {
				// Fed back to the model rather than aborting: it decides
				// whether to retry, substitute, or give up.
				text = "FAILED: " + err.Error()
				l.logger.Warn().Str("tool", call.Function.Name).Err(err).Msg("agent: tool execution failed")
			}
			result.ToolResults = append(result.ToolResults, ToolResult{Name: call.Function.Name, Result: text})
			if ev.OnToolResult != nil {
				ev.OnToolResult(call.Function.Name, text)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    text,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}

	result.Response = "Reached the iteration limit before a final answer. Partial results are listed above."
	if ev.OnResponse != nil {
		ev.OnResponse(result.Response)
	}
	return result, nil
}

// parseTextToolCall recognizes a bare {"tool": ..., "arguments": {...}}
// object in the model's text output.
func parseTextToolCall(content string) (llm.ToolCall, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "{") {
		return llm.ToolCall{}, false
	}
	var parsed struct {
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.Tool == "" {
		return llm.ToolCall{}, false
	}
	return llm.ToolCall{
		ID:   "text_" + uuid.NewString()[:8],
		Type: "function",
		Function: llm.FunctionCall{
			Name:      parsed.Tool,
			Arguments: string(parsed.Arguments),
		},
	}, true
}
