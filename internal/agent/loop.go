package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-ai/kestrel/internal/conversation"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/prompts"
)

// Send runs the orchestration loop for one user message and returns a
// tagged terminal Result. The error is non-nil only alongside
// StatusCancelled (the context error) and StatusFailed (wrapping
// ErrSessionFailed); both still carry a Result with diagnostics, and
// the conversation log keeps every turn appended before the failure.
func (s *Session) Send(ctx context.Context, userText string) (*Result, error) {
	if userText == "" {
		return nil, fmt.Errorf("user text is required")
	}

	enriched := userText
	if s.composer != nil {
		enriched = s.composer.Compose(ctx, userText)
	}
	if err := s.log.Append(conversation.Turn{Role: conversation.RoleUser, Content: enriched}); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	toolSchemas := s.registry.Schemas()
	// Temperature pinned at zero: tool selection must be reproducible.
	opts := &llm.Options{Temperature: 0}

	s.logger.Info("send started",
		"model", s.model,
		"tools_available", s.registry.Len(),
		"history", s.log.Len(),
	)

	res := &Result{}
	nudged := false
	for round := 0; round < s.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return s.cancelled(res, err)
		}

		roundStart := time.Now()
		resp, err := s.chatWithRetry(ctx, toolSchemas, opts)
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(res, ctx.Err())
			}
			res.Status = StatusFailed
			res.Diagnostic = fmt.Sprintf("model call failed after %d attempts: %v", s.modelRetries+1, err)
			s.logger.Error("send failed", "round", round, "error", err)
			return res, fmt.Errorf("%w: %v", ErrSessionFailed, err)
		}

		res.Rounds++
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens

		s.logger.Info("model responded",
			"round", round,
			"tool_calls", len(resp.Message.ToolCalls),
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"elapsed", time.Since(roundStart).Round(time.Millisecond),
		)

		// Final text answer — the terminal state of a normal exchange.
		if len(resp.Message.ToolCalls) == 0 {
			content := resp.Message.Content
			if content == "" {
				// The model went quiet. Text it produced alongside an
				// earlier tool request serves as the answer; otherwise
				// nudge once after tool rounds, then fall back. Either
				// way the caller gets a tagged Result, never a bare
				// append failure.
				if prior := s.lastAssistantContent(); prior != "" {
					res.Status = StatusAnswered
					res.Content = prior
					return res, nil
				}
				if res.ToolCalls > 0 && !nudged {
					nudged = true
					if err := s.log.Append(conversation.Turn{
						Role:    conversation.RoleUser,
						Content: prompts.EmptyResponseNudge,
					}); err != nil {
						return nil, fmt.Errorf("append nudge turn: %w", err)
					}
					s.logger.Warn("empty model response, nudging", "round", round)
					continue
				}
				content = prompts.EmptyResponseFallback
				res.Diagnostic = "model returned an empty response"
			}
			if err := s.log.Append(conversation.Turn{
				Role:    conversation.RoleAssistant,
				Content: content,
			}); err != nil {
				return nil, fmt.Errorf("append assistant turn: %w", err)
			}
			res.Status = StatusAnswered
			res.Content = content
			return res, nil
		}

		// Tool round: record the request turn, then dispatch.
		calls := normalizeCallIDs(resp.Message.ToolCalls)
		if err := s.log.Append(conversation.Turn{
			Role:      conversation.RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: calls,
		}); err != nil {
			return nil, fmt.Errorf("append tool request turn: %w", err)
		}

		outputs, err := s.dispatch(ctx, round, calls)
		if err != nil {
			// In-flight results are discarded; the log ends at the
			// assistant turn that requested the tools.
			return s.cancelled(res, err)
		}

		res.ToolCalls += len(calls)
		for i, tc := range calls {
			if err := s.log.Append(conversation.Turn{
				Role:       conversation.RoleTool,
				Content:    outputs[i],
				ToolCallID: tc.ID,
			}); err != nil {
				return nil, fmt.Errorf("append tool turn: %w", err)
			}
		}
	}

	// Round cap reached. Surface the best partial answer rather than
	// looping unbounded; no extra model call is issued.
	res.Status = StatusMaxRounds
	res.Content = s.lastAssistantContent()
	res.Diagnostic = fmt.Sprintf("no final answer after %d rounds", s.maxRounds)
	s.logger.Warn("max rounds reached", "max_rounds", s.maxRounds, "tool_calls", res.ToolCalls)
	return res, nil
}

// chatWithRetry calls the model service with a per-call timeout and a
// small bounded retry with doubling backoff.
func (s *Session) chatWithRetry(ctx context.Context, toolSchemas []map[string]any, opts *llm.Options) (*llm.ChatResponse, error) {
	var lastErr error
	backoff := s.retryBackoff

	for attempt := 0; attempt <= s.modelRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying model call", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
		resp, err := s.client.Chat(callCtx, s.model, s.log.Messages(), toolSchemas, opts)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// dispatch runs every tool call of one round with bounded concurrency
// and a per-call timeout, then returns outputs in request order. Tool
// failures become structured error strings in the output — the model
// gets to see them and self-correct. Only context cancellation aborts
// the round.
func (s *Session) dispatch(ctx context.Context, round int, calls []llm.ToolCall) ([]string, error) {
	outputs := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallelTools)

	for i, tc := range calls {
		i, tc := i, tc
		g.Go(func() error {
			outputs[i] = s.invokeOne(gctx, round, tc)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// invokeOne executes a single tool call under its own deadline. The
// handler runs in a goroutine so a non-cooperative tool cannot stall
// the round past the timeout; a timed-out call reads as a failure.
func (s *Session) invokeOne(ctx context.Context, round int, tc llm.ToolCall) string {
	callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("tool exec",
		"round", round,
		"tool", tc.Function.Name,
		"call_id", tc.ID,
	)

	type invokeResult struct {
		out string
		err error
	}
	done := make(chan invokeResult, 1)
	go func() {
		out, err := s.registry.Invoke(callCtx, tc.Function.Name, tc.Function.Arguments)
		done <- invokeResult{out: out, err: err}
	}()

	var out string
	var err error
	select {
	case r := <-done:
		out, err = r.out, r.err
	case <-callCtx.Done():
		err = fmt.Errorf("tool %q failed: %v", tc.Function.Name, callCtx.Err())
	}

	if err != nil {
		s.logger.Error("tool exec failed",
			"round", round,
			"tool", tc.Function.Name,
			"call_id", tc.ID,
			"error", err,
		)
		return "Error: " + err.Error()
	}

	s.logger.Debug("tool exec done",
		"round", round,
		"tool", tc.Function.Name,
		"call_id", tc.ID,
		"result_len", len(out),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out
}

// normalizeCallIDs ensures every tool call carries an ID so results
// pair unambiguously even when the provider assigns none.
func normalizeCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	copy(out, calls)
	for i := range out {
		if out[i].ID == "" {
			id, err := uuid.NewV7()
			if err == nil {
				out[i].ID = id.String()
			} else {
				out[i].ID = fmt.Sprintf("call-%d", i)
			}
		}
	}
	return out
}

// lastAssistantContent finds the most recent assistant text in the
// log, the best partial answer available at the round cap.
func (s *Session) lastAssistantContent() string {
	snap := s.log.Snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if snap[i].Role == conversation.RoleAssistant && snap[i].Content != "" {
			return snap[i].Content
		}
	}
	return ""
}

func (s *Session) cancelled(res *Result, err error) (*Result, error) {
	res.Status = StatusCancelled
	res.Diagnostic = err.Error()
	s.logger.Warn("send cancelled", "rounds", res.Rounds, "error", err)
	return res, err
}
