// Package agent implements the orchestration loop: it drives the model
// service round by round, dispatches requested tool calls, and feeds
// results back until the model produces a final answer.
package agent

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/kestrel-ai/kestrel/internal/compose"
	"github.com/kestrel-ai/kestrel/internal/conversation"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/tools"
)

// Status tags the terminal outcome of one Send call.
type Status string

const (
	// StatusAnswered means the model produced a final text answer.
	StatusAnswered Status = "answered"

	// StatusMaxRounds means the round cap was reached before a final
	// answer; Result carries the best available partial content.
	StatusMaxRounds Status = "max_rounds"

	// StatusCancelled means the caller's context was cancelled while
	// the loop was waiting on the model or on tools.
	StatusCancelled Status = "cancelled"

	// StatusFailed means the model service stayed unreachable through
	// the retry budget.
	StatusFailed Status = "failed"
)

// ErrSessionFailed wraps the underlying transport error when the model
// service is unreachable after retries.
var ErrSessionFailed = errors.New("model service unavailable")

// Result is what the caller receives for every Send: either a final
// answer or a clearly tagged terminal outcome — never a bare panic or
// an untyped failure.
type Result struct {
	Status       Status
	Content      string
	Rounds       int // model-service calls issued
	ToolCalls    int // tool invocations dispatched
	InputTokens  int
	OutputTokens int
	Diagnostic   string // populated for non-answered outcomes
}

// Defaults chosen to keep a misbehaving model bounded without cutting
// off legitimate multi-tool exchanges.
const (
	defaultMaxRounds        = 8
	defaultMaxParallelTools = 4
	defaultToolTimeout      = 30 * time.Second
	defaultModelTimeout     = 2 * time.Minute
	defaultModelRetries     = 2
	defaultRetryBackoff     = 500 * time.Millisecond
)

// Session is the aggregate root for one conversation: it owns the turn
// log and a registry snapshot, and holds the model and composer
// handles. Sessions are not shared across goroutines; each
// conversation gets its own.
type Session struct {
	logger   *slog.Logger
	client   llm.Client
	registry *tools.Registry
	composer *compose.Composer // optional
	log      *conversation.Log
	model    string

	maxRounds        int
	maxParallelTools int
	toolTimeout      time.Duration
	modelTimeout     time.Duration
	modelRetries     int
	retryBackoff     time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithComposer enables retrieval-augmented user turns.
func WithComposer(c *compose.Composer) Option {
	return func(s *Session) { s.composer = c }
}

// WithSystemPrompt seeds the conversation with a system turn.
func WithSystemPrompt(prompt string) Option {
	return func(s *Session) { s.log = conversation.NewLog(prompt) }
}

// WithMaxRounds caps model-service calls per Send.
func WithMaxRounds(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

// WithMaxParallelTools bounds concurrent tool dispatch within a round.
func WithMaxParallelTools(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxParallelTools = n
		}
	}
}

// WithToolTimeout sets the per-invocation tool deadline.
func WithToolTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.toolTimeout = d
		}
	}
}

// WithModelTimeout sets the per-call model deadline.
func WithModelTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.modelTimeout = d
		}
	}
}

// WithModelRetries sets how many times a failed model call is retried
// before the session fails. Zero disables retrying.
func WithModelRetries(n int, backoff time.Duration) Option {
	return func(s *Session) {
		if n >= 0 {
			s.modelRetries = n
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// New creates a session. The registry is fixed for the session's
// lifetime: register every tool before the first Send.
func New(client llm.Client, model string, registry *tools.Registry, opts ...Option) *Session {
	s := &Session{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		client:           client,
		registry:         registry,
		log:              conversation.NewLog(""),
		model:            model,
		maxRounds:        defaultMaxRounds,
		maxParallelTools: defaultMaxParallelTools,
		toolTimeout:      defaultToolTimeout,
		modelTimeout:     defaultModelTimeout,
		modelRetries:     defaultModelRetries,
		retryBackoff:     defaultRetryBackoff,
	}
	if registry == nil {
		s.registry = tools.NewRegistry()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log exposes the conversation log for caller inspection. The log is
// preserved up to the last appended turn even when Send terminates
// with a failure or cancellation.
func (s *Session) Log() *conversation.Log {
	return s.log
}
