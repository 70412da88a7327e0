// Package ai provides a provider-agnostic AI gateway with task-based routing.
package ai

import "context"

// TaskType defines the kind of generation task, used for logging and
// per-task defaults.
type TaskType int

const (
	TaskPlanning TaskType = iota
	TaskLessonWriting
	TaskLessonRevision
	TaskAnswering
	TaskSuggesting
)

func (t TaskType) String() string {
	switch t {
	case TaskPlanning:
		return "planning"
	case TaskLessonWriting:
		return "lesson_writing"
	case TaskLessonRevision:
		return "lesson_revision"
	case TaskAnswering:
		return "answering"
	case TaskSuggesting:
		return "suggesting"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// UserID attributes token usage to a learner for budget tracking.
	UserID string `json:"-"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}

// Completer is what callers outside this package depend on; *Router
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
