package llm

import "context"

// PromptMessage is one turn of a conversation in the flattened form sent to
// the provider and to the token counters.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the provider-reported token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest describes one streaming completion call.
type CompletionRequest struct {
	Model    string
	System   string
	Messages []PromptMessage
}

// EventType discriminates stream events.
type EventType int

const (
	// EventDelta carries a chunk of assistant text.
	EventDelta EventType = iota
	// EventDone terminates the stream; Usage may be nil if the provider
	// did not report it.
	EventDone
	// EventError terminates the stream with a provider failure.
	EventError
)

// Event is one element of a completion stream. The channel is closed after
// the terminal EventDone or EventError.
type Event struct {
	Type  EventType
	Delta string
	Usage *Usage
	Err   error
}

// Provider is the streaming text-completion collaborator. Implementations
// must close the returned channel after emitting exactly one terminal event,
// and must honor ctx cancellation.
type Provider interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error)
}
