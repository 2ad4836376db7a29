package llm

import "strings"

// ChatRequest is one inbound user turn.
type ChatRequest struct {
	Message string `json:"message"`
	// PreviousResponseId references a prior generation on the upstream
	// provider. It is opaque and passed through verbatim.
	PreviousResponseId string `json:"previousResponseId,omitempty"`
}

// Validate reports an input error when the message is blank.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return &Error{Kind: ErrKindInput, Message: "message must not be empty"}
	}
	return nil
}

type EventType string

const (
	EventDelta   EventType = "delta"
	EventDone    EventType = "done"
	EventFailure EventType = "failure"
)

// Event is a provider-agnostic stream event. Exactly one of Text,
// ResponseId or Err is meaningful, depending on Type.
type Event struct {
	Type       EventType
	Text       string
	ResponseId string
	Err        *Error
}

func DeltaEvent(text string) Event {
	return Event{Type: EventDelta, Text: text}
}

func DoneEvent(responseId string) Event {
	return Event{Type: EventDone, ResponseId: responseId}
}

func FailureEvent(err *Error) Event {
	return Event{Type: EventFailure, Err: err}
}

// ProviderConfig holds the credentials and endpoint for a single upstream
// vendor. It is read once at factory construction and never mutated.
type ProviderConfig struct {
	APIKey       string `koanf:"api_key"`
	BaseURL      string `koanf:"base_url"`
	Model        string `koanf:"model"`
	SystemPrompt string `koanf:"-"`
	MaxTokens    int    `koanf:"max_tokens"`
}

func (c ProviderConfig) modelOr(fallback string) string {
	if c.Model != "" {
		return c.Model
	}
	return fallback
}
