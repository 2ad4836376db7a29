package llm

import (
	"context"
)

// Provider streams a single chat turn from an upstream LLM vendor.
//
// Stream sends zero or more delta events followed by exactly one done event,
// then returns nil. On failure it returns an *Error and sends nothing further.
// Each call opens its own upstream request. Providers MUST NOT close the
// eventChan; the caller owns the channel lifecycle.
type Provider interface {
	Name() string
	Stream(ctx context.Context, request ChatRequest, eventChan chan<- Event) error
}

// StreamEvents runs provider.Stream in the background and exposes it as an
// ordered, finite sequence. A returned error becomes a trailing failure event.
// The channel is closed once the provider returns; cancelling ctx unblocks
// the producer.
func StreamEvents(ctx context.Context, provider Provider, request ChatRequest) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		err := provider.Stream(ctx, request, events)
		if err == nil {
			return
		}
		llmErr, ok := AsError(err)
		if !ok {
			llmErr = classify(provider.Name(), err, 0, "")
		}
		select {
		case events <- FailureEvent(llmErr):
		case <-ctx.Done():
		}
	}()
	return events
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, eventChan chan<- Event, ev Event) error {
	select {
	case eventChan <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
