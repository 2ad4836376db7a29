package llm

import (
	"context"
	"sync/atomic"
)

// StubProvider replays a fixed script of events. It is used in tests of the
// relay and HTTP layers in place of a real vendor.
type StubProvider struct {
	Key    string
	Events []Event
	// Err is returned after Events have been sent.
	Err error
	// Hold, when set, is waited on after Events are sent and before Err is
	// returned, so tests can observe a stream that is still open.
	Hold <-chan struct{}

	calls       atomic.Int32
	lastRequest atomic.Pointer[ChatRequest]
}

func (s *StubProvider) Name() string {
	if s.Key == "" {
		return "stub"
	}
	return s.Key
}

// LastRequest returns the request passed to the most recent Stream call.
func (s *StubProvider) LastRequest() (ChatRequest, bool) {
	r := s.lastRequest.Load()
	if r == nil {
		return ChatRequest{}, false
	}
	return *r, true
}

// Calls returns the number of Stream invocations so far.
func (s *StubProvider) Calls() int {
	return int(s.calls.Load())
}

func (s *StubProvider) Stream(ctx context.Context, request ChatRequest, eventChan chan<- Event) error {
	s.calls.Add(1)
	s.lastRequest.Store(&request)
	for _, ev := range s.Events {
		if ev.Type == EventFailure {
			if ev.Err == nil {
				return &Error{Provider: s.Name(), Kind: ErrKindUnknown}
			}
			return ev.Err
		}
		if err := send(ctx, eventChan, ev); err != nil {
			return classify(s.Name(), err, 0, "")
		}
	}
	if s.Hold != nil {
		select {
		case <-s.Hold:
		case <-ctx.Done():
			return classify(s.Name(), ctx.Err(), 0, "")
		}
	}
	return s.Err
}

// StubConstructor returns a Constructor that always yields provider.
func StubConstructor(provider Provider) Constructor {
	return func(ProviderConfig) (Provider, error) {
		return provider, nil
	}
}
