package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains events until the channel closes or the deadline passes.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var collected []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, ev)
		case <-timeout:
			t.Fatal("timed out waiting for event stream to close")
			return nil
		}
	}
}

// streamAll runs provider.Stream to completion and returns what it sent.
func streamAll(t *testing.T, provider Provider, request ChatRequest) ([]Event, error) {
	t.Helper()
	eventChan := make(chan Event, 100)
	err := provider.Stream(context.Background(), request, eventChan)
	close(eventChan)
	var events []Event
	for ev := range eventChan {
		events = append(events, ev)
	}
	return events, err
}

func TestStreamEvents_Success(t *testing.T) {
	t.Parallel()
	stub := &StubProvider{Events: []Event{DeltaEvent("Hi"), DeltaEvent(" there"), DoneEvent("resp-123")}}

	events := collect(t, StreamEvents(context.Background(), stub, ChatRequest{Message: "Hello"}))

	assert.Equal(t, []Event{DeltaEvent("Hi"), DeltaEvent(" there"), DoneEvent("resp-123")}, events)
	assert.Equal(t, 1, stub.Calls())
}

func TestStreamEvents_ErrorBecomesTrailingFailure(t *testing.T) {
	t.Parallel()
	upstreamErr := &Error{Provider: "stub", Kind: ErrKindServer, Message: "overloaded"}
	stub := &StubProvider{Events: []Event{DeltaEvent("partial")}, Err: upstreamErr}

	events := collect(t, StreamEvents(context.Background(), stub, ChatRequest{Message: "Hello"}))

	require.Len(t, events, 2)
	assert.Equal(t, DeltaEvent("partial"), events[0])
	assert.Equal(t, EventFailure, events[1].Type)
	assert.Same(t, upstreamErr, events[1].Err)
}

func TestStreamEvents_CancelUnblocksProducer(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	defer close(hold)
	stub := &StubProvider{Events: []Event{DeltaEvent("a"), DeltaEvent("b")}, Hold: hold}

	ctx, cancel := context.WithCancel(context.Background())
	events := StreamEvents(ctx, stub, ChatRequest{Message: "Hello"})

	first := <-events
	assert.Equal(t, DeltaEvent("a"), first)
	cancel()

	// the producer must exit and close the channel even though nobody reads
	// the remaining events
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStubProvider_RecordsRequest(t *testing.T) {
	t.Parallel()
	stub := &StubProvider{Events: []Event{DoneEvent("r1")}}
	_, err := streamAll(t, stub, ChatRequest{Message: "Hello", PreviousResponseId: "prev-1"})
	require.NoError(t, err)

	request, ok := stub.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "prev-1", request.PreviousResponseId)
}
