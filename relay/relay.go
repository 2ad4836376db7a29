package relay

import (
	"context"
	"errors"
	"time"

	"chatrelay/llm"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var relayTracer = otel.Tracer("chatrelay/relay")

type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StateAwaitingFirstEvent State = "awaiting_first_event"
	StateStreaming          State = "streaming"
	StateCompleted          State = "completed"
	StateAborted            State = "aborted"
)

// Resolver hands out the provider for a configured key. *llm.Factory
// satisfies it.
type Resolver interface {
	Resolve(key string) (llm.Provider, error)
}

// FrameWriter receives frames in order. Each frame must be flushed to the
// client before WriteFrame returns, and a write still blocked when ctx is
// done should fail. The relay stops waiting on a write abandonedWriteGrace
// after ctx is done.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame Frame) error
}

const abandonedWriteGrace = 100 * time.Millisecond

// Result summarizes one relay run. Started reports whether any frame was
// handed to the FrameWriter; once it is true the caller can no longer
// respond with an error status.
type Result struct {
	State      State
	Provider   string
	Started    bool
	Deltas     int
	ResponseId string
}

type Relay struct {
	resolver    Resolver
	providerKey string
	timeout     time.Duration
}

// NewRelay returns a relay that streams from the provider registered under
// providerKey. A zero timeout disables the per-request deadline.
func NewRelay(resolver Resolver, providerKey string, timeout time.Duration) *Relay {
	return &Relay{
		resolver:    resolver,
		providerKey: providerKey,
		timeout:     timeout,
	}
}

func (r *Relay) ProviderKey() string {
	return r.providerKey
}

// Handle drives one provider stream to completion, writing a delta frame per
// text fragment and a single done frame at the end. On any failure it stops
// without writing a done frame and returns an *llm.Error; no error frame is
// ever written.
func (r *Relay) Handle(ctx context.Context, request llm.ChatRequest, out FrameWriter) (result Result, err error) {
	ctx, span := relayTracer.Start(ctx, "relay.Handle")
	defer span.End()

	start := time.Now()
	result = Result{State: StateIdle, Provider: llm.NormalizeKey(r.providerKey)}
	span.SetAttributes(attribute.String("llm.provider", result.Provider))

	defer func() {
		span.SetAttributes(
			attribute.String("relay.state", string(result.State)),
			attribute.Int("relay.deltas", result.Deltas),
			attribute.Bool("relay.started", result.Started),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		logResult(ctx, result, err, time.Since(start))
	}()

	result.State = StateValidating
	if err := request.Validate(); err != nil {
		result.State = StateAborted
		return result, err
	}

	provider, err := r.resolver.Resolve(r.providerKey)
	if err != nil {
		result.State = StateAborted
		return result, err
	}
	result.Provider = provider.Name()

	// cancelling the derived context on return stops the upstream request
	// whichever way the loop below exits
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	result.State = StateAwaitingFirstEvent
	for event := range llm.StreamEvents(ctx, provider, request) {
		if ctx.Err() != nil {
			result.State = StateAborted
			return result, contextError(ctx, result.Provider)
		}

		switch event.Type {
		case llm.EventDelta:
			result.State = StateStreaming
			if err := r.write(ctx, out, DeltaFrame(event.Text), &result); err != nil {
				return result, err
			}
			result.Deltas++

		case llm.EventDone:
			if event.ResponseId == "" {
				result.State = StateAborted
				return result, &llm.Error{Provider: result.Provider, Kind: llm.ErrKindParse, Message: "done event without a response id"}
			}
			if err := r.write(ctx, out, DoneFrame(event.ResponseId), &result); err != nil {
				return result, err
			}
			result.State = StateCompleted
			result.ResponseId = event.ResponseId
			return result, nil

		case llm.EventFailure:
			result.State = StateAborted
			if event.Err == nil {
				return result, &llm.Error{Provider: result.Provider, Kind: llm.ErrKindUnknown, Message: "provider failed without an error"}
			}
			return result, event.Err
		}
	}

	result.State = StateAborted
	if ctx.Err() != nil {
		return result, contextError(ctx, result.Provider)
	}
	return result, &llm.Error{Provider: result.Provider, Kind: llm.ErrKindParse, Message: "stream closed without a done event"}
}

// write hands one frame to out and returns once it is flushed or ctx is
// done, whichever comes first, so a stalled client cannot hold the request
// past its deadline.
func (r *Relay) write(ctx context.Context, out FrameWriter, frame Frame, result *Result) error {
	written := make(chan error, 1)
	go func() {
		written <- out.WriteFrame(ctx, frame)
	}()

	select {
	case err := <-written:
		if err != nil {
			result.State = StateAborted
			if ctx.Err() != nil {
				// the writer gave up because of the deadline; the frame may
				// be partially on the wire
				result.Started = true
				return contextError(ctx, result.Provider)
			}
			return &llm.Error{Provider: result.Provider, Kind: llm.ErrKindCanceled, Message: "client write failed", Cause: err}
		}
		result.Started = true
		return nil
	case <-ctx.Done():
		result.State = StateAborted
		result.Started = true
		select {
		case <-written:
		case <-time.After(abandonedWriteGrace):
			log.Ctx(ctx).Warn().Str("provider", result.Provider).Msg("abandoning blocked client write")
		}
		return contextError(ctx, result.Provider)
	}
}

func contextError(ctx context.Context, provider string) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{Provider: provider, Kind: llm.ErrKindTimeout, Message: "request timed out", Cause: err}
	}
	return &llm.Error{Provider: provider, Kind: llm.ErrKindCanceled, Message: "request canceled", Cause: err}
}

func logResult(ctx context.Context, result Result, err error, elapsed time.Duration) {
	level := zerolog.InfoLevel
	switch {
	case llm.IsKind(err, llm.ErrKindCanceled):
		level = zerolog.DebugLevel
	case err != nil && !llm.IsKind(err, llm.ErrKindInput):
		level = zerolog.WarnLevel
	}

	log.Ctx(ctx).WithLevel(level).
		Str("provider", result.Provider).
		Str("state", string(result.State)).
		Bool("started", result.Started).
		Int("deltas", result.Deltas).
		Str("response_id", result.ResponseId).
		Dur("elapsed", elapsed).
		Err(err).
		Msg("chat relay finished")
}
