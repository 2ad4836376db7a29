package api

import (
	"errors"
	"net/http"

	"chatrelay/llm"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type ChatStreamRequest struct {
	Message            string `json:"message"`
	PreviousResponseId string `json:"previousResponseId"`
	// LegacyPreviousResponseId is the snake_case spelling older clients send.
	LegacyPreviousResponseId string `json:"previous_response_id"`
}

func (r ChatStreamRequest) toChatRequest() llm.ChatRequest {
	previous := r.PreviousResponseId
	if previous == "" {
		previous = r.LegacyPreviousResponseId
	}
	return llm.ChatRequest{Message: r.Message, PreviousResponseId: previous}
}

// ChatStreamHandler relays one chat turn as text/event-stream. Errors found
// before the first frame get a JSON error response; after that the stream is
// ended without a done frame.
func (ctrl *Controller) ChatStreamHandler(c *gin.Context) {
	var body ChatStreamRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "kind": llm.ErrKindInput})
		return
	}

	result, err := ctrl.relay.Handle(c.Request.Context(), body.toChatRequest(), newSSEWriter(c))
	if err == nil {
		return
	}
	if result.Started {
		c.Abort()
		return
	}
	if llm.IsKind(err, llm.ErrKindCanceled) {
		// nobody is listening any more
		c.Abort()
		return
	}

	status := StatusForError(err)
	kind := llm.ErrKindUnknown
	message := "upstream provider failed"
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		kind = llmErr.Kind
		if llmErr.Message != "" {
			message = llmErr.Message
		}
	}
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Int("status", status).Msg("chat stream failed before first frame")
	}
	c.JSON(status, gin.H{"error": message, "kind": kind})
}

// StatusForError maps a relay error to the HTTP status used when no frame
// has been sent yet.
func StatusForError(err error) int {
	llmErr, ok := llm.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch llmErr.Kind {
	case llm.ErrKindInput:
		return http.StatusBadRequest
	case llm.ErrKindConfig:
		return http.StatusInternalServerError
	case llm.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case llm.ErrKindCanceled:
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusBadGateway
	}
}
