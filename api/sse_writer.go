package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chatrelay/relay"

	"github.com/gin-gonic/gin"
)

// sseWriter streams relay frames to the client. Headers and the status line
// go out with the first frame, so a failure before then can still be
// answered with a JSON error.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func newSSEWriter(c *gin.Context) *sseWriter {
	return &sseWriter{c: c}
}

// WriteFrame bounds the write by ctx: the connection's write deadline
// follows the context deadline and is pulled in to now if ctx is canceled,
// which fails a write stuck on a client that stopped reading.
func (w *sseWriter) WriteFrame(ctx context.Context, frame relay.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rc := http.NewResponseController(w.c.Writer)
	if deadline, ok := ctx.Deadline(); ok {
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = rc.SetWriteDeadline(time.Now())
	})
	defer stop()

	if !w.started {
		header := w.c.Writer.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		w.c.Status(http.StatusOK)
		w.started = true
	}

	if _, err := frame.WriteTo(w.c.Writer); err != nil {
		return err
	}
	return rc.Flush()
}
