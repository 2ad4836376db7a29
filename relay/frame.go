package relay

import (
	"bytes"
	"io"
	"strings"
)

const (
	FrameEventDelta = "delta"
	FrameEventDone  = "done"
)

// Frame is one server-sent event as written to the client.
type Frame struct {
	Event string
	Data  string
}

func DeltaFrame(text string) Frame {
	return Frame{Event: FrameEventDelta, Data: text}
}

func DoneFrame(responseId string) Frame {
	return Frame{Event: FrameEventDone, Data: responseId}
}

// Encode renders the frame as "event: <event>\ndata: <data>\n\n". Data
// spanning several lines is written as one data line per line, which an SSE
// client joins back together with "\n". CR and CRLF line breaks are
// normalized to LF since the client treats all three as line terminators.
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(len(f.Event) + len(f.Data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(f.Event)
	buf.WriteByte('\n')

	data := f.Data
	if strings.ContainsRune(data, '\r') {
		data = strings.ReplaceAll(data, "\r\n", "\n")
		data = strings.ReplaceAll(data, "\r", "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// WriteTo implements io.WriterTo.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Encode())
	return int64(n), err
}
