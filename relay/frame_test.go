package relay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Encode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{name: "delta", frame: DeltaFrame("Hi"), want: "event: delta\ndata: Hi\n\n"},
		{name: "leading space kept", frame: DeltaFrame(" there"), want: "event: delta\ndata:  there\n\n"},
		{name: "done", frame: DoneFrame("resp-123"), want: "event: done\ndata: resp-123\n\n"},
		{name: "empty data", frame: DeltaFrame(""), want: "event: delta\ndata: \n\n"},
		{name: "multi-line", frame: DeltaFrame("line one\nline two"), want: "event: delta\ndata: line one\ndata: line two\n\n"},
		{name: "trailing newline", frame: DeltaFrame("end\n"), want: "event: delta\ndata: end\ndata: \n\n"},
		{name: "crlf", frame: DeltaFrame("a\r\nb\rc"), want: "event: delta\ndata: a\ndata: b\ndata: c\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.frame.Encode()))
		})
	}
}

func TestFrame_WriteTo(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	n, err := DeltaFrame("Hi").WriteTo(&buf)
	require.NoError(t, err)

	assert.Equal(t, int64(len("event: delta\ndata: Hi\n\n")), n)
	assert.Equal(t, "event: delta\ndata: Hi\n\n", buf.String())
}
