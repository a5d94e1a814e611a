package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/quotecraft/drew/pkg/domain"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines
// communication: one response object out per turn, one input per line in.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(_ context.Context, resp *domain.Response) error {
	return h.Encoder.Encode(resp)
}

// Input accepts an Input object ({"text": ..., "command": {...}}), a JSON
// string, or plain text.
func (h *JSONHandler) Input(ctx context.Context) (domain.Input, error) {
	if err := ctx.Err(); err != nil {
		return domain.Input{}, err
	}
	line, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
		return domain.Input{}, err
	}
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, "{") {
		var in domain.Input
		if err := json.Unmarshal([]byte(line), &in); err == nil {
			return in, nil
		}
	}

	var text string
	if err := json.Unmarshal([]byte(line), &text); err == nil {
		return domain.Input{Text: text}, nil
	}

	// Fallback: plain text
	return domain.Input{Text: line}, nil
}

func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.Encoder.Encode(map[string]string{"system": msg})
}
