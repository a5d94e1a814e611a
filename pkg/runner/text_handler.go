package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/quotecraft/drew/pkg/domain"
)

// ContentRenderer transforms a message before it is printed.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// TextHandler implements the line-oriented terminal interface. Quick replies
// are numbered and "#n" picks the n-th one.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	Prompt   string

	mu      sync.Mutex
	replies []string

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerPrompt sets the input marker; empty disables it.
func WithTextHandlerPrompt(prompt string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = prompt
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		Prompt: "> ",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// initPump starts the reader goroutine once, so that Input can give up on
// ctx without abandoning a half-read line.
func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	defer close(h.inputChan)
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			h.inputChan <- inputResult{err: err}
			return
		}
	}
}

func (h *TextHandler) Output(_ context.Context, resp *domain.Response) error {
	out := resp.Message
	if h.Renderer != nil {
		if rendered, err := h.Renderer(out); err == nil {
			out = rendered
		}
	}
	if _, err := fmt.Fprintln(h.Writer, strings.TrimSpace(out)); err != nil {
		return err
	}
	for i, q := range resp.QuickReplies {
		fmt.Fprintf(h.Writer, "  [%d] %s\n", i+1, q)
	}

	h.mu.Lock()
	h.replies = append([]string(nil), resp.QuickReplies...)
	h.mu.Unlock()
	return nil
}

func (h *TextHandler) Input(ctx context.Context) (domain.Input, error) {
	h.initPump()
	if h.Prompt != "" {
		fmt.Fprint(h.Writer, h.Prompt)
	}

	select {
	case <-ctx.Done():
		return domain.Input{}, ctx.Err()
	case res, ok := <-h.inputChan:
		if !ok {
			return domain.Input{}, io.EOF
		}
		if res.err != nil {
			return domain.Input{}, res.err
		}
		h.mu.Lock()
		replies := h.replies
		h.mu.Unlock()
		return domain.Input{Text: ResolveQuickReply(strings.TrimSpace(res.text), replies)}, nil
	}
}

func (h *TextHandler) SystemOutput(_ context.Context, msg string) error {
	_, err := fmt.Fprintln(h.Writer, msg)
	return err
}

// ResolveQuickReply maps "#n" to the n-th offered quick reply. Anything else,
// including bare numbers which may be product indexes or hours, passes through.
func ResolveQuickReply(input string, replies []string) string {
	if !strings.HasPrefix(input, "#") {
		return input
	}
	n, err := strconv.Atoi(strings.TrimPrefix(input, "#"))
	if err != nil || n < 1 || n > len(replies) {
		return input
	}
	return replies[n-1]
}
