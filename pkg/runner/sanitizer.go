package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quotecraft/drew/pkg/domain"
)

var (
	// DefaultMaxInputSize is 4KB; quote turns are short.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize is the environment variable to override the default
	EnvMaxInputSize = "DREW_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge  = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8    = errors.New("input contains invalid UTF-8 sequences")
	ErrInvalidCommand = errors.New("invalid command")
)

// SanitizeInput cleans user text by enforcing the size limit, validating
// UTF-8 and stripping control characters other than newline, tab and
// carriage return. Oversized input is rejected, never truncated.
func SanitizeInput(input string) (string, error) {
	limit := MaxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Fast path: nothing to strip.
	if strings.IndexFunc(input, isUnsafeControl) < 0 {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !isUnsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// SanitizeTurn applies SanitizeInput to the text of a turn and to every
// string argument of its command. The command name must be a plain
// identifier.
func SanitizeTurn(in domain.Input) (domain.Input, error) {
	text, err := SanitizeInput(in.Text)
	if err != nil {
		return domain.Input{}, err
	}
	out := domain.Input{Text: text}
	if in.Command == nil {
		return out, nil
	}

	name := strings.TrimSpace(in.Command.Name)
	if name == "" || len(name) > 64 || strings.IndexFunc(name, notIdentifier) >= 0 {
		return domain.Input{}, fmt.Errorf("%w: name %q", ErrInvalidCommand, in.Command.Name)
	}

	cmd := &domain.Command{Name: name}
	if len(in.Command.Args) > 0 {
		cmd.Args = make(map[string]any, len(in.Command.Args))
		for k, v := range in.Command.Args {
			clean, err := sanitizeArg(v)
			if err != nil {
				return domain.Input{}, fmt.Errorf("command arg %q: %w", k, err)
			}
			cmd.Args[k] = clean
		}
	}
	out.Command = cmd
	return out, nil
}

func sanitizeArg(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return SanitizeInput(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			clean, err := sanitizeArg(e)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			clean, err := sanitizeArg(e)
			if err != nil {
				return nil, err
			}
			out[k] = clean
		}
		return out, nil
	default:
		return v, nil
	}
}

func isUnsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

func notIdentifier(r rune) bool {
	return !(r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

// MaxInputSize returns the configured limit in bytes.
func MaxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
