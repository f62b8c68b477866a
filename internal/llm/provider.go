package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Usage reports token consumption for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Provider is the model capability the review pipeline calls. Concrete
// providers are swappable without behavior change elsewhere.
type Provider interface {
	// Chat sends a system and user prompt and returns the text reply.
	Chat(ctx context.Context, system, user string) (string, error)

	// ChatJSON sends a prompt expected to yield JSON and decodes the reply
	// into out, tolerating fenced-code-block wrapping.
	ChatJSON(ctx context.Context, system, user string, out any) error

	// ChatWithUsage is Chat plus token usage metadata.
	ChatWithUsage(ctx context.Context, system, user string) (string, Usage, error)

	// TestConnection reports whether the provider can reach its backend.
	TestConnection(ctx context.Context) bool
}

// TransientError marks a provider failure worth retrying: network errors,
// rate limits, timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError means the model replied but the content was not
// valid JSON even after fence stripping. Not retried automatically.
type MalformedResponseError struct {
	Raw string // truncated raw response for diagnostics
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v (raw: %s)", e.Err, e.Raw)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Retryable reports whether err should be retried under the standard
// backoff policy. Malformed responses are final; everything else coming out
// of a provider is assumed transient.
func Retryable(err error) bool {
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// maxRawDiagnostic caps how much raw model output is kept on a
// MalformedResponseError.
const maxRawDiagnostic = 512

// ExtractJSON strips markdown code fencing from a model reply, returning
// the inner content. Replies without fencing pass through trimmed.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// DecodeJSON extracts JSON from a model reply and unmarshals it into out.
// Failures return a MalformedResponseError carrying a truncated copy of the
// raw reply.
func DecodeJSON(text string, out any) error {
	cleaned := ExtractJSON(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &MalformedResponseError{Raw: truncate(text, maxRawDiagnostic), Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
