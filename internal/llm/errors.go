package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrStreamInterrupted is returned from a stream observer tick to abort the
// stream cooperatively. The engine treats it as a clean cancellation, not a
// provider failure: the turn rolls back and no error is surfaced.
var ErrStreamInterrupted = errors.New("stream interrupted")

// RateLimitError indicates the provider rejected the request due to rate
// limiting. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// ContextTooLongError indicates the request exceeded the model's context
// window. Current and Limit are token counts when the provider reports them.
type ContextTooLongError struct {
	Current int
	Limit   int
}

func (e *ContextTooLongError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("context too long: %d > %d tokens", e.Current, e.Limit)
	}
	return "context too long"
}

// InvalidResponseError indicates the provider returned output the decoder
// could not make sense of (for example, a tool-use input buffer that is not
// valid JSON). Not retryable.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid provider response: %s", e.Reason)
}

// StreamError indicates the provider stream delivered an error event or
// failed mid-stream. Not retryable unless the wrapped cause is.
type StreamError struct {
	Reason string
	Cause  error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("stream error: %s", e.Reason)
}

func (e *StreamError) Unwrap() error { return e.Cause }

var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// IsRetryable reports whether err is worth retrying with backoff. Rate
// limits are always retryable; transient transport failures and upstream
// 5xx responses are retried as well.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var ctl *ContextTooLongError
	if errors.As(err, &ctl) {
		return false
	}
	var ire *InvalidResponseError
	if errors.As(err, &ire) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"429",
		"rate limit",
		"too many requests",
		"overloaded",
		"502",
		"503",
		"bad gateway",
		"service unavailable",
		"connection refused",
		"connection reset",
		"timeout",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var contextTooLongRegex = regexp.MustCompile(`(\d+)\s*(?:tokens?\s*)?>\s*(\d+)`)

// classifyProviderError upgrades raw SDK errors into the typed kinds the
// engine's retry policy dispatches on. Errors that match no known pattern
// pass through unchanged.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	var rle *RateLimitError
	var ctl *ContextTooLongError
	if errors.As(err, &rle) || errors.As(err, &ctl) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return &RateLimitError{RetryAfter: RetryAfterHint(err), Message: err.Error()}
	}
	if strings.Contains(msg, "context too long") ||
		strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context_length_exceeded") {
		current, limit := 0, 0
		if m := contextTooLongRegex.FindStringSubmatch(err.Error()); len(m) == 3 {
			current, _ = strconv.Atoi(m[1])
			limit, _ = strconv.Atoi(m[2])
		}
		return &ContextTooLongError{Current: current, Limit: limit}
	}
	return err
}

// RetryAfterHint extracts a provider-suggested retry delay from an error, if
// present. Checks the typed RateLimitError first, then scans the message for
// a "retry after N" fragment.
func RetryAfterHint(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	if m := retryAfterRegex.FindStringSubmatch(err.Error()); len(m) == 2 {
		if secs, perr := strconv.Atoi(m[1]); perr == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
