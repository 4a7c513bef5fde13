package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the closed set of extraction failure classes.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindAuthentication    ErrorKind = "authentication"
	KindRateLimit         ErrorKind = "rate_limit"
	KindNetwork           ErrorKind = "network"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindValidation        ErrorKind = "validation"
)

// Kinds lists every kind, in the order they are documented.
var Kinds = []ErrorKind{
	KindUnsupportedFormat,
	KindAuthentication,
	KindRateLimit,
	KindNetwork,
	KindMalformedResponse,
	KindValidation,
}

// Retryable reports whether a caller-level policy may try again without user action.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimit || k == KindNetwork
}

// Valid reports whether k is one of Kinds.
func (k ErrorKind) Valid() bool {
	for _, x := range Kinds {
		if x == k {
			return true
		}
	}
	return false
}

// ExtractionError is a classified adapter failure.
type ExtractionError struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	StatusCode int           // HTTP status when one was received
	RetryAfter time.Duration // vendor hint for rate_limit, zero if absent
	Raw        []byte        // vendor body, kept for diagnostics
	Cause      error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" (")
		b.WriteString(e.Provider)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NewError builds an ExtractionError of the given kind.
func NewError(kind ErrorKind, message string, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: message, Cause: cause}
}

// Errorf is NewError with formatting and no cause.
func Errorf(kind ErrorKind, format string, args ...any) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ClassifyStatus maps a non-2xx vendor response to an ExtractionError.
func ClassifyStatus(status int, body []byte) *ExtractionError {
	msg := vendorMessage(body)
	e := &ExtractionError{StatusCode: status, Raw: body, Message: fmt.Sprintf("status %d", status)}
	if msg != "" {
		e.Message += ": " + msg
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuthentication
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case status == http.StatusRequestTimeout || status >= 500:
		// 529 is Anthropic's "overloaded"; treat like throttling.
		if status == 529 {
			e.Kind = KindRateLimit
		} else {
			e.Kind = KindNetwork
		}
	case status == http.StatusUnsupportedMediaType || status == http.StatusRequestEntityTooLarge:
		e.Kind = KindUnsupportedFormat
	case status >= 400 && looksLikeMediaComplaint(msg):
		e.Kind = KindUnsupportedFormat
	default:
		e.Kind = KindMalformedResponse
	}
	return e
}

// ClassifyTransport maps a client.Do (or SDK transport) error to an ExtractionError.
func ClassifyTransport(err error) *ExtractionError {
	e := &ExtractionError{Kind: KindNetwork, Cause: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Message = "request timed out"
	case errors.Is(err, context.Canceled):
		e.Message = "request cancelled"
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			e.Message = "request timed out"
		} else {
			e.Message = "transport error"
		}
	}
	return e
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func looksLikeMediaComplaint(msg string) bool {
	m := strings.ToLower(msg)
	for _, needle := range []string{"unsupported image", "unsupported file", "invalid image", "image format", "media type", "mime type", "could not process image", "file type"} {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}

// vendorMessage pulls a human message out of the common error envelopes:
// {"error":{"message":..}}, {"error":{"type":..,"message":..}}, {"error":"..."}.
func vendorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var env struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return truncate(strings.TrimSpace(string(body)), 300)
	}
	switch t := env.Error.(type) {
	case string:
		return truncate(t, 300)
	case map[string]any:
		if m, ok := t["message"].(string); ok {
			return truncate(m, 300)
		}
	}
	return truncate(env.Message, 300)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
