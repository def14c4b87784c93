package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindNonOKStatus       ErrorKind = "non_ok_status"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindTransport         ErrorKind = "transport"
)

// ProviderError is returned for every upstream failure of a Service call.
// Invalid arguments are rejected with plain errors before any call is made.
type ProviderError struct {
	Kind   ErrorKind
	Op     string
	Status int // HTTP status for KindNonOKStatus
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsKind reports whether err carries a ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}

func malformed(op string, err error) *ProviderError {
	return &ProviderError{Kind: KindMalformedResponse, Op: op, Err: err}
}

// langchaingo's openai client reports HTTP failures as
// "API returned unexpected status code: 503: <message>".
var statusCodeRe = regexp.MustCompile(`status code: (\d{3})`)

func classifyCallError(ctx context.Context, op string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Op: op, Err: err}
	}
	if m := statusCodeRe.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return &ProviderError{Kind: KindNonOKStatus, Op: op, Status: status, Err: err}
	}
	return &ProviderError{Kind: KindTransport, Op: op, Err: err}
}
