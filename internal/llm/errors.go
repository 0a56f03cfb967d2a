package llm

import (
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a failed service call into exactly one failure intent
type Kind int

const (
	// KindUnclassified propagates verbatim and aborts the run
	KindUnclassified Kind = iota

	// KindAuth is fatal: credentials invalid, abort immediately
	KindAuth

	// KindQuota is fatal for this session: daily allocation exhausted,
	// prompt the user to persist state and pause
	KindQuota

	// KindRateLimited is retryable short-term throttling
	KindRateLimited

	// KindOverloaded is retryable transient service unavailability
	KindOverloaded

	// KindParseFailure means the service returned text that cannot be
	// decoded even after the repair pass. Retrying the same input tends to
	// reproduce it; the batch text needs human correction instead.
	KindParseFailure
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth_error"
	case KindQuota:
		return "quota_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindOverloaded:
		return "overloaded"
	case KindParseFailure:
		return "parse_failure"
	}
	return "unclassified"
}

// Retryable reports whether the kind is worth retrying with the same input
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindOverloaded
}

// ServiceError is a classified service failure, returned rather than thrown
// so callers handle each kind explicitly
type ServiceError struct {
	Kind    Kind
	Status  int
	Message string
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("service error (%s, HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("service error (%s): %s", e.Kind, e.Message)
}

// Classify maps a failed service call to exactly one error kind.
// Unrecognized failures stay KindUnclassified and propagate verbatim.
func Classify(err error) Kind {
	if err == nil {
		return KindUnclassified
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}

	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyStatus(status int, message string) Kind {
	msg := strings.ToLower(message)
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429 && (strings.Contains(msg, "quota") || strings.Contains(msg, "billing")):
		return KindQuota
	case status == 429:
		return KindRateLimited
	case status == 529 || status == 503 || status == 502 || status == 500:
		return KindOverloaded
	}
	return classifyMessage(msg)
}

func classifyMessage(msg string) Kind {
	switch {
	case strings.Contains(msg, "invalid api key"), strings.Contains(msg, "authentication"), strings.Contains(msg, "unauthorized"):
		return KindAuth
	case strings.Contains(msg, "insufficient_quota"), strings.Contains(msg, "quota"):
		return KindQuota
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"):
		return KindRateLimited
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "service unavailable"), strings.Contains(msg, "timeout"), strings.Contains(msg, "connection reset"):
		return KindOverloaded
	}
	return KindUnclassified
}

// parseFailure wraps a decode failure into a classified error carrying the
// first part of the undecodable payload for diagnostics
func parseFailure(err error, raw string) *ServiceError {
	const keep = 200
	if len(raw) > keep {
		raw = raw[:keep] + "..."
	}
	return &ServiceError{
		Kind:    KindParseFailure,
		Message: fmt.Sprintf("%v (payload: %q)", err, raw),
	}
}
