package usecase

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

type ErrorKind string

const (
	KindQuotaExceeded    ErrorKind = "quota_exceeded"
	KindRateLimited      ErrorKind = "rate_limited"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindGeneric          ErrorKind = "generic"
)

const (
	defaultRetryAfterSeconds = 60
	maxPassthroughMessageLen = 300
)

const (
	quotaMessage        = "AI provider quota exceeded. Please check: 1) your billing settings, 2) spending limits, 3) model access permissions. If you have credits, ensure they are activated and the API key has access to the requested model."
	rateLimitMessage    = "Rate limit exceeded. Please wait %d seconds before trying again."
	unauthorizedMessage = "Invalid AI provider API key. Please check your credentials."
	modelMessage        = "Model %s is not available. Please check your API access."
	anyModelMessage     = "The requested model is not available. Please check your API access."
	genericMessage      = "AI provider request failed. Please try again later."
	genericPrefix       = "AI provider error: "
)

var (
	// Matches things that look like credentials: Google API keys, bearer-ish
	// secret prefixes, long base64 runs.
	secretPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{10,}|sk-[0-9A-Za-z]{10,}|[A-Za-z0-9+/=_\-]{40,}`)

	unknownModelHints = []string{
		"not found",
		"not supported",
		"unsupported model",
		"unknown model",
		"does not exist",
	}
)

// ClassifiedError is the only failure shape that reaches a client.
type ClassifiedError struct {
	Kind              ErrorKind
	Message           string
	RetryAfterSeconds int
	HTTPStatus        int
	cause             error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

func invalidInput(reason string) *ClassifiedError {
	return &ClassifiedError{
		Kind:       KindInvalidInput,
		Message:    reason,
		HTTPStatus: http.StatusBadRequest,
		cause:      domain.ErrInvalidInput,
	}
}

// Classify maps any upstream failure to a ClassifiedError. Rules are checked in
// order and the first match wins.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		return invalidInput("Invalid input")
	}

	var raw *domain.ProviderError
	if !errors.As(err, &raw) {
		return &ClassifiedError{Kind: KindGeneric, Message: genericMessage, HTTPStatus: http.StatusBadRequest, cause: err}
	}

	switch {
	case raw.HTTPStatus == http.StatusTooManyRequests && insufficientAllowance(raw):
		return &ClassifiedError{Kind: KindQuotaExceeded, Message: quotaMessage, HTTPStatus: http.StatusTooManyRequests, cause: err}
	case raw.HTTPStatus == http.StatusTooManyRequests:
		wait := retryAfterSeconds(raw.RetryAfter)
		return &ClassifiedError{
			Kind:              KindRateLimited,
			Message:           fmt.Sprintf(rateLimitMessage, wait),
			RetryAfterSeconds: wait,
			HTTPStatus:        http.StatusTooManyRequests,
			cause:             err,
		}
	case raw.HTTPStatus == http.StatusUnauthorized || raw.Reason == "API_KEY_INVALID" || raw.Code == "invalid_api_key":
		return &ClassifiedError{Kind: KindUnauthorized, Message: unauthorizedMessage, HTTPStatus: http.StatusUnauthorized, cause: err}
	case raw.HTTPStatus == http.StatusNotFound || mentionsUnknownModel(raw.Message):
		msg := anyModelMessage
		if raw.Model != "" {
			msg = fmt.Sprintf(modelMessage, raw.Model)
		}
		return &ClassifiedError{Kind: KindModelUnavailable, Message: msg, HTTPStatus: http.StatusBadRequest, cause: err}
	default:
		msg := genericMessage
		if safe, ok := safeProviderMessage(raw.Message); ok {
			msg = genericPrefix + safe
		}
		return &ClassifiedError{Kind: KindGeneric, Message: msg, HTTPStatus: http.StatusBadRequest, cause: err}
	}
}

func insufficientAllowance(raw *domain.ProviderError) bool {
	if raw.Code == "insufficient_quota" || raw.Reason == "insufficient_quota" {
		return true
	}
	for _, id := range raw.QuotaIDs {
		if strings.Contains(id, "PerDay") {
			return true
		}
	}
	return false
}

func retryAfterSeconds(hint string) int {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return defaultRetryAfterSeconds
	}
	if n, err := strconv.Atoi(hint); err == nil && n > 0 {
		return n
	}
	if d, err := time.ParseDuration(hint); err == nil && d > 0 {
		return int(math.Ceil(d.Seconds()))
	}
	return defaultRetryAfterSeconds
}

func mentionsUnknownModel(message string) bool {
	lower := strings.ToLower(message)
	for _, hint := range unknownModelHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func safeProviderMessage(message string) (string, bool) {
	message = strings.TrimSpace(message)
	if message == "" || len([]rune(message)) > maxPassthroughMessageLen {
		return "", false
	}
	for _, r := range message {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	if secretPattern.MatchString(message) {
		return "", false
	}
	return message, true
}
