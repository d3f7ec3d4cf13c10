// Package gcperr turns Google API failures (REST and gRPC) into
// domain.ProviderError values with the details the classifier needs.
package gcperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const (
	typeRetryInfo    = "type.googleapis.com/google.rpc.RetryInfo"
	typeQuotaFailure = "type.googleapis.com/google.rpc.QuotaFailure"
	typeErrorInfo    = "type.googleapis.com/google.rpc.ErrorInfo"
)

var grpcToHTTP = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Canceled:           499,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unknown:            http.StatusInternalServerError,
	codes.DataLoss:           http.StatusInternalServerError,
}

// HTTPStatus maps a gRPC code to the HTTP status Google documents for it.
func HTTPStatus(code codes.Code) int {
	if s, ok := grpcToHTTP[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// FromREST builds a ProviderError from a JSON error envelope
// ({code, message, status, details}).
func FromREST(provider, model string, code int, statusText, message string, details []map[string]any, cause error) *domain.ProviderError {
	pe := &domain.ProviderError{
		Provider:   provider,
		Model:      model,
		HTTPStatus: code,
		Code:       statusText,
		Message:    message,
		Err:        cause,
	}
	for _, d := range details {
		typ, _ := d["@type"].(string)
		switch typ {
		case typeRetryInfo:
			if delay, ok := d["retryDelay"].(string); ok {
				pe.RetryAfter = delay
			}
		case typeQuotaFailure:
			violations, _ := d["violations"].([]any)
			for _, v := range violations {
				m, ok := v.(map[string]any)
				if !ok {
					continue
				}
				for _, key := range []string{"quotaId", "quotaMetric", "subject"} {
					if id, ok := m[key].(string); ok && id != "" {
						pe.QuotaIDs = append(pe.QuotaIDs, id)
					}
				}
			}
		case typeErrorInfo:
			if reason, ok := d["reason"].(string); ok {
				pe.Reason = reason
			}
		}
	}
	return pe
}

// FromGRPC builds a ProviderError from a gRPC call failure. Errors that carry
// no gRPC status are treated as transport failures and keep no message.
func FromGRPC(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Provider: provider, Model: model, Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return &domain.ProviderError{Provider: provider, Model: model, Err: err}
	}
	pe := &domain.ProviderError{
		Provider:   provider,
		Model:      model,
		HTTPStatus: HTTPStatus(st.Code()),
		Code:       grpcCodeName(st.Code()),
		Message:    st.Message(),
		Err:        err,
	}
	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.RetryInfo:
			if info.GetRetryDelay() != nil {
				pe.RetryAfter = info.GetRetryDelay().AsDuration().String()
			}
		case *errdetails.QuotaFailure:
			for _, v := range info.GetViolations() {
				if v.GetSubject() != "" {
					pe.QuotaIDs = append(pe.QuotaIDs, v.GetSubject())
				}
				if v.GetDescription() != "" {
					pe.QuotaIDs = append(pe.QuotaIDs, v.GetDescription())
				}
			}
		case *errdetails.ErrorInfo:
			pe.Reason = info.GetReason()
		}
	}
	return pe
}

// Transport wraps a failure that never produced a provider response.
func Transport(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.ProviderError{Provider: provider, Model: model, Err: fmt.Errorf("transport: %w", err)}
}

// grpcCodeName renders codes the way the REST envelope's status field does,
// e.g. RESOURCE_EXHAUSTED.
func grpcCodeName(c codes.Code) string {
	name := c.String()
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
