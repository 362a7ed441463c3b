package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned by providers when the upstream API answers with a
// non-success HTTP status. The retry policy in the assistant package
// branches on Status, so providers must preserve the exact code.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.Status, e.Body)
}

// AsAPIError unwraps err into an *APIError if one is present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// FailoverReason categorizes why a provider call failed.
type FailoverReason int

const (
	ReasonUnknown     FailoverReason = iota
	ReasonAuth                       // 401/403, invalid key
	ReasonBilling                    // 402, billing or quota exhausted
	ReasonRateLimit                  // 429, rate limited
	ReasonTimeout                    // context deadline / network failure
	ReasonFormat                     // 400, bad request
	ReasonOverloaded                 // 502/503, upstream unavailable
	ReasonServerError                // other 5xx
)

func (r FailoverReason) String() string {
	switch r {
	case ReasonAuth:
		return "auth"
	case ReasonBilling:
		return "billing"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonTimeout:
		return "timeout"
	case ReasonFormat:
		return "format"
	case ReasonOverloaded:
		return "overloaded"
	case ReasonServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Classify determines the failure reason for a provider error. Typed API
// errors classify by status code; anything else falls back to string
// matching for network-level failures.
func Classify(err error) FailoverReason {
	if err == nil {
		return ReasonUnknown
	}

	if apiErr, ok := AsAPIError(err); ok {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ReasonAuth
		case http.StatusPaymentRequired:
			return ReasonBilling
		case http.StatusTooManyRequests:
			return ReasonRateLimit
		case http.StatusBadRequest:
			return ReasonFormat
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			return ReasonOverloaded
		}
		if apiErr.Status >= 500 {
			return ReasonServerError
		}
		return ReasonUnknown
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "connection refused") {
		return ReasonTimeout
	}

	return ReasonUnknown
}
