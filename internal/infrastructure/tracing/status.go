package tracing

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Status is the outcome recorded on a span. Codes are the canonical gRPC
// codes so HTTP and gRPC spans share one vocabulary.
type Status struct {
	Code    codes.Code
	Message string
}

// IsOK reports whether the code is codes.OK
func (s Status) IsOK() bool {
	return s.Code == codes.OK
}

// StatusFromHTTP maps an HTTP response code onto a canonical status.
func StatusFromHTTP(code int) Status {
	c := httpToCode(code)
	if c == codes.OK {
		return Status{Code: c}
	}
	return Status{Code: c, Message: http.StatusText(code)}
}

func httpToCode(code int) codes.Code {
	switch {
	case code >= 100 && code < 400:
		return codes.OK
	case code == http.StatusBadRequest:
		return codes.InvalidArgument
	case code == http.StatusUnauthorized:
		return codes.Unauthenticated
	case code == http.StatusForbidden:
		return codes.PermissionDenied
	case code == http.StatusNotFound:
		return codes.NotFound
	case code == http.StatusConflict:
		return codes.Aborted
	case code == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case code == 499:
		return codes.Canceled
	case code == http.StatusNotImplemented:
		return codes.Unimplemented
	case code == http.StatusServiceUnavailable:
		return codes.Unavailable
	case code == http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case code >= 400 && code < 500:
		return codes.InvalidArgument
	case code >= 500 && code < 600:
		return codes.Internal
	default:
		return codes.Unknown
	}
}
