package ai

import (
	"context"
	"errors"
	"net"
)

// ErrorKind classifies a failed generation attempt. The registry treats every
// kind the same way (try the next backend); callers use it for messaging and
// metrics.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth_error"
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network_error"
	KindBadFormat   ErrorKind = "unexpected_format"
	KindExhausted   ErrorKind = "all_backends_exhausted"
	KindInternal    ErrorKind = "internal_error"
)

// classifyTransportError maps an error from http.Client.Do to a kind.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// classifyStatus maps a non-2xx provider status code to a kind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindAuth
	case code == 429:
		return KindRateLimited
	default:
		return KindUnavailable
	}
}
