package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMalformedResponse is wrapped when a reply does not have the expected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents HTTP 429 and VK throttling error codes.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAPI represents a VK error envelope delivered with HTTP 200.
	ErrorClassAPI ErrorClass = "api"

	// ErrorClassProtocol represents a reply that could not be decoded.
	ErrorClassProtocol ErrorClass = "protocol"
)

// VK error codes that mean "slow down".
const (
	vkTooManyRequests = 6
	vkFloodControl    = 9
	vkRateLimit       = 29
)

// UpstreamError is a failure talking to the source. It is never retried by
// the client.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	// Code is the VK error_code for ErrorClassAPI and VK rate limit errors.
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s error (status %d", e.ErrorClass, e.StatusCode)
	if e.Code != 0 {
		msg += fmt.Sprintf(", code %d", e.Code)
	}
	msg += "): " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err carries an *UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// classifyStatus maps a non-200 HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassProtocol
	}
}

// classifyAPICode maps a VK error_code to an error class.
func classifyAPICode(code int) ErrorClass {
	switch code {
	case vkTooManyRequests, vkFloodControl, vkRateLimit:
		return ErrorClassRateLimit
	default:
		return ErrorClassAPI
	}
}
