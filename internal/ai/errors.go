package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Category classifies a generation failure.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryTimeout    Category = "timeout"
	CategoryDNS        Category = "dns"
	CategoryConnection Category = "connection"
	CategoryNetwork    Category = "network"
	CategoryHTTP       Category = "http"
	CategoryParse      Category = "parse"
	CategoryEmpty      Category = "empty"
)

// GenerationError is returned for every failed completion. Message is
// suitable for showing in a transcript.
type GenerationError struct {
	Category   Category
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

func configError(msg string) *GenerationError {
	return &GenerationError{Category: CategoryConfig, Message: msg}
}

// HTTPStatusMessage maps a non-200 status to a readable message.
func HTTPStatusMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad request parameters"
	case http.StatusUnauthorized:
		return "authentication failed, check the API key"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusNotFound:
		return "model or endpoint not found"
	case http.StatusTooManyRequests:
		return "rate limited, try again later"
	case http.StatusInternalServerError:
		return "AI server error"
	case http.StatusServiceUnavailable:
		return "AI service unavailable"
	}
	return fmt.Sprintf("HTTP %d", code)
}

func httpError(code int, body string) *GenerationError {
	return &GenerationError{
		Category:   CategoryHTTP,
		StatusCode: code,
		Message:    HTTPStatusMessage(code),
		Err:        fmt.Errorf("unexpected status %d: %s", code, body),
	}
}

// classify turns a transport error into a GenerationError.
func classify(err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	var (
		dnsErr *net.DNSError
		netErr net.Error
		opErr  *net.OpError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return &GenerationError{Category: CategoryTimeout, Message: "request timed out", Err: err}
	case errors.As(err, &dnsErr):
		return &GenerationError{Category: CategoryDNS, Message: "could not resolve the AI server host", Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &GenerationError{Category: CategoryTimeout, Message: "request timed out", Err: err}
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.As(err, &opErr):
		return &GenerationError{Category: CategoryConnection, Message: "could not connect to the AI server", Err: err}
	}
	return &GenerationError{Category: CategoryNetwork, Message: "network error: " + err.Error(), Err: err}
}
