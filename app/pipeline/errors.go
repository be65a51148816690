package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

type Code string

const (
	CodeDiscoveryFailed   Code = "INTAKE_DISCOVERY_FAILED"
	CodeSourceUnavailable Code = "INTAKE_SOURCE_UNAVAILABLE"
	CodeConversionFailed  Code = "INTAKE_CONVERSION_FAILED"
	CodeConversionTimeout Code = "INTAKE_CONVERSION_TIMEOUT"
	CodeValidationFailed  Code = "INTAKE_VALIDATION_FAILED"
	CodeJobNotFound       Code = "INTAKE_JOB_NOT_FOUND"
	CodeRenderFailed      Code = "WEB_MONITOR_RENDER_FAILED"
	CodeExtractionEmpty   Code = "WEB_MONITOR_EXTRACTION_EMPTY"
	CodeUpstreamNetwork   Code = "UPSTREAM_NETWORK_FAILURE"
	CodeRefreshFailed     Code = "REFRESH_FAILED"
	CodeRefreshInProgress Code = "REFRESH_IN_PROGRESS"
	CodeSourceNotFound    Code = "SOURCE_NOT_FOUND"
)

// WarningLLMBudgetExceeded is surfaced when the semantic decision budget
// ran out during a refresh.
const WarningLLMBudgetExceeded = "llm_budget_exceeded"

// Error carries a stable code next to a human message. The wrapped error
// stays reachable through errors.As/errors.Is.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code found in the chain, or "".
func CodeOf(err error) Code {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// IsNetworkFailure reports transport level failures (DNS, refused
// connections, timeouts) as opposed to logical ones.
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
