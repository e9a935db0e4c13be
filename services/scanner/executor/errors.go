package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Kind string

const (
	// over quota, rejected before any compute is spent
	KindAdmissionDenied Kind = "admission_denied"
	// credentials missing or rejected, needs re-authorization,
	// never retried automatically
	KindAuthRequired Kind = "auth_required"
	// compute could not be acquired, transient
	KindProvisioningFailed Kind = "provisioning_failed"
	// compute ran but did not finish inside the poll ceiling
	KindExtractionTimeout Kind = "extraction_timeout"
	// the backend produced output the adapter could not interpret
	KindParseFailure Kind = "parse_failure"
	// anything else, terminal
	KindInternal Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ClassifyTransport buckets a client-side transport failure: deadline
// style failures become extraction timeouts, everything else (dns,
// refused connections, resets) counts as transient provisioning trouble.
func ClassifyTransport(message string, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WrapError(KindExtractionTimeout, message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(KindExtractionTimeout, message, err)
	}
	return WrapError(KindProvisioningFailed, message, err)
}

// KindOf classifies any error into the taxonomy, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the coordinator may retry the attempt at all.
// how many times is the coordinator's policy, not the error's.
func Retryable(kind Kind) bool {
	switch kind {
	case KindProvisioningFailed, KindExtractionTimeout:
		return true
	}
	return false
}
