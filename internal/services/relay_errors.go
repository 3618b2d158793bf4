package services

import (
	"errors"
	"fmt"
)

// RejectionReason typed reason for refusing a relay request. Authorization
// failures are surfaced synchronously to the caller with one of these codes.
type RejectionReason string

const (
	ReasonRelayerNotFound       RejectionReason = "RELAYER_NOT_FOUND"
	ReasonUnauthorizedContract  RejectionReason = "UNAUTHORIZED_CONTRACT"
	ReasonUnauthorizedForwarder RejectionReason = "UNAUTHORIZED_FORWARDER"
	ReasonNonZeroValueRelay     RejectionReason = "NON_ZERO_VALUE_RELAY"
	ReasonUntrustedForwarder    RejectionReason = "UNTRUSTED_FORWARDER"
	ReasonVerificationFailed    RejectionReason = "VERIFICATION_FAILED"
	ReasonInvalidRequest        RejectionReason = "INVALID_REQUEST"
)

// RejectionError authorization failure with a specific, actionable reason.
// No side effects occur before one of these is returned.
type RejectionError struct {
	Reason  RejectionReason
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Reject builds a RejectionError with a formatted message
func Reject(reason RejectionReason, format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a RejectionError from an error chain
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ErrQueueWriteFailure the durable enqueue write could not complete. The
// request was valid but is not yet guaranteed to execute; callers may retry.
var ErrQueueWriteFailure = errors.New("queue write failure")

// SubmissionError a failure seen while submitting or confirming a queued
// transaction. Transient failures are retried with backoff on the same
// record; permanent ones move the record to errored.
type SubmissionError struct {
	Permanent bool
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("submission rejected: %v", e.Err)
	}
	return fmt.Sprintf("submission failure: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// NewTransientSubmissionError marks err as retryable
func NewTransientSubmissionError(err error) *SubmissionError {
	return &SubmissionError{Permanent: false, Err: err}
}

// NewPermanentSubmissionError marks err as terminal
func NewPermanentSubmissionError(err error) *SubmissionError {
	return &SubmissionError{Permanent: true, Err: err}
}

// IsPermanentSubmissionError reports whether err is a terminal chain rejection
func IsPermanentSubmissionError(err error) bool {
	var sub *SubmissionError
	if errors.As(err, &sub) {
		return sub.Permanent
	}
	return false
}
