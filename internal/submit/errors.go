package submit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrBusy is returned when a submit is attempted while another one is
	// still pending.
	ErrBusy = errors.New("submission already pending")
	// ErrSubmitted is returned when the form was already submitted
	// successfully. Reset clears the flag.
	ErrSubmitted = errors.New("form already submitted")
	// ErrNoTarget is returned when no request URL is configured.
	ErrNoTarget = errors.New("no submit target url configured")
)

// ValidationError blocks a submission. Message is user facing.
type ValidationError struct {
	Message string
	// Fields lists the shown fields the host reported invalid. It is empty
	// when a constraint failed.
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", strings.Join(e.Fields, ", "), e.Message)
}

// ConstraintError reports a constraint that could not be compiled or
// evaluated. It aborts the submission.
type ConstraintError struct {
	Index      int
	Evaluation string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %d (%q) failed to evaluate: %v", e.Index, e.Evaluation, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// TransportError wraps network failures and unreadable responses.
type TransportError struct {
	// Status is zero when no response was received.
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind classifies a server rejection.
type Kind string

const (
	KindInvalidContact  Kind = "invalidContact"
	KindUnauthenticated Kind = "unauthenticated"
	KindBotCheck        Kind = "botCheck"
	KindStale           Kind = "stale"
	KindGeneric         Kind = "generic"
)

// ServerRejection is a response the server answered but did not accept.
type ServerRejection struct {
	Status  int
	Kind    Kind
	Message string
	// AuthRequired is set when an auth status came with a truthy result.
	AuthRequired bool
	Payload      cty.Value
}

func (e *ServerRejection) Error() string {
	return fmt.Sprintf("server rejected submission (status %d, %s)", e.Status, e.Kind)
}
