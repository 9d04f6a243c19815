package ai

import (
	"errors"
	"fmt"
)

// Kind tags the terminal state of one backend call.
type Kind int

const (
	KindSuccess Kind = iota
	KindSoftFailure
	KindHardFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindSoftFailure:
		return "soft_failure"
	case KindHardFailure:
		return "hard_failure"
	default:
		return "unknown"
	}
}

// Outcome is the uniform result every backend client and the dispatcher return.
// Exactly one of Text/Value (success), Message (soft failure) or Err (hard failure) is meaningful.
type Outcome struct {
	Kind    Kind
	Text    string // plain-text success payload
	Value   any    // structured success payload (vision)
	Message string // user-facing soft failure text
	Err     error  // cause of a soft failure, or the hard failure itself
	Backend string // which backend produced the outcome
}

// Success wraps a plain-text answer.
func Success(backend, text string) Outcome {
	return Outcome{Kind: KindSuccess, Text: text, Backend: backend}
}

// Structured wraps a task-shaped answer.
func Structured(backend string, v any) Outcome {
	return Outcome{Kind: KindSuccess, Value: v, Backend: backend}
}

// Soft reports that the model ran (or was invoked) but produced no usable answer.
func Soft(backend, msg string, cause error) Outcome {
	return Outcome{Kind: KindSoftFailure, Message: msg, Err: cause, Backend: backend}
}

// Hard reports a gateway-level fault.
func Hard(err error) Outcome {
	return Outcome{Kind: KindHardFailure, Err: err}
}

func (o Outcome) OK() bool     { return o.Kind == KindSuccess }
func (o Outcome) IsSoft() bool { return o.Kind == KindSoftFailure }
func (o Outcome) IsHard() bool { return o.Kind == KindHardFailure }

// Payload returns what the transport puts in the response body: the structured
// value when present, the text on success, the message on a soft failure.
func (o Outcome) Payload() any {
	switch o.Kind {
	case KindSuccess:
		if o.Value != nil {
			return o.Value
		}
		return o.Text
	case KindSoftFailure:
		return o.Message
	default:
		return nil
	}
}

var (
	ErrTimeout           = errors.New("time limit exceeded")
	ErrProcessExit       = errors.New("process exited with non-zero status")
	ErrProcessStart      = errors.New("process could not be started")
	ErrProcessIO         = errors.New("process i/o failure")
	ErrVisionUnavailable = errors.New("vision backend unavailable")
	ErrVisionInference   = errors.New("vision inference failed")
)

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// UserInputError is a request the gateway refuses (missing or empty payload).
type UserInputError struct {
	Message string
}

func (e *UserInputError) Error() string { return e.Message }

// TransportError is an unexpected fault inside the gateway itself.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// UserInput builds a hard failure carrying a UserInputError.
func UserInput(msg string) Outcome { return Hard(&UserInputError{Message: msg}) }

// Transport builds a hard failure carrying a TransportError.
func Transport(msg string, cause error) Outcome {
	return Hard(&TransportError{Message: msg, Cause: cause})
}
