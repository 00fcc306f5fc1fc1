// Package riskerr defines the closed set of error kinds the risk core can
// surface. Errors from the vector-store client, the breaker, the memory
// manager's Initialize and the config loader wrap one of these so callers
// can dispatch on the kind with Is instead of string matching.
package riskerr

import "fmt"

// Kind is the closed error-kind enum from the core's error handling design.
type Kind string

const (
	InsufficientData    Kind = "INSUFFICIENT_DATA"
	StoreUnavailable    Kind = "STORE_UNAVAILABLE"
	FeatureParseError   Kind = "FEATURE_PARSE_ERROR"
	EvaluatorInternal   Kind = "EVALUATOR_INTERNAL_ERROR"
	DeadlineExceeded    Kind = "DEADLINE_EXCEEDED"
	ConfigInvalid       Kind = "CONFIG_INVALID"
	InitializationFail  Kind = "INITIALIZATION_FAILED"
)

// Error wraps an underlying cause with a Kind so callers can dispatch on it.
type Error struct {
	Kind    Kind
	Op      string // component/operation that produced the error
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap constructs a *Error for op with the given kind, wrapping err.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or something it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
