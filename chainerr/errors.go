// Package chainerr provides the error taxonomy shared by every chainharness
// component (spec §7). It builds on the teacher's Wrap helper
// (pkg/utils/errors.go) and adds typed kinds so callers can branch with
// errors.Is/errors.As instead of string matching.
package chainerr

import (
	"errors"
	"fmt"
	"strings"
)

// Wrap adds context to err. It returns nil if err is nil, matching the
// teacher's pkg/utils.Wrap.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Kind classifies an error into the taxonomy from spec.md §7.
type Kind int

const (
	// KindTransport marks a node-client network/transport failure.
	KindTransport Kind = iota
	// KindRejection marks a server-side rejection (e.g. invalid transaction).
	KindRejection
	// KindBuild marks a scenario build-time validation failure.
	KindBuild
	// KindReadinessTimeout marks a deployer readiness-probe timeout.
	KindReadinessTimeout
	// KindDrainOverrun marks a workload that failed to stop within the
	// drain window.
	KindDrainOverrun
	// KindProvisioning marks a deployer provisioning failure.
	KindProvisioning
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRejection:
		return "rejection"
	case KindBuild:
		return "build"
	case KindReadinessTimeout:
		return "readiness_timeout"
	case KindDrainOverrun:
		return "drain_overrun"
	case KindProvisioning:
		return "provisioning"
	default:
		return "unknown"
	}
}

// TypedError is a Kind-tagged error that wraps an underlying cause.
type TypedError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error { return e.Cause }

// Is reports whether target is a *TypedError with the same Kind, so callers
// can do errors.Is(err, chainerr.Transport("", nil)) style checks, or more
// idiomatically compare via errors.As and inspect Kind.
func (e *TypedError) Is(target error) bool {
	var t *TypedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs a TypedError of the given kind.
func New(kind Kind, message string, cause error) *TypedError {
	return &TypedError{Kind: kind, Message: message, Cause: cause}
}

// Transport wraps a transport-layer failure.
func Transport(message string, cause error) error { return New(KindTransport, message, cause) }

// Rejection wraps a server-side rejection.
func Rejection(message string, cause error) error { return New(KindRejection, message, cause) }

// Build wraps a scenario build-validation failure.
func Build(message string) error { return New(KindBuild, message, nil) }

// ReadinessTimeout wraps a readiness-probe timeout.
func ReadinessTimeout(message string, cause error) error {
	return New(KindReadinessTimeout, message, cause)
}

// DrainOverrun wraps a workload drain-window overrun.
func DrainOverrun(message string) error { return New(KindDrainOverrun, message, nil) }

// Provisioning wraps a deployer provisioning failure.
func Provisioning(message string, cause error) error {
	return New(KindProvisioning, message, cause)
}

// Failure is one entry in a FailureList: a named component and the reason it
// failed. Runner and expectation evaluation build these.
type Failure struct {
	Component string
	Reason    error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Component, f.Reason)
}

// FailureList aggregates zero or more Failures into a single error, in
// insertion order, per spec.md §7 ("the complete set of failures from one
// run — never a single-error early-return").
type FailureList struct {
	Failures []Failure
}

// Add appends a failure if reason is non-nil. Returns the list for chaining.
func (l *FailureList) Add(component string, reason error) *FailureList {
	if reason == nil {
		return l
	}
	l.Failures = append(l.Failures, Failure{Component: component, Reason: reason})
	return l
}

// Empty reports whether the list has no failures.
func (l *FailureList) Empty() bool {
	return l == nil || len(l.Failures) == 0
}

// ErrOrNil returns l as an error if it has any failures, otherwise nil. This
// is the usual way to turn an accumulated FailureList into a function's
// return value.
func (l *FailureList) ErrOrNil() error {
	if l.Empty() {
		return nil
	}
	return l
}

func (l *FailureList) Error() string {
	parts := make([]string, 0, len(l.Failures))
	for _, f := range l.Failures {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%d failure(s): %s", len(l.Failures), strings.Join(parts, "; "))
}
