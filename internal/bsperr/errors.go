// File: internal/bsperr/errors.go
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Error taxonomy: Fatal, IO, Protocol, Script, Transient. A Kind lets
// callers branch on disposition without string matching; go-multierror
// aggregates teardown failures.

package bsperr

import (
	"errors"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Kind is the observable error category.
type Kind int

const (
	KindFatal Kind = iota
	KindIO
	KindProtocol
	KindScript
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	case KindScript:
		return "script"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its disposition kind.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("bsp: %s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("bsp: %s: %s: %v", e.Kind, e.Op, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func Fatal(op string, cause error) *Error      { return New(KindFatal, op, cause) }
func IO(op string, cause error) *Error         { return New(KindIO, op, cause) }
func Protocol(op string, cause error) *Error   { return New(KindProtocol, op, cause) }
func Script(op string, cause error) *Error     { return New(KindScript, op, cause) }
func Transient(op string, cause error) *Error  { return New(KindTransient, op, cause) }

// IsKind reports whether err (or any error it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Aggregate collects teardown-path errors (worker shutdown, listener
// close, script release) into one reportable error.
type Aggregate struct {
	merr *multierror.Error
}

func NewAggregate() *Aggregate { return &Aggregate{} }

func (a *Aggregate) Add(err error) {
	if err == nil {
		return
	}
	a.merr = multierror.Append(a.merr, err)
}

// ErrorOrNil returns nil if no errors were added, else the aggregate.
func (a *Aggregate) ErrorOrNil() error {
	if a.merr == nil {
		return nil
	}
	return a.merr.ErrorOrNil()
}
