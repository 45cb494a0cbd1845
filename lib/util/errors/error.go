// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package errors wraps the standard errors/fmt primitives with stack
// traces and the four API-facing error kinds used throughout the core
// (StateError, ConfigurationError, ExtensionError, ReplayDataError).
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const defaultStackDepth = 48

var (
	_ error         = &Error{}
	_ fmt.Formatter = &Error{}
)

// Error is a simple error wrapper with stacktrace.
type Error struct {
	err   error
	trace stacktrace
}

// New is a drop-in replacement for errors.New that also captures a stack trace.
func New(msg string) error {
	return WithStackDepth(errors.New(msg), defaultStackDepth)
}

// Errorf is a drop-in replacement for fmt.Errorf that also captures a stack trace.
func Errorf(format string, args ...interface{}) error {
	return WithStackDepth(fmt.Errorf(format, args...), defaultStackDepth)
}

// WithStack will wrapping an error with stacktrace, given a default stack depth.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	e := &Error{err: err}
	e.withStackDepth(1, defaultStackDepth)
	return e
}

// WithStackDepth is like WithStack, but can specify stack depth.
func WithStackDepth(err error, depth int) error {
	if err == nil {
		return nil
	}
	e := &Error{err: err}
	e.withStackDepth(1, depth)
	return e
}

func (e *Error) withStackDepth(skip, depth int) {
	e.trace = make(stacktrace, depth)
	runtime.Callers(2+skip, e.trace)
}

// Format implements `fmt.Formatter`. Only %+v appends the stacktrace; %v and %s print the wrapped error alone.
func (e *Error) Format(st fmt.State, verb rune) {
	switch verb {
	case 'v':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+v", e.err)
			e.trace.Format(st, 'v')
		} else {
			fmt.Fprintf(st, "%v", e.err)
			e.trace.Format(st, 'v')
		}
	case 's':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+s", e.err)
			e.trace.Format(st, 's')
		} else {
			fmt.Fprintf(st, "%s", e.err)
		}
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *Error) As(target interface{}) bool {
	return errors.As(e.err, target)
}

func (e *Error) Unwrap() error {
	return errors.Unwrap(e.err)
}

// Warning marks an error as a non-propagating, log-and-continue condition.
// The LIN receive path does not build Warning values: it logs its
// protocol violations (§7) at warn level directly and drops the frame.
type Warning struct {
	Err error
}

func (e *Warning) Error() string {
	return e.Err.Error()
}

func (e *Warning) Unwrap() error {
	return e.Err
}

func (e *Warning) Is(target error) bool {
	_, ok := target.(*Warning)
	return ok
}

// Is, As and Unwrap re-export the standard library so call sites only
// need to import this package.
func Is(err, target error) bool    { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func Unwrap(err error) error        { return errors.Unwrap(err) }
