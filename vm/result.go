package vm

import "fmt"

// ---------------------------------------------------------------------------
// Result: tri-state outcome of fallible runtime operations
// ---------------------------------------------------------------------------

// ResultType identifies whether a Result is Success, Failure or Defer.
type ResultType uint8

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultDefer // the current thread was parked or frames were pushed; retry the instruction
)

func (r ResultType) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultFailure:
		return "Failure"
	case ResultDefer:
		return "Defer"
	}
	return fmt.Sprintf("ResultType(%d)", r)
}

// Throwable describes a guest exception to be raised. Either Object is an
// already constructed exception, or Class names the exception class to
// instantiate with Message as its detail message.
type Throwable struct {
	Class   string
	Message string
	Object  *Object
}

// NewThrowable creates a Throwable naming an exception class.
func NewThrowable(class, format string, args ...any) *Throwable {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Throwable{Class: class, Message: msg}
}

// ThrowableOf wraps an existing exception object.
func ThrowableOf(exc *Object) *Throwable {
	return &Throwable{Object: exc}
}

// ClassName returns the internal name of the exception class.
func (e *Throwable) ClassName() string {
	if e.Object != nil {
		return e.Object.Class().Name
	}
	return e.Class
}

func (e *Throwable) Error() string {
	if e.Message == "" {
		return e.ClassName()
	}
	return e.ClassName() + ": " + e.Message
}

// Result carries either a value, a guest error, or a request to defer.
type Result[T any] struct {
	kind  ResultType
	value T
	err   *Throwable
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{kind: ResultSuccess, value: v}
}

// Failure wraps a guest error.
func Failure[T any](err *Throwable) Result[T] {
	return Result[T]{kind: ResultFailure, err: err}
}

// Deferred reports that the operation cannot complete yet.
func Deferred[T any]() Result[T] {
	return Result[T]{kind: ResultDefer}
}

// Type returns the outcome kind.
func (r Result[T]) Type() ResultType { return r.kind }

// IsSuccess reports whether r holds a value.
func (r Result[T]) IsSuccess() bool { return r.kind == ResultSuccess }

// IsFailure reports whether r holds an error.
func (r Result[T]) IsFailure() bool { return r.kind == ResultFailure }

// IsDefer reports whether the operation was deferred.
func (r Result[T]) IsDefer() bool { return r.kind == ResultDefer }

// Value returns the success value (the zero T otherwise).
func (r Result[T]) Value() T { return r.value }

// Err returns the failure (nil otherwise).
func (r Result[T]) Err() *Throwable { return r.err }

// recast converts a non-success result to another value type.
func recast[T, U any](r Result[T]) Result[U] {
	return Result[U]{kind: r.kind, err: r.err}
}
