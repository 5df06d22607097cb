// Package tinyquanta implements a microsecond-scale UDP key-value dispatch
// and scheduling engine: one dispatcher steering packets to N per-shard
// cooperative schedulers.
package tinyquanta

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured tinyquanta error with context and errno mapping.
type Error struct {
	Op    string    // Operation that failed (e.g., "DISPATCH", "SCHEDULE", "TX")
	Shard int       // Shard index (-1 if not applicable)
	Code  ErrorCode // High-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Shard >= 0 {
		parts = append(parts, fmt.Sprintf("shard=%d", e.Shard))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("tinyquanta: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("tinyquanta: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories.
type ErrorCode string

const (
	ErrCodeRingFull       ErrorCode = "ring full"
	ErrCodePoolExhausted  ErrorCode = "buffer pool exhausted"
	ErrCodeMalformedFrame ErrorCode = "malformed frame"
	ErrCodeShardNotFound  ErrorCode = "shard not found"
	ErrCodeBackendError   ErrorCode = "backend error"
	ErrCodeIOError        ErrorCode = "I/O error"
	ErrCodeTimeout        ErrorCode = "timeout"
	ErrCodeInvariant      ErrorCode = "invariant violated"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Shard: -1, Code: code, Msg: msg}
}

// NewShardError creates a new shard-specific error.
func NewShardError(op string, shard int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Shard: shard, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a new structured error carrying a syscall errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Shard: -1, Code: code, Errno: errno, Msg: errno.Error()}
}

// WrapError wraps an existing error with tinyquanta context.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if te, ok := inner.(*Error); ok {
		return &Error{Op: op, Shard: te.Shard, Code: te.Code, Errno: te.Errno, Msg: te.Msg, Inner: te.Inner}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Shard: -1, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Shard: -1, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOBUFS, syscall.ENOMEM:
		return ErrCodePoolExhausted
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeMalformedFrame
	case syscall.ETIMEDOUT, syscall.EAGAIN:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}
