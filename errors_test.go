package tinyquanta

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("DISPATCH", ErrCodeMalformedFrame, "short UDP payload")

	assert.Equal(t, "DISPATCH", err.Op)
	assert.Equal(t, ErrCodeMalformedFrame, err.Code)
	assert.Equal(t, "tinyquanta: short UDP payload (op=DISPATCH)", err.Error())
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("TX", ErrCodeTimeout, syscall.EAGAIN)

	assert.Equal(t, syscall.EAGAIN, err.Errno)
	assert.Equal(t, ErrCodeTimeout, err.Code)
}

func TestShardError(t *testing.T) {
	err := NewShardError("SCHEDULE", 3, ErrCodeBackendError, "backend get failed")

	assert.Equal(t, 3, err.Shard)
	assert.Equal(t, "tinyquanta: backend get failed (op=SCHEDULE)", err.Error())
}

func TestWrapError(t *testing.T) {
	inner := syscall.ENOBUFS
	err := WrapError("ALLOC_TX", inner)

	assert.Equal(t, ErrCodePoolExhausted, err.Code)
	assert.Equal(t, syscall.ENOBUFS, err.Errno)
	assert.True(t, errors.Is(err, syscall.ENOBUFS))
}

func TestWrapErrorPreservesStructuredError(t *testing.T) {
	inner := NewShardError("SCHEDULE", 2, ErrCodeInvariant, "quantum underflow")
	wrapped := WrapError("RECONCILE", inner)

	assert.Equal(t, ErrCodeInvariant, wrapped.Code)
	assert.Equal(t, 2, wrapped.Shard)
	assert.Equal(t, "RECONCILE", wrapped.Op)
}

func TestIsCode(t *testing.T) {
	err := NewError("TEST", ErrCodeTimeout, "operation timed out")

	assert.True(t, IsCode(err, ErrCodeTimeout))
	assert.False(t, IsCode(err, ErrCodeIOError))
	assert.False(t, IsCode(nil, ErrCodeTimeout))
}

func TestIsErrno(t *testing.T) {
	err := NewErrorWithErrno("TEST", ErrCodeIOError, syscall.EIO)

	assert.True(t, IsErrno(err, syscall.EIO))
	assert.False(t, IsErrno(err, syscall.EPERM))
	assert.False(t, IsErrno(nil, syscall.EIO))
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.ENOBUFS, ErrCodePoolExhausted},
		{syscall.ENOMEM, ErrCodePoolExhausted},
		{syscall.EINVAL, ErrCodeMalformedFrame},
		{syscall.E2BIG, ErrCodeMalformedFrame},
		{syscall.ETIMEDOUT, ErrCodeTimeout},
		{syscall.EAGAIN, ErrCodeTimeout},
		{syscall.EIO, ErrCodeIOError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, mapErrnoToCode(tc.errno))
	}
}
