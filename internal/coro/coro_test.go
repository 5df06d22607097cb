package coro

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotRunsToCompletionWithoutYielding(t *testing.T) {
	s := NewSlot(0, func(ctx context.Context, job Job, yield func()) Result {
		return Result{Value: "value"}
	})
	defer s.Close()

	res, yielded := s.Dispatch(Job{PacketID: 1, Key: 7})
	assert.False(t, yielded)
	assert.Equal(t, "value", res.Value)
}

func TestSlotYieldsAndResumes(t *testing.T) {
	steps := 0
	s := NewSlot(0, func(ctx context.Context, job Job, yield func()) Result {
		steps++
		yield()
		steps++
		yield()
		steps++
		return Result{Value: "done"}
	})
	defer s.Close()

	_, yielded := s.Dispatch(Job{Key: 1})
	assert.True(t, yielded)
	assert.Equal(t, 1, steps)
	assert.Equal(t, StateSuspended, s.State())

	_, yielded = s.Continue()
	assert.True(t, yielded)
	assert.Equal(t, 2, steps)

	res, yielded := s.Continue()
	assert.False(t, yielded)
	assert.Equal(t, 3, steps)
	assert.Equal(t, "done", res.Value)
	assert.Equal(t, StateIdle, s.State())
}

func TestSlotPropagatesBackendError(t *testing.T) {
	wantErr := errors.New("backend unavailable")
	s := NewSlot(0, func(ctx context.Context, job Job, yield func()) Result {
		return Result{Err: wantErr}
	})
	defer s.Close()

	res, yielded := s.Dispatch(Job{Key: 1})
	require.False(t, yielded)
	assert.ErrorIs(t, res.Err, wantErr)
}

func TestSlotStateTransitions(t *testing.T) {
	s := NewSlot(0, func(ctx context.Context, job Job, yield func()) Result {
		yield()
		return Result{}
	})
	defer s.Close()

	assert.Equal(t, StateIdle, s.State())
	s.Dispatch(Job{})
	assert.Equal(t, StateSuspended, s.State())
	s.Continue()
	assert.Equal(t, StateIdle, s.State())
}
