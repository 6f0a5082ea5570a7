package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	//** Arrange
	err := Clonef(ErrInfeasible, "no slot for %s", "C1/1")
	wrapped := fmt.Errorf("schedule: %w", err)

	//** Act
	matches := errors.Is(wrapped, ErrInfeasible)
	mismatches := errors.Is(wrapped, ErrTimedOut)

	//** Assert
	assert.True(t, matches)
	assert.False(t, mismatches)
	assert.Equal(t, "no slot for C1/1", err.Error())
	assert.Equal(t, "no complete schedule exists", ErrInfeasible.Message)
}

func TestWrapKeepsCause(t *testing.T) {
	//** Arrange
	cause := errors.New("disk full")

	//** Act
	err := Wrap(cause, CodeInternal, "saving timetable")

	//** Assert
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "saving timetable: disk full", err.Error())
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "typed", err: fmt.Errorf("outer: %w", ErrValidation), code: CodeValidation},
		{name: "canceled", err: context.Canceled, code: CodeCancelled},
		{name: "deadline", err: fmt.Errorf("search: %w", context.DeadlineExceeded), code: CodeCancelled},
		{name: "foreign", err: errors.New("boom"), code: CodeInternal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			//** Act
			err := FromError(test.err)

			//** Assert
			assert.Equal(t, test.code, err.Code)
			assert.Equal(t, test.code, Code(test.err))
			assert.ErrorIs(t, err, test.err)
		})
	}
	assert.Nil(t, FromError(nil))
	assert.Empty(t, Code(nil))
}

func TestCloneKeepsOriginal(t *testing.T) {
	//** Act
	clone := Clone(ErrModel, "")
	renamed := Clone(ErrModel, "rooms shared across components")

	//** Assert
	assert.Equal(t, ErrModel.Message, clone.Message)
	assert.NotSame(t, ErrModel, clone)
	assert.Equal(t, "inconsistent problem decomposition", ErrModel.Message)
	assert.Equal(t, CodeModel, renamed.Code)
	assert.Nil(t, Clone(nil, "ignored"))
}
