package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineageErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *LineageError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewError(PLAN_NOT_FOUND, "plan my-plan does not exist"),
			expected: "[PLAN_NOT_FOUND] plan my-plan does not exist",
		},
		{
			name:     "with cause",
			err:      WrapError(DB_QUERY_FAILED, "loading plan", fmt.Errorf("disk I/O error")),
			expected: "[DB_QUERY_FAILED] loading plan: disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestLineageErrorIs(t *testing.T) {
	err := WrapError(PLAN_NOT_FOUND, "plan missing", errors.New("root cause"))

	assert.True(t, errors.Is(err, NewError(PLAN_NOT_FOUND, "other message")))
	assert.False(t, errors.Is(err, NewError(ACTIVITY_NOT_FOUND, "other message")))
}

func TestLineageErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapError(DB_OPEN_FAILED, "opening metadata store", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestRetryableError(t *testing.T) {
	err := NewRetryableError(TRANSFER_FAILED, "copy interrupted")
	assert.True(t, err.Retryable)

	err = NewError(PLAN_INVALID, "bad plan")
	assert.False(t, err.Retryable)
}
