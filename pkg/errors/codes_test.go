package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("get: %w", ErrNotFound), CodeNotFound},
		{"conflict", ErrConflict, CodeConflict},
		{"validation", ErrValidation, CodeValidation},
		{"no identifier", ErrNoIdentifier, CodeValidation},
		{"unauthorized", ErrUnauthorized, CodeUnauthorized},
		{"forbidden", ErrForbidden, CodeForbidden},
		{"invalid state", ErrInvalidState, CodeInvalidState},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), CodeContextCancelled},
		{"deadline", context.DeadlineExceeded, CodeContextCancelled},
		{"unknown", errors.New("boom"), CodeInternal},
		{"coded wins", NewCodedError(CodeMembershipRequired, "needs deluxe", ErrForbidden), CodeMembershipRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCodedError(t *testing.T) {
	err := NewCodedError(CodeMemberNotActivated, "member is not activated", ErrInvalidState)

	assert.Equal(t, "[member_not_activated] member is not activated: invalid state", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidState))

	bare := NewCodedError(CodeValidation, "name is required", nil)
	assert.Equal(t, "[validation] name is required", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestErrorCodeRegistryComplete(t *testing.T) {
	codes := []ErrorCode{
		CodeNotFound, CodeConflict, CodeValidation, CodeUnauthorized, CodeForbidden,
		CodeInvalidState, CodeMemberNotActivated, CodePrivacyPolicyNotAccepted,
		CodeMembershipRequired, CodeContextCancelled, CodeInternal,
	}
	for _, code := range codes {
		info, ok := GetErrorInfo(code)
		assert.True(t, ok, "missing registry entry for %s", code)
		assert.Equal(t, code, info.Code)
		assert.NotEmpty(t, info.Description)
	}

	assert.True(t, IsRetryable(CodeContextCancelled))
	assert.False(t, IsRetryable(CodeValidation))
	assert.False(t, IsRetryable(ErrorCode("unknown")))
}
