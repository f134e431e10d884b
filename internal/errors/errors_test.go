package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Game not found")
		assert.Equal(t, "NOT_FOUND: Game not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeTransientSync, "Sync connection interrupted", cause)
		assert.Contains(t, err.Error(), "TRANSIENT_SYNC_FAILURE")
		assert.Contains(t, err.Error(), "Sync connection interrupted")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "pin", "reason": "must be 4 digits"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"InvalidToken", func() *AppError { return InvalidToken("test") }, ErrCodeInvalidToken},
		{"NotFound", func() *AppError { return NotFound("Game") }, ErrCodeNotFound},
		{"Conflict", func() *AppError { return Conflict("test") }, ErrCodeConflict},
		{"DuplicateParticipantName", func() *AppError { return DuplicateParticipantName("Quizzards") }, ErrCodeDuplicateParticipant},
		{"InvalidStateTransition", func() *AppError { return InvalidStateTransition("finished", "active") }, ErrCodeInvalidStateTransition},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("pin", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("pin") }, ErrCodeMissingRequired},
		{"InsufficientCredit", func() *AppError { return InsufficientCredit() }, ErrCodeInsufficientCredit},
		{"CreditTransactionFailed", func() *AppError { return CreditTransactionFailed() }, ErrCodeCreditTransactionFailed},
		{"TransientSyncFailure", func() *AppError { return TransientSyncFailure(errors.New("eof")) }, ErrCodeTransientSync},
		{"TerminalSyncFailure", func() *AppError { return TerminalSyncFailure(5, errors.New("eof")) }, ErrCodeTerminalSync},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("Redis", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "Redis")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestIsAppError(t *testing.T) {
	t.Run("returns true for AppError", func(t *testing.T) {
		err := New(ErrCodeNotFound, "test")
		assert.True(t, IsAppError(err))
	})

	t.Run("returns false for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.False(t, IsAppError(err))
	})

	t.Run("returns true for wrapped AppError", func(t *testing.T) {
		appErr := New(ErrCodeNotFound, "test")
		wrapped := errors.New("wrapped: " + appErr.Error())
		// Note: This returns false because we're creating a new error, not wrapping
		assert.False(t, IsAppError(wrapped))
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts AppError", func(t *testing.T) {
		original := New(ErrCodeNotFound, "Game not found")
		extracted, ok := AsAppError(original)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		extracted, ok := AsAppError(err)
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestHasCode(t *testing.T) {
	t.Run("matches wrapped AppError", func(t *testing.T) {
		err := fmt.Errorf("create session: %w", CreditTransactionFailed())
		assert.True(t, HasCode(err, ErrCodeCreditTransactionFailed))
		assert.False(t, HasCode(err, ErrCodeInsufficientCredit))
	})

	t.Run("false for standard error", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), ErrCodeInternal))
	})
}

func TestNotFoundMessage(t *testing.T) {
	t.Run("formats resource name correctly", func(t *testing.T) {
		err := NotFound("Game")
		assert.Equal(t, "Game not found", err.Message)

		err = NotFound("Player")
		assert.Equal(t, "Player not found", err.Message)
	})
}

func TestMissingRequiredMessage(t *testing.T) {
	t.Run("formats field name correctly", func(t *testing.T) {
		err := MissingRequired("teamName")
		assert.Equal(t, "teamName is required", err.Message)

		err = MissingRequired("questionId")
		assert.Equal(t, "questionId is required", err.Message)
	})
}
