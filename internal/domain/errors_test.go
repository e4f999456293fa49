package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "bad input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", err.Error())

	wrapped := NewDomainErrorWithCause(ErrCodeIndexUnavailable, "store down", errors.New("dial tcp"))
	assert.Equal(t, "[INDEX_UNAVAILABLE] store down: dial tcp", wrapped.Error())
}

func TestWrap_KeepsSentinelIdentity(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(ErrEmbeddingFailed, cause)

	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrGenerationFailed)
}

func TestErrorCode(t *testing.T) {
	err := fmt.Errorf("stage: %w", Wrap(ErrIndexNotFound, nil))

	assert.Equal(t, ErrCodeIndexUnavailable, ErrorCode(err))
	assert.True(t, HasCode(err, ErrCodeIndexUnavailable))
	assert.False(t, HasCode(nil, ErrCodeIndexUnavailable))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}
