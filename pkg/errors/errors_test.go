package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := New(ErrorTypeNetwork, "connection reset")
	assert.Equal(t, "network error: connection reset", err.Error())

	withCode := &Error{Type: ErrorTypeRateLimit, Message: "slow down", Code: 429}
	assert.Equal(t, "rate_limit error (code 429): slow down", withCode.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeGeoMismatch, "wrong country %s (expected %s)", "France", "Spain")
	assert.Equal(t, ErrorTypeGeoMismatch, err.Type)
	assert.Equal(t, "wrong country France (expected Spain)", err.Message)
}

func TestErrorsAsUnwrapsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("probe failed: %w", New(ErrorTypeLoginRequired, "login_required"))

	var classified *Error
	assert.True(t, stderrors.As(wrapped, &classified))
	assert.Equal(t, ErrorTypeLoginRequired, classified.Type)
}

func TestIsRetryable(t *testing.T) {
	for _, typ := range []ErrorType{ErrorTypeNetwork, ErrorTypeGeoMismatch, ErrorTypeServer, ErrorTypePoolExhausted} {
		assert.True(t, IsRetryable(typ), "%s should be retryable", typ)
	}
	for _, typ := range []ErrorType{ErrorTypeConfig, ErrorTypeChallenge, ErrorTypeRateLimit, ErrorTypeLoginRequired, ErrorTypeUnknown} {
		assert.False(t, IsRetryable(typ), "%s should not be retryable", typ)
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrorTypeChallenge))
	assert.True(t, IsFatal(ErrorTypeRateLimit))
	assert.False(t, IsFatal(ErrorTypeNetwork))
	assert.False(t, IsFatal(ErrorTypeLoginRequired))
}

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{0, ErrorTypeNetwork},
		{200, ErrorTypeUnknown},
		{400, ErrorTypeUnknown},
		{401, ErrorTypeLoginRequired},
		{403, ErrorTypeLoginRequired},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServer},
		{503, ErrorTypeServer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatusCode(tt.code), "status %d", tt.code)
	}
}
