package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeValidation, "invalid input")

	assert.NotNil(t, err)
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Err)
	assert.NotEmpty(t, err.StackTrace)
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrapped := Wrap(originalErr, ErrorTypeInternal, "something went wrong")

	assert.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeInternal, wrapped.Type)
	assert.Equal(t, originalErr, wrapped.Err)
	assert.NotEmpty(t, wrapped.StackTrace)

	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "message"))
}

func TestWrapPreservesContext(t *testing.T) {
	original := New(ErrorTypeSchema, "missing data").
		WithContext("field", "data")

	wrapped := Wrap(original, ErrorTypeExternal, "list failed")

	assert.Equal(t, ErrorTypeExternal, wrapped.Type)
	assert.Equal(t, original.Context, wrapped.Context)

	// The copy must not alias the inner map
	wrapped.WithContext("platform", "hackerone")
	assert.NotContains(t, original.Context, "platform")
}

func TestError(t *testing.T) {
	err1 := New(ErrorTypeValidation, "invalid input")
	assert.Equal(t, "validation: invalid input", err1.Error())

	err2 := Wrap(errors.New("original error"), ErrorTypeInternal, "something went wrong")
	assert.Equal(t, "internal: something went wrong: original error", err2.Error())
}

func TestHTTPStatusError(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
	}{
		{429, ErrorTypeTransient},
		{500, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{401, ErrorTypePermission},
		{403, ErrorTypePermission},
		{404, ErrorTypeNotFound},
		{400, ErrorTypeFatal},
		{410, ErrorTypeFatal},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := HTTPStatusError("https://example.test/programs", tt.status)
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestIsWalksChain(t *testing.T) {
	inner := TransientError("decode failed", errors.New("unexpected EOF"))
	outer := fmt.Errorf("fetch: %w", Wrap(inner, ErrorTypeExternal, "hackerone"))

	assert.True(t, Is(outer, ErrorTypeTransient))
	assert.True(t, Is(outer, ErrorTypeExternal))
	assert.False(t, Is(outer, ErrorTypeFatal))
	assert.False(t, Is(errors.New("regular error"), ErrorTypeTransient))
	assert.False(t, Is(nil, ErrorTypeTransient))
}

func TestGetType(t *testing.T) {
	errType, ok := GetType(SchemaError("records", "intigriti"))
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeSchema, errType)

	errType, ok = GetType(errors.New("regular error"))
	assert.False(t, ok)
	assert.Equal(t, ErrorType(""), errType)
}

func TestStatusCodeWithoutContext(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.Equal(t, 0, StatusCode(New(ErrorTypeFatal, "no status")))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{"nil error", nil, ""},
		{"validation error", ValidationError("email is invalid"), "email is invalid"},
		{"not found error", NotFoundError("program", "acme"), "program with id 'acme' not found"},
		{"schema error", SchemaError("data", "hackerone"), "A platform returned data in an unexpected format"},
		{"transient error", TransientError("timeout", nil), "The platform is temporarily unavailable, please try again"},
		{"internal error", InternalError("database error", errors.New("connection lost")), "An internal error occurred, please try again later"},
		{"regular error", errors.New("some error"), "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, UserMessage(tt.err))
		})
	}
}
