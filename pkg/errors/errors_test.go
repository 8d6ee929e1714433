package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "fetch_failed error (code 500): server error",
		(&Error{Type: ErrorTypeFetch, Message: "server error", Code: 500}).Error())
	assert.Equal(t, "config_missing error: no config file",
		New(ErrorTypeConfigMissing, "no config file").Error())
	assert.Contains(t, Wrap(ErrorTypeMediaDownload, stderrors.New("boom"), "download").Error(), "boom")
}

func TestWrapKeepsStatusCode(t *testing.T) {
	inner := &Error{Type: ErrorTypeServerError, Message: "server error", Code: 503}
	outer := Wrap(ErrorTypeFetch, inner, "timeline request failed")

	assert.Equal(t, 503, outer.Code)
	assert.True(t, stderrors.Is(outer, inner))
	assert.Equal(t,
		"fetch_failed error (code 503): timeline request failed: server_error error (code 503): server error",
		outer.Error())
}

func TestTokenExchangeErrorKeepsCause(t *testing.T) {
	cause := &Error{Type: ErrorTypeServerError, Message: "unexpected status 500", Code: 500}
	err := Wrap(ErrorTypeTokenExchange, cause, "token exchange for nogi failed")

	assert.Contains(t, err.Error(), "token exchange for nogi failed")
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestIsType(t *testing.T) {
	inner := New(ErrorTypeNetwork, "connection refused")
	outer := fmt.Errorf("member 12: %w", Wrap(ErrorTypeFetch, inner, "timeline request failed"))

	assert.True(t, IsType(outer, ErrorTypeFetch))
	assert.True(t, IsType(outer, ErrorTypeNetwork))
	assert.False(t, IsType(outer, ErrorTypeTokenExchange))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeFetch))
	assert.False(t, IsType(nil, ErrorTypeFetch))

	assert.Equal(t, ErrorTypeFetch, TypeOf(outer))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
}

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServerError},
		{504, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, FromStatusCode(tt.code))
		})
	}
}
