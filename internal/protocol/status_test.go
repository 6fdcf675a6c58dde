package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatusSuccess(t *testing.T) {
	cmd := &Command{Status: Status{Code: StatusSuccess}}
	assert.NoError(t, CheckStatus(cmd))
}

func TestCheckStatusNilCommand(t *testing.T) {
	err := CheckStatus(nil)
	assert.ErrorIs(t, err, ErrMissingResponse)
}

func TestCheckStatusNormalization(t *testing.T) {
	tests := []struct {
		code     StatusCode
		expected error
	}{
		{StatusHMACFailure, ErrNotAuthorized},
		{StatusNotAuthorized, ErrNotAuthorized},
		{StatusDeviceLocked, ErrDeviceLocked},
		{StatusDeviceAlreadyUnlocked, ErrDeviceLocked},
		{StatusServiceBusy, ErrBusy},
		{StatusConnectionTerminated, ErrUnavailable},
		{StatusInvalidRequest, ErrInvalidRequest},
		{StatusVersionMismatch, ErrVersion},
		{StatusInternalError, ErrInternal},
		{StatusNotAttempted, ErrInternal},
		{StatusCode(99), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			cmd := &Command{Status: Status{Code: tt.code, StatusMessage: "device said no"}}
			err := CheckStatus(cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, "device said no", se.Message)
			assert.Contains(t, err.Error(), tt.code.String())
		})
	}
}

func TestStatusCodeOf(t *testing.T) {
	code, ok := StatusCodeOf(&StatusError{Code: StatusNotFound})
	assert.True(t, ok)
	assert.Equal(t, StatusNotFound, code)

	_, ok = StatusCodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestMessageTypeResponse(t *testing.T) {
	assert.Equal(t, MessageTypeGetLogResponse, MessageTypeGetLog.Response())
	assert.Equal(t, MessageTypeSetupResponse, MessageTypeSetup.Response())
	assert.Equal(t, MessageTypeSecurityResponse, MessageTypeSecurity.Response())
	assert.Equal(t, MessageTypePinOpResponse, MessageTypePinOp.Response())
	assert.True(t, UsesPINAuth(MessageTypePinOp))
	assert.False(t, UsesPINAuth(MessageTypeSecurity))
}
