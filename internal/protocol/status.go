package protocol

import (
	"errors"
	"fmt"
)

// StatusCode is the device-reported outcome of a command.
type StatusCode int32

const (
	StatusInvalid                StatusCode = -1
	StatusNotAttempted           StatusCode = 0
	StatusSuccess                StatusCode = 1
	StatusHMACFailure            StatusCode = 2
	StatusNotAuthorized          StatusCode = 3
	StatusVersionFailure         StatusCode = 4
	StatusInternalError          StatusCode = 5
	StatusHeaderRequired         StatusCode = 6
	StatusNotFound               StatusCode = 7
	StatusVersionMismatch        StatusCode = 8
	StatusServiceBusy            StatusCode = 9
	StatusExpired                StatusCode = 10
	StatusDataError              StatusCode = 11
	StatusPermDataError          StatusCode = 12
	StatusRemoteConnectionError  StatusCode = 13
	StatusNoSpace                StatusCode = 14
	StatusNoSuchHMACAlgorithm    StatusCode = 15
	StatusInvalidRequest         StatusCode = 16
	StatusNestedOperationErrors  StatusCode = 17
	StatusDeviceLocked           StatusCode = 18
	StatusDeviceAlreadyUnlocked  StatusCode = 19
	StatusConnectionTerminated   StatusCode = 20
	StatusInvalidBatch           StatusCode = 21
)

var statusNames = map[StatusCode]string{
	StatusInvalid:               "INVALID_STATUS_CODE",
	StatusNotAttempted:          "NOT_ATTEMPTED",
	StatusSuccess:               "SUCCESS",
	StatusHMACFailure:           "HMAC_FAILURE",
	StatusNotAuthorized:         "NOT_AUTHORIZED",
	StatusVersionFailure:        "VERSION_FAILURE",
	StatusInternalError:         "INTERNAL_ERROR",
	StatusHeaderRequired:        "HEADER_REQUIRED",
	StatusNotFound:              "NOT_FOUND",
	StatusVersionMismatch:       "VERSION_MISMATCH",
	StatusServiceBusy:           "SERVICE_BUSY",
	StatusExpired:               "EXPIRED",
	StatusDataError:             "DATA_ERROR",
	StatusPermDataError:         "PERM_DATA_ERROR",
	StatusRemoteConnectionError: "REMOTE_CONNECTION_ERROR",
	StatusNoSpace:               "NO_SPACE",
	StatusNoSuchHMACAlgorithm:   "NO_SUCH_HMAC_ALGORITHM",
	StatusInvalidRequest:        "INVALID_REQUEST",
	StatusNestedOperationErrors: "NESTED_OPERATION_ERRORS",
	StatusDeviceLocked:          "DEVICE_LOCKED",
	StatusDeviceAlreadyUnlocked: "DEVICE_ALREADY_UNLOCKED",
	StatusConnectionTerminated:  "CONNECTION_TERMINATED",
	StatusInvalidBatch:          "INVALID_BATCH",
}

func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return fmt.Sprintf("StatusCode(%d)", int32(c))
}

// Normalized status classes. A *StatusError unwraps to exactly one of these.
var (
	ErrNotAuthorized  = errors.New("NOT_AUTHORIZED")
	ErrDeviceLocked   = errors.New("DEVICE_LOCKED")
	ErrBusy           = errors.New("BUSY")
	ErrUnavailable    = errors.New("UNAVAILABLE")
	ErrInvalidRequest = errors.New("INVALID_REQUEST")
	ErrVersion        = errors.New("VERSION")
	ErrInternal       = errors.New("INTERNAL")
)

// statusClasses is the deterministic code-to-class table. Codes not listed
// here map to ErrInternal.
var statusClasses = []struct {
	class error
	codes []StatusCode
}{
	{ErrNotAuthorized, []StatusCode{StatusHMACFailure, StatusNotAuthorized, StatusNoSuchHMACAlgorithm}},
	{ErrDeviceLocked, []StatusCode{StatusDeviceLocked, StatusDeviceAlreadyUnlocked}},
	{ErrBusy, []StatusCode{StatusServiceBusy, StatusExpired}},
	{ErrUnavailable, []StatusCode{StatusRemoteConnectionError, StatusConnectionTerminated, StatusNoSpace}},
	{ErrInvalidRequest, []StatusCode{StatusInvalidRequest, StatusHeaderRequired, StatusInvalidBatch, StatusNotFound, StatusNestedOperationErrors}},
	{ErrVersion, []StatusCode{StatusVersionMismatch, StatusVersionFailure}},
}

// ClassOf returns the normalized class for a non-success status code.
func ClassOf(code StatusCode) error {
	for _, entry := range statusClasses {
		for _, c := range entry.codes {
			if c == code {
				return entry.class
			}
		}
	}
	return ErrInternal
}

// StatusError reports a device response whose status was not SUCCESS.
type StatusError struct {
	Code    StatusCode
	Message string
	Detail  []byte
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status: %s)", ClassOf(e.Code), e.Code)
	}
	return fmt.Sprintf("%v (status: %s): %s", ClassOf(e.Code), e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ClassOf(e.Code)
}

// ErrMissingResponse is returned by CheckStatus when there is no command to check.
var ErrMissingResponse = errors.New("missing response command")

// CheckStatus validates a decoded response command.
func CheckStatus(cmd *Command) error {
	if cmd == nil {
		return ErrMissingResponse
	}
	if cmd.Status.Code == StatusSuccess {
		return nil
	}
	return &StatusError{
		Code:    cmd.Status.Code,
		Message: cmd.Status.StatusMessage,
		Detail:  cmd.Status.DetailedMessage,
	}
}

// StatusCodeOf extracts the device status code from err, if any.
func StatusCodeOf(err error) (StatusCode, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return StatusInvalid, false
}
