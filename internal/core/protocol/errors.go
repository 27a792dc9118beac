package protocol

import (
	"errors"
	"time"
)

// Core error taxonomy. Everything here is fatal: a failed build, a dead
// probe, a corrupted stream or a silent device all abort the run. Retrying
// would corrupt timing semantics, so nothing is retried anywhere.
var (
	// Build errors

	ErrBuildFailed = errors.New("build failed")

	// Flash / device connection errors

	ErrFlashFailed = errors.New("flash failed")

	// Stream errors

	ErrMalformedFrame     = errors.New("malformed frame")
	ErrChecksumMismatch   = errors.New("frame checksum mismatch")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrFrameTooLarge      = errors.New("frame too large")
	ErrStreamDesync       = errors.New("stream never synchronized")
	ErrOutOfOrder         = errors.New("message out of order")
	ErrStreamClosed       = errors.New("stream closed before done")

	// Watchdog errors

	ErrDeviceTimeout = errors.New("device timeout")

	// Validation errors

	ErrSampleBufferExceeded = errors.New("sample size exceeds compiled capacity")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrDuplicateIdentifier  = errors.New("duplicate benchmark identifier")
)

// ErrorCode represents a numeric error code for categorized error handling
type ErrorCode int

const (
	// Success

	ErrorCodeSuccess ErrorCode = 0

	// Build error codes (1000-1999)

	ErrorCodeBuildFailed ErrorCode = 1001

	// Flash error codes (2000-2999)

	ErrorCodeFlashFailed ErrorCode = 2001

	// Stream error codes (3000-3999)

	ErrorCodeMalformedFrame     ErrorCode = 3001
	ErrorCodeChecksumMismatch   ErrorCode = 3002
	ErrorCodeUnknownMessageType ErrorCode = 3003
	ErrorCodeFrameTooLarge      ErrorCode = 3004
	ErrorCodeStreamDesync       ErrorCode = 3005
	ErrorCodeOutOfOrder         ErrorCode = 3006
	ErrorCodeStreamClosed       ErrorCode = 3007

	// Watchdog error codes (4000-4999)

	ErrorCodeDeviceTimeout ErrorCode = 4001

	// Validation error codes (5000-5999)

	ErrorCodeSampleBufferExceeded ErrorCode = 5001
	ErrorCodeInvalidConfig        ErrorCode = 5002
	ErrorCodeDuplicateIdentifier  ErrorCode = 5003

	// Generic error codes (9000-9999)

	ErrorCodeUnknownError ErrorCode = 9999
)

// Error is a categorized error with an optional cause and free-form context.
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Context   map[string]interface{}
	Timestamp int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match both the sentinel for the code and wrapped causes.
func (e *Error) Is(target error) bool {
	if sentinel, ok := errorSentinelMap[e.Code]; ok && target == sentinel {
		return true
	}
	return false
}

// NewError creates a categorized error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

// NewBuildError reports a failed build with its captured diagnostics.
func NewBuildError(message string, cause error) *Error {
	return NewError(ErrorCodeBuildFailed, message, cause)
}

// NewFlashError reports a failed flash or device connection.
func NewFlashError(message string, cause error) *Error {
	return NewError(ErrorCodeFlashFailed, message, cause)
}

// NewProtocolError reports a corrupted or out-of-order stream.
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return NewError(code, message, cause)
}

// NewDeviceTimeout reports watchdog expiry while waiting on the device.
func NewDeviceTimeout(message string) *Error {
	return NewError(ErrorCodeDeviceTimeout, message, ErrDeviceTimeout)
}

// NewValidationError reports a configuration rejected before any run starts.
func NewValidationError(code ErrorCode, message string, cause error) *Error {
	return NewError(code, message, cause)
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// IsFatal reports whether the run must abort. Every categorized error is
// fatal; calibration clamping never produces an Error, it is degraded
// precision, not failure.
func (e *Error) IsFatal() bool {
	return e.Code != ErrorCodeSuccess
}

// Error mapping from sentinel errors to error codes
var errorCodeMap = map[error]ErrorCode{
	ErrBuildFailed: ErrorCodeBuildFailed,
	ErrFlashFailed: ErrorCodeFlashFailed,

	ErrMalformedFrame:     ErrorCodeMalformedFrame,
	ErrChecksumMismatch:   ErrorCodeChecksumMismatch,
	ErrUnknownMessageType: ErrorCodeUnknownMessageType,
	ErrFrameTooLarge:      ErrorCodeFrameTooLarge,
	ErrStreamDesync:       ErrorCodeStreamDesync,
	ErrOutOfOrder:         ErrorCodeOutOfOrder,
	ErrStreamClosed:       ErrorCodeStreamClosed,

	ErrDeviceTimeout: ErrorCodeDeviceTimeout,

	ErrSampleBufferExceeded: ErrorCodeSampleBufferExceeded,
	ErrInvalidConfig:        ErrorCodeInvalidConfig,
	ErrDuplicateIdentifier:  ErrorCodeDuplicateIdentifier,
}

var errorSentinelMap = func() map[ErrorCode]error {
	m := make(map[ErrorCode]error, len(errorCodeMap))
	for sentinel, code := range errorCodeMap {
		m[code] = sentinel
	}
	return m
}()

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Code
	}

	return ErrorCodeUnknownError
}

// WrapError wraps an error into a categorized Error, inferring the code
// from known sentinels.
func WrapError(err error, message string) *Error {
	return NewError(GetErrorCode(err), message, err)
}
