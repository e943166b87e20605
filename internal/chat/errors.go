// Package chat implements the room layer of the SDK: feature clients,
// the room lifecycle state machine, and the rooms registry. It sits above
// the realtime channel transport and below application code.
package chat

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of failure across the SDK. Codes are stable
// values so callers can switch on them without string matching.
type ErrorCode int

const (
	// ErrCodeBadRequest covers malformed input to the SDK surface.
	ErrCodeBadRequest ErrorCode = 40000

	// ErrCodeInternal marks conditions that indicate a bug in the SDK
	// rather than a recoverable runtime failure.
	ErrCodeInternal ErrorCode = 50000

	// ErrCodeFeatureNotEnabled is returned by room feature accessors when
	// the feature was not requested in the room options.
	ErrCodeFeatureNotEnabled ErrorCode = 40001

	// Per-feature attachment failures. The failing contributor's cause is
	// wrapped underneath.
	ErrCodeMessagesAttachmentFailed  ErrorCode = 102001
	ErrCodePresenceAttachmentFailed  ErrorCode = 102002
	ErrCodeReactionsAttachmentFailed ErrorCode = 102003
	ErrCodeOccupancyAttachmentFailed ErrorCode = 102004
	ErrCodeTypingAttachmentFailed    ErrorCode = 102005

	// Per-feature detachment failures.
	ErrCodeMessagesDetachmentFailed  ErrorCode = 102050
	ErrCodePresenceDetachmentFailed  ErrorCode = 102051
	ErrCodeReactionsDetachmentFailed ErrorCode = 102052
	ErrCodeOccupancyDetachmentFailed ErrorCode = 102053
	ErrCodeTypingDetachmentFailed    ErrorCode = 102054

	// Room lifecycle violations.
	ErrCodeRoomInFailedState                     ErrorCode = 102101
	ErrCodeRoomIsReleasing                       ErrorCode = 102102
	ErrCodeRoomIsReleased                        ErrorCode = 102103
	ErrCodeRoomReleasedBeforeOperationCompleted  ErrorCode = 102106
	ErrCodeRoomExistsWithDifferentOptions        ErrorCode = 102107
)

// ErrorInfo is the error type surfaced by the room layer. It carries a
// stable code plus an optional wrapped cause from the channel transport.
type ErrorInfo struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ErrorInfo) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *ErrorInfo) Unwrap() error { return e.Cause }

// NewErrorInfo builds an ErrorInfo without a cause.
func NewErrorInfo(code ErrorCode, message string) *ErrorInfo {
	return &ErrorInfo{Code: code, Message: message}
}

// WrapError builds an ErrorInfo wrapping cause. A nil cause is allowed.
func WrapError(code ErrorCode, message string, cause error) *ErrorInfo {
	return &ErrorInfo{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns 0 if err carries no ErrorInfo anywhere in its chain.
func CodeOf(err error) ErrorCode {
	var ei *ErrorInfo
	if errors.As(err, &ei) {
		return ei.Code
	}
	return 0
}
