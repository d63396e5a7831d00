package protocol

import (
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"
)

// CodeProtocolViolation marks an unrecognized tag or an unmatched response.
const CodeProtocolViolation platformerrors.ErrorCode = "PROTOCOL_VIOLATION"

var (
	// ErrProtocolViolation is fatal to the channel it was detected on.
	ErrProtocolViolation = platformerrors.New(CodeProtocolViolation, "thumbcache: protocol violation")

	// ErrClosed is returned once the supervisor has stopped accepting requests.
	ErrClosed = platformerrors.New(platformerrors.CodeUnavailable, "thumbcache: closed")
)

// Violation wraps ErrProtocolViolation with detail.
func Violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}
