package thumb

import (
	platformerrors "github.com/jmgilman/go/errors"
)

// Error codes for files that end up as the unavailable marker.
const (
	// CodeFileMissing: the source was deleted after enumeration, before decode.
	CodeFileMissing = platformerrors.CodeNotFound

	// CodeDecodeFailed: corrupt data or an unsupported image format.
	CodeDecodeFailed platformerrors.ErrorCode = "DECODE_FAILED"

	// CodeWorkerFault: the decoder panicked inside a worker.
	CodeWorkerFault platformerrors.ErrorCode = "WORKER_FAULT"
)

// CodeOf returns the error code carried by err, or CodeDecodeFailed for
// errors a decoder returned without one.
func CodeOf(err error) platformerrors.ErrorCode {
	code := platformerrors.GetCode(err)
	if code == platformerrors.CodeUnknown {
		return CodeDecodeFailed
	}
	return code
}
