package errors

import (
	stderrors "errors"

	"golang.org/x/sys/unix"
)

// ComponentBackend is the component name attached to classified native errors.
const ComponentBackend = "backend"

// statusCodes maps negated errno values onto error codes. Anything not
// listed classifies as ErrCodeBackendFailure.
var statusCodes = map[unix.Errno]ErrorCode{
	unix.ENOENT:     ErrCodeObjectNotFound,
	unix.EEXIST:     ErrCodeObjectExists,
	unix.EACCES:     ErrCodePermissionDenied,
	unix.EPERM:      ErrCodePermissionDenied,
	unix.ERANGE:     ErrCodeBuffer,
	unix.ETIMEDOUT:  ErrCodeOperationTimeout,
	unix.EOPNOTSUPP: ErrCodeNotSupported,
	unix.ENOTCONN:   ErrCodeConnectionFailed,
	unix.ESHUTDOWN:  ErrCodeClusterClosed,
	unix.ECANCELED:  ErrCodeOperationCanceled,
	unix.EINVAL:     ErrCodeInvalidArgument,
}

// retryableStatus lists transient statuses.
var retryableStatus = map[unix.Errno]bool{
	unix.ETIMEDOUT: true,
	unix.EAGAIN:    true,
	unix.EINTR:     true,
	unix.EBUSY:     true,
}

// FromStatus classifies a signed native status. Non-negative statuses are
// success and yield nil. Negative statuses yield an *Error whose Status is
// the original value and whose Message is the backend's text for the errno.
func FromStatus(status int) error {
	if status >= 0 {
		return nil
	}
	return classify(status)
}

// FromStatus64 is FromStatus for 64-bit statuses such as pool ids.
func FromStatus64(status int64) error {
	if status >= 0 {
		return nil
	}
	return classify(int(status))
}

func classify(status int) *Error {
	errno := unix.Errno(-status)

	code, ok := statusCodes[errno]
	if !ok {
		code = ErrCodeBackendFailure
	}

	err := NewError(code, errno.Error()).WithComponent(ComponentBackend)
	err.Status = status
	err.Retryable = retryableStatus[errno]
	if name := unix.ErrnoName(errno); name != "" {
		err.Context["errno"] = name
	}
	return err
}

// IsOverflow reports whether err is the backend's buffer-too-small
// indication. It matches the status, never the message text.
func IsOverflow(err error) bool {
	return StatusOf(err) == -int(unix.ERANGE)
}

// StatusOf returns the native status carried by err, or 0 if none.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status
	}
	return 0
}

// CodeOf returns the error code carried by err, or "" if err is not structured.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound reports whether err means the object or pool does not exist.
func IsNotFound(err error) bool {
	return StatusOf(err) == -int(unix.ENOENT) || HasCode(err, ErrCodeObjectNotFound) || HasCode(err, ErrCodePoolNotFound)
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}
