package objectstore

import (
	"errors"
	"fmt"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeInvalidKey          = "E_INVALID_KEY"
	CodeChecksumMismatch    = "E_CHECKSUM_MISMATCH"
	CodeTransferFailed      = "E_TRANSFER_FAILED"
	CodeCancelled           = "E_CANCELLED"
)

// Error wraps object store failures with retryability hints.
// Retryable is decided once, where the failure is first observed.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error         { return e.Err }
func (e *Error) CodeValue() string     { return e.Code }
func (e *Error) RetryableStatus() bool { return e.Retryable }

// IsAuth reports whether err is a credential or permission failure.
func (e *Error) IsAuth() bool {
	return e != nil && (e.Code == CodeAuthInvalid || e.Code == CodePermissionDenied)
}

func wrapError(code string, retryable bool, err error) *Error {
	if err == nil {
		return &Error{Code: code, Retryable: retryable}
	}
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// IsNotFound reports whether err signals a missing object.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeObjectNotFound
}

// IsBucketNotFound reports whether err signals a missing bucket.
func IsBucketNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeBucketNotFound
}

// IsAuth reports whether err anywhere in its chain is an auth failure.
func IsAuth(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.IsAuth()
}
