package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// MissingParentError represents when a file couldn't be synced because its
// parent couldn't be resolved as a folder on the device.
type MissingParentError struct {
	Path string
}

func (err MissingParentError) Error() string {
	return fmt.Sprintf("parent of %q is not a folder on the device", err.Path)
}

// ChecksumMismatchError represents when a file's digest on the device didn't
// match the local digest after an upload. The uploaded file is left on the
// device.
type ChecksumMismatchError struct {
	Path   string
	Local  string
	Remote string
}

func (err ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %q: local %s, device %s",
		err.Path, err.Local, err.Remote)
}

// DeviceIOError represents a transfer or folder creation that failed at the
// device boundary. These failures are considered transient, and are the only
// errors the retry policy retries.
type DeviceIOError struct {
	Op  string
	Err error
}

func (err DeviceIOError) Error() string {
	return fmt.Sprintf("device %s: %s", err.Op, err.Err)
}

func (err DeviceIOError) Unwrap() error {
	return err.Err
}

// IsDeviceIO returns whether any error in err's wrap chain was caused by a
// device I/O failure.
func IsDeviceIO(err error) bool {
	for curr := err; curr != nil; curr = unwrapOne(curr) {
		if _, ok := curr.(DeviceIOError); ok {
			return true
		}
	}
	return false
}

func unwrapOne(err error) error {
	unwrapper, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return unwrapper.Unwrap()
}
