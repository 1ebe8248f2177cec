// Package errors defines the result codes and error type used throughout
// diskofat. It mirrors the teacher's errno-wrapping pattern but is built
// around the fixed vocabulary of result codes a FAT driver reports to its
// caller instead of raw POSIX errno values.
package errors

import "fmt"

// Result is one of the fixed outcome codes a driver operation can report.
// It is deliberately a small closed set, not an open errno space: callers
// on resource-constrained targets switch on it directly.
type Result uint8

const (
	OK Result = iota
	NotReady
	NoFile
	NoPath
	InvalidName
	InvalidDrive
	Denied
	DiskFull
	RWError
	WriteProtected
	NotEnabled
	NoFileSystem
	InvalidObject
	MKFSAborted
)

var resultText = [...]string{
	OK:             "ok",
	NotReady:       "device not ready",
	NoFile:         "no such file",
	NoPath:         "no such path",
	InvalidName:    "invalid name",
	InvalidDrive:   "invalid drive",
	Denied:         "access denied",
	DiskFull:       "disk full",
	RWError:        "read/write error",
	WriteProtected: "write protected",
	NotEnabled:     "drive not enabled",
	NoFileSystem:   "no filesystem",
	InvalidObject:  "invalid object",
	MKFSAborted:    "mkfs aborted",
}

// Code returns r itself, so a bare Result satisfies DriverError directly
// without having to be wrapped first.
func (r Result) Code() Result {
	return r
}

// Error implements the `error` object interface. When called, it returns a
// string describing the error.
func (r Result) Error() string {
	if int(r) < len(resultText) && resultText[r] != "" {
		return resultText[r]
	}
	return fmt.Sprintf("result code %d", uint8(r))
}

// WithMessage attaches a custom message to this result code, the same way
// the teacher's DiskoError.WithMessage does for syscall.Errno.
func (r Result) WithMessage(message string) DriverError {
	return customDriverError{
		code:    r,
		message: message,
	}
}

// WrapError attaches an underlying error's text to this result code.
func (r Result) WrapError(err error) DriverError {
	return customDriverError{
		code:    r,
		message: fmt.Sprintf("%s: %s", r.Error(), err.Error()),
		wrapped: err,
	}
}
