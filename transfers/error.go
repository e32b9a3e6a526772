package transfers

import "fmt"

// ErrorCode identifies a kind of error a Container operation can return.
type ErrorCode int

const (
	// ErrUnsupportedVersion indicates Load was asked to read a persisted
	// blob whose version is newer than this build understands.
	ErrUnsupportedVersion ErrorCode = iota

	// ErrIO indicates the underlying reader/writer failed.
	ErrIO

	// ErrCorruptData indicates a persisted blob's structure could not be
	// decoded (truncated, malformed varint, etc.).
	ErrCorruptData
)

var errorCodeStrings = map[ErrorCode]string{
	ErrUnsupportedVersion: "ErrUnsupportedVersion",
	ErrIO:                 "ErrIO",
	ErrCorruptData:        "ErrCorruptData",
}

func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during a
// Container operation.
type Error struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

func (e Error) Unwrap() error {
	return e.Err
}

func containerError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
