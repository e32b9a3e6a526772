package subscriber

import "fmt"

// ErrorCode identifies a kind of error a Synchronizer operation can return.
type ErrorCode int

const (
	// ErrIO indicates the underlying reader/writer for Save/Load failed.
	ErrIO ErrorCode = iota

	// ErrUnsupportedVersion indicates a persisted subscription-set blob
	// declares a version newer than this build supports.
	ErrUnsupportedVersion
)

var errorCodeStrings = map[ErrorCode]string{
	ErrIO:                 "ErrIO",
	ErrUnsupportedVersion: "ErrUnsupportedVersion",
}

func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors a Synchronizer operation can
// return.
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

func subscriberError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
