package chainsync

import "fmt"

// ErrorCode identifies a kind of error a chainsync operation can return.
type ErrorCode int

const (
	// ErrGenesisMismatch indicates a persisted genesis hash differs from
	// the hash the Synchronizer was configured with.
	ErrGenesisMismatch ErrorCode = iota

	// ErrBlockParse indicates a raw block blob returned by the node could
	// not be parsed. The current pass is abandoned without advancing any
	// consumer's state.
	ErrBlockParse

	// ErrNodeTransport indicates the remote node RPC call failed.
	ErrNodeTransport

	// ErrIO indicates the underlying reader/writer for Save/Load failed.
	ErrIO

	// ErrNonContiguous indicates SynchronizationState.AddBlocks was asked
	// to append a run that does not start immediately after the state's
	// current height.
	ErrNonContiguous
)

var errorCodeStrings = map[ErrorCode]string{
	ErrGenesisMismatch: "ErrGenesisMismatch",
	ErrBlockParse:      "ErrBlockParse",
	ErrNodeTransport:   "ErrNodeTransport",
	ErrIO:              "ErrIO",
	ErrNonContiguous:   "ErrNonContiguous",
}

func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors a chainsync operation can return.
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

func syncError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}
