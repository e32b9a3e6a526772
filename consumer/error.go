package consumer

import "fmt"

// ErrorCode identifies a kind of error a Consumer operation can return.
type ErrorCode int

const (
	// ErrGlobalIndices indicates the node failed to return global output
	// indices for a transaction. The transaction is skipped;
	// the pass continues.
	ErrGlobalIndices ErrorCode = iota
)

var errorCodeStrings = map[ErrorCode]string{
	ErrGlobalIndices: "ErrGlobalIndices",
}

func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors a Consumer operation can return.
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

func consumerError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}

// ProtocolInvariantError indicates a derived ephemeral public key did not
// match the output's stated key: either
// compromised keys or a protocol bug. This is always fatal — callers are
// expected to panic on it, not recover and continue, since it signals the
// account's cryptographic assumptions no longer hold.
type ProtocolInvariantError struct {
	TransactionHash string
	OutputIndex     uint64
}

func (e ProtocolInvariantError) Error() string {
	return fmt.Sprintf("protocol invariant violated: derived ephemeral key "+
		"does not match output key (tx %s, output %d)", e.TransactionHash, e.OutputIndex)
}
