package node

import "github.com/ardolabar/bytecoin/crypto"

// OutputType tags the two output kinds this core understands. Any other
// value decoded from the wire is silently skipped by the Transfers Consumer
// — a deliberate forward-compatibility allowance
// rather than a bug.
type OutputType uint8

const (
	OutputTypeInvalid OutputType = iota
	OutputTypeKey
	OutputTypeMultisignature
)

func (t OutputType) String() string {
	switch t {
	case OutputTypeKey:
		return "Key"
	case OutputTypeMultisignature:
		return "Multisignature"
	default:
		return "Invalid"
	}
}

// InputType mirrors OutputType for transaction inputs.
type InputType uint8

const (
	InputTypeInvalid InputType = iota
	InputTypeKey
	InputTypeMultisignature
)

// OutputKey is the type-specific payload of a Key output.
type OutputKey struct {
	Amount uint64
	Key    crypto.PublicKey
}

// OutputMultisignature is the type-specific payload of a Multisignature
// output.
type OutputMultisignature struct {
	Amount             uint64
	RequiredSignatures uint32
}

// InputKey is the type-specific payload of a Key input: the key image it
// publishes to spend a previously detected Key output.
type InputKey struct {
	Amount   uint64
	KeyImage crypto.KeyImage
}

// InputMultisignature is the type-specific payload of a Multisignature
// input. Multisignature outputs carry no key image, so the spend is matched
// by (Amount, OutputIndex) against the owned set instead.
type InputMultisignature struct {
	Amount      uint64
	OutputIndex uint64
}

// AccountOutput is one entry of the output set findOutputsToAccount reports:
// the index of an output within the transaction, and the amount it pays (the
// amount is only meaningful for Key outputs prior to decoding; callers read
// the authoritative amount back off the decoded output).
type AccountOutput struct {
	OutputIndex uint64
	Amount      uint64
}

// TransactionReader is the read-only view onto a transaction that the
// Transfers Consumer scans. Implemented by whatever parses raw block/tx
// blobs; that parsing is out of scope here, which only consumes the
// resulting interface.
type TransactionReader interface {
	GetTransactionHash() crypto.Hash
	GetTransactionPublicKey() crypto.PublicKey
	GetUnlockTime() uint64

	// GetPaymentId reports the transaction's payment ID, if any. Returns
	// false when the transaction carries none, in which case callers treat
	// the payment ID as all-zero.
	GetPaymentId() (crypto.Hash, bool)

	GetInputCount() int
	GetInputType(i int) InputType
	GetInputKey(i int) InputKey
	GetInputMultisignature(i int) InputMultisignature

	GetOutputType(i int) OutputType
	GetOutputKey(i int) OutputKey
	GetOutputMultisignature(i int) OutputMultisignature

	// FindOutputsToAccount returns the indices (and, for convenience, the
	// amounts) of every output in the transaction that address/viewSecret
	// can detect as owned. A cryptography primitive external to this core
	//.
	FindOutputsToAccount(addr crypto.AccountAddress, viewSecret crypto.SecretKey) []AccountOutput
}

// KeyImageDeriver derives the key image and ephemeral public key for a Key
// output owned by accountKeys, given the transaction's public key and the
// output's index within the transaction. A cryptography primitive external
// to this core.
type KeyImageDeriver interface {
	GenerateKeyImage(accountKeys crypto.AccountKeys, txPublicKey crypto.PublicKey, outputIndex uint64) (ephemeral crypto.PublicKey, image crypto.KeyImage, err error)
}
