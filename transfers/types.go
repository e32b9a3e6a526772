// Package transfers implements the Transfers Container: the
// authoritative, per-account in-memory store of owned outputs, spent
// outputs, and the transactions that produced them, plus balance queries
// filtered by lock state and type, reorg handling, and versioned binary
// persistence.
package transfers

import "github.com/ardolabar/bytecoin/crypto"
import "github.com/ardolabar/bytecoin/node"

// BlockInfo identifies a block by height and timestamp.
type BlockInfo struct {
	Height    uint64
	Timestamp uint64
}

// TransactionInformation is the per-transaction record the container keeps
// for every transaction that touched the account.
type TransactionInformation struct {
	TransactionHash crypto.Hash
	PublicKey       crypto.PublicKey
	BlockHeight     uint64
	Timestamp       uint64
	UnlockTime      uint64
	PaymentId       crypto.Hash
}

// DetectedOutput is what the Transfers Consumer hands to
// Container.AddTransactionOutputs: an output the consumer has already
// confirmed belongs to the account, with its key image derived (for Key
// outputs).
type DetectedOutput struct {
	Type                 node.OutputType
	Amount               uint64
	GlobalOutputIndex    uint64
	OutputInTransaction  uint64
	TransactionPublicKey crypto.PublicKey

	// Key-output-only fields.
	OutputKey crypto.PublicKey
	KeyImage  crypto.KeyImage

	// Multisignature-output-only field.
	RequiredSignatures uint32
}

// ExtendedOutputInformation is what the container actually stores for an
// owned output: a DetectedOutput plus the block/transaction context needed
// to answer lock-state and detach queries.
type ExtendedOutputInformation struct {
	DetectedOutput
	UnlockTime      uint64
	BlockHeight     uint64
	TransactionHash crypto.Hash
}

// SpentOutputInformation is an ExtendedOutputInformation that has since been
// spent, plus where it was spent.
type SpentOutputInformation struct {
	ExtendedOutputInformation
	SpendingBlock          BlockInfo
	SpendingTransactionHash crypto.Hash
	InputInTransaction     uint64
}

// OutputInformation is the public, read-only projection of an owned output
// returned from GetOutputs/GetTransactionOutputs — it drops the container's
// internal bookkeeping (key image, exact block context beyond what callers
// need).
type OutputInformation struct {
	Type                 node.OutputType
	Amount               uint64
	GlobalOutputIndex    uint64
	OutputInTransaction  uint64
	TransactionPublicKey crypto.PublicKey
	OutputKey            crypto.PublicKey
	RequiredSignatures   uint32
}

func (e *ExtendedOutputInformation) toOutputInformation() OutputInformation {
	return OutputInformation{
		Type:                 e.Type,
		Amount:               e.Amount,
		GlobalOutputIndex:    e.GlobalOutputIndex,
		OutputInTransaction:  e.OutputInTransaction,
		TransactionPublicKey: e.TransactionPublicKey,
		OutputKey:            e.OutputKey,
		RequiredSignatures:   e.RequiredSignatures,
	}
}
