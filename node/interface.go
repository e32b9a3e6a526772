// Package node defines the external collaborators the transfer
// synchronization core consumes: the remote node RPC surface, and the
// block/transaction reader surface that block parsing and
// output-detection cryptography are expected to satisfy. Nothing in this
// package talks to a network — it is a pure contract, implemented and
// exercised elsewhere (an RPC client, a test double).
package node

import (
	"github.com/ardolabar/bytecoin/crypto"
)

// Interface is the remote-node surface the Blockchain Synchronizer and
// Transfers Consumer drive: a small set of synchronous, blocking calls
// plus a notification channel for asynchronous chain-tip events. Callers
// that need to run a continuation off the calling goroutine just launch
// one, rather than needing a dedicated callback thread to free.
type Interface interface {
	// GetNewBlocks returns the block interval following the first hash in
	// history that the node still recognizes as part of its best chain.
	// history must be a short history as produced by
	// chainsync.SynchronizationState.GetShortHistory — sparse, most recent first, always ending in
	// the genesis hash.
	GetNewBlocks(history []crypto.Hash) (BlocksResponse, error)

	// GetTransactionOutsGlobalIndices returns the network-wide global
	// output index for every output of txHash, ordered by
	// outputInTransaction. Blocks the calling goroutine; callers that want
	// this off a worker's own goroutine already are on one (see
	// consumer.Consumer's worker pool).
	GetTransactionOutsGlobalIndices(txHash crypto.Hash) ([]uint64, error)

	// GetLastLocalBlockHeight returns the node's current best-chain height.
	GetLastLocalBlockHeight() uint64

	// Notifications returns a channel of LastKnownBlockHeightUpdated
	// events. The channel is closed when the node connection is torn down.
	Notifications() <-chan interface{}
}

// BlocksResponse is the result of a GetNewBlocks call: a contiguous run of
// raw blocks starting at StartHeight.
type BlocksResponse struct {
	StartHeight uint64
	Blocks      []RawBlock
}

// RawBlock is an undecoded block as returned by the node: the block header
// blob (which also encodes the miner transaction) plus the blob of every
// other transaction in the block.
type RawBlock struct {
	Block        []byte
	Transactions [][]byte
}

// BlockParser decodes a RawBlock into a CompleteBlock. Block parsing and the
// cryptography it depends on are external collaborators; this interface is
// the seam the Blockchain Synchronizer calls through.
type BlockParser interface {
	ParseBlock(raw RawBlock) (CompleteBlock, error)
}

// CompleteBlock is a parsed block ready for per-consumer scanning: its
// identity, its height/timestamp, and every transaction it contains (miner
// transaction first, the order block assembly produces).
type CompleteBlock struct {
	BlockHash    crypto.Hash
	Height       uint64
	Timestamp    uint64
	Transactions []TransactionReader
}

// LastKnownBlockHeightUpdated is the notification a node implementation
// sends whenever its view of the best-chain tip advances. Receiving one
// triggers a new synchronization pass.
type LastKnownBlockHeightUpdated struct {
	Height uint64
}
