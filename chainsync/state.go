package chainsync

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"

	"github.com/ardolabar/bytecoin/crypto"
)

// recentHistoryDepth is the number of most-recent block hashes the short
// history includes in full before the step between included hashes starts
// doubling.
const recentHistoryDepth = 10

// Interval is a contiguous run of block hashes starting at StartHeight, as
// returned by the remote node.
type Interval struct {
	StartHeight uint64
	Blocks      []crypto.Hash
}

// IntervalResult is the outcome of reconciling a freshly fetched Interval
// against a SynchronizationState.
type IntervalResult struct {
	DetachRequired bool
	DetachHeight   uint64
	HasNewBlocks   bool
	NewBlockHeight uint64
}

// SynchronizationState is one consumer's view of the chain prefix it has
// already observed: an ordered run of block hashes starting at the genesis,
// plus the algorithm that reconciles a freshly fetched interval against that
// prefix. Not safe for concurrent use without external
// synchronization — callers (BlockchainSynchronizer) serialize access per
// consumer.
type SynchronizationState struct {
	genesisBlockHash   crypto.Hash
	blockHashes        []crypto.Hash
	heightOfFirstEntry uint64
}

// NewSynchronizationState seeds a SynchronizationState with the configured
// genesis hash; blockHashes[0] is always the genesis hash.
func NewSynchronizationState(genesisBlockHash crypto.Hash) *SynchronizationState {
	return &SynchronizationState{
		genesisBlockHash: genesisBlockHash,
		blockHashes:      []crypto.Hash{genesisBlockHash},
	}
}

// heightOf returns the chain height of blockHashes[i].
func (s *SynchronizationState) heightOf(i int) uint64 {
	return s.heightOfFirstEntry + uint64(i)
}

// GetHeight returns the height of the last known block, or 0 if only the
// genesis is known.
func (s *SynchronizationState) GetHeight() uint64 {
	if len(s.blockHashes) == 0 {
		return 0
	}
	return s.heightOf(len(s.blockHashes) - 1)
}

// GetShortHistory produces the sparse, doubling-gap back-walk of known block
// hashes used to ask a remote node where this chain's view diverges: the
// most recent recentHistoryDepth hashes at step 1, then step doubling
// (2, 4, 8, ...), always ending with the genesis hash. Deterministic: a
// pure function of blockHashes.
func (s *SynchronizationState) GetShortHistory() []crypto.Hash {
	n := len(s.blockHashes)
	if n == 0 {
		return []crypto.Hash{s.genesisBlockHash}
	}

	var history []crypto.Hash
	step := 1
	taken := 0
	for i := n - 1; i >= 0; {
		history = append(history, s.blockHashes[i])
		taken++
		if i == 0 {
			break
		}
		if taken >= recentHistoryDepth {
			step *= 2
		}
		i -= step
	}

	if history[len(history)-1] != s.genesisBlockHash {
		history = append(history, s.genesisBlockHash)
	}
	return history
}

// CheckInterval finds the longest prefix of interval.Blocks whose hashes
// agree with this state's known hashes at the corresponding heights, and
// reports whether a detach and/or an append of new blocks is required.
func (s *SynchronizationState) CheckInterval(interval Interval) IntervalResult {
	var result IntervalResult

	matchEnd := interval.StartHeight
	for i, h := range interval.Blocks {
		height := interval.StartHeight + uint64(i)
		idx, ok := s.indexForHeight(height)
		if !ok {
			// New territory: nothing recorded at this height yet.
			break
		}
		if s.blockHashes[idx] != h {
			result.DetachRequired = true
			result.DetachHeight = height
			break
		}
		matchEnd = height + 1
	}

	if matchEnd < interval.StartHeight+uint64(len(interval.Blocks)) {
		result.HasNewBlocks = true
		result.NewBlockHeight = matchEnd
	}

	return result
}

// indexForHeight returns the index into blockHashes holding the hash at the
// given height, if the state has recorded one.
func (s *SynchronizationState) indexForHeight(height uint64) (int, bool) {
	if height < s.heightOfFirstEntry {
		return 0, false
	}
	idx := int(height - s.heightOfFirstEntry)
	if idx >= len(s.blockHashes) {
		return 0, false
	}
	return idx, true
}

// Detach truncates blockHashes so no entry has height >= height.
func (s *SynchronizationState) Detach(height uint64) {
	idx, ok := s.indexForHeight(height)
	if !ok {
		if height <= s.heightOfFirstEntry {
			s.blockHashes = s.blockHashes[:0]
			s.heightOfFirstEntry = height
		}
		return
	}
	s.blockHashes = s.blockHashes[:idx]
}

// Save writes {heightOfFirstEntry, varint hashCount, hashes...}, the
// per-consumer half of a subscription's persisted blob.
func (s *SynchronizationState) Save(w io.Writer) error {
	var heightBuf [8]byte
	binary.LittleEndian.PutUint64(heightBuf[:], s.heightOfFirstEntry)
	if _, err := w.Write(heightBuf[:]); err != nil {
		return syncError(ErrIO, "failed to write heightOfFirstEntry", err)
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(s.blockHashes))); err != nil {
		return syncError(ErrIO, "failed to write block hash count", err)
	}
	for _, h := range s.blockHashes {
		if _, err := w.Write(h[:]); err != nil {
			return syncError(ErrIO, "failed to write block hash", err)
		}
	}
	return nil
}

// Load replaces the state's contents with what r encodes.
func (s *SynchronizationState) Load(r io.Reader) error {
	var heightBuf [8]byte
	if _, err := io.ReadFull(r, heightBuf[:]); err != nil {
		return syncError(ErrIO, "failed to read heightOfFirstEntry", err)
	}
	heightOfFirstEntry := binary.LittleEndian.Uint64(heightBuf[:])

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return syncError(ErrIO, "failed to read block hash count", err)
	}

	hashes := make([]crypto.Hash, count)
	for i := range hashes {
		if _, err := io.ReadFull(r, hashes[i][:]); err != nil {
			return syncError(ErrIO, "failed to read block hash", err)
		}
	}

	s.heightOfFirstEntry = heightOfFirstEntry
	s.blockHashes = hashes
	return nil
}

// AddBlocks appends count hashes starting at startHeight. Requires
// contiguity: startHeight must equal GetHeight()+1 (or 1, immediately after
// the genesis baseline at height 0), else it returns ErrNonContiguous
// without mutating state.
func (s *SynchronizationState) AddBlocks(hashes []crypto.Hash, startHeight uint64, count int) error {
	if uint64(len(hashes)) < uint64(count) {
		return syncError(ErrNonContiguous, "not enough hashes for requested count", nil)
	}
	if startHeight != s.GetHeight()+1 {
		return syncError(ErrNonContiguous, "addBlocks start height is not contiguous with known state", nil)
	}
	s.blockHashes = append(s.blockHashes, hashes[:count]...)
	return nil
}
