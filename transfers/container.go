package transfers

import (
	"sync"
	"time"

	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
)

// Config carries the currency-policy values a caller supplies externally
// (max block height, allowed lock deltas) plus the account-level
// spendable-age policy from the subscription.
type Config struct {
	// MaxBlockHeight is the threshold below which an unlock-time value is
	// interpreted as a block height rather than a UNIX timestamp.
	MaxBlockHeight uint64

	// LockedTxAllowedDeltaBlocks is added to the current height when
	// checking a block-height-style unlock time.
	LockedTxAllowedDeltaBlocks uint64

	// LockedTxAllowedDeltaSeconds is added to the wall-clock time when
	// checking a timestamp-style unlock time.
	LockedTxAllowedDeltaSeconds uint64

	// TransactionSpendableAge is the minimum confirmation depth an owned
	// output needs before it is no longer soft-locked.
	TransactionSpendableAge uint64

	// Now returns the current UNIX time. Defaults to time.Now when nil;
	// overridable so tests can pin wall-clock-dependent unlock checks.
	Now func() uint64
}

func (c *Config) now() uint64 {
	if c.Now != nil {
		return c.Now()
	}
	return uint64(time.Now().Unix())
}

// outputSlot is the primary-sequence storage unit for an owned output,
// keyed by a monotonic id rather than its position in any slice so that the
// keyImage/txHash indices stay valid across erases.
type outputSlot struct {
	id     uint64
	output ExtendedOutputInformation
}

// Container is the Transfers Container: the authoritative in-memory store of
// owned outputs, spends, and transactions for one account.
// All exported operations acquire the container-scoped mutex.
type Container struct {
	mu sync.Mutex

	cfg Config

	currentHeight uint64
	nextSlotID    uint64

	// Primary sequence: insertion-ordered ids of currently-owned outputs.
	order []uint64
	// id -> owned output.
	owned map[uint64]*outputSlot
	// non-unique hashed index: key image -> owning ids (Key outputs only;
	// Multisignature outputs carry a zero key image and are never indexed
	// here).
	keyImageIndex map[crypto.KeyImage][]uint64
	// non-unique hashed index: transaction hash -> owning ids.
	txHashIndex map[crypto.Hash][]uint64

	spent []SpentOutputInformation

	transactions map[crypto.Hash]TransactionInformation
}

// NewContainer constructs an empty Transfers Container.
func NewContainer(cfg Config) *Container {
	return &Container{
		cfg:           cfg,
		owned:         make(map[uint64]*outputSlot),
		keyImageIndex: make(map[crypto.KeyImage][]uint64),
		txHashIndex:   make(map[crypto.Hash][]uint64),
		transactions:  make(map[crypto.Hash]TransactionInformation),
	}
}

// AddTransactionOutputs inserts every detected output as an owned record,
// records the parent transaction if it is new, and returns the summed
// amount.
func (c *Container) AddTransactionOutputs(block BlockInfo, tx node.TransactionReader, detected []DetectedOutput) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var amount uint64
	txHash := tx.GetTransactionHash()

	for _, d := range detected {
		id := c.nextSlotID
		c.nextSlotID++

		ext := ExtendedOutputInformation{
			DetectedOutput:  d,
			UnlockTime:      tx.GetUnlockTime(),
			BlockHeight:     block.Height,
			TransactionHash: txHash,
		}

		c.owned[id] = &outputSlot{id: id, output: ext}
		c.order = append(c.order, id)

		if d.Type == node.OutputTypeKey && !d.KeyImage.IsZero() {
			c.keyImageIndex[d.KeyImage] = append(c.keyImageIndex[d.KeyImage], id)
		}
		c.txHashIndex[txHash] = append(c.txHashIndex[txHash], id)

		amount += d.Amount
	}

	c.addTransactionLocked(block, tx)
	return amount
}

// addTransactionLocked records the parent transaction if it is not already
// known. Caller must hold c.mu.
func (c *Container) addTransactionLocked(block BlockInfo, tx node.TransactionReader) TransactionInformation {
	txHash := tx.GetTransactionHash()
	if info, ok := c.transactions[txHash]; ok {
		return info
	}

	info := TransactionInformation{
		TransactionHash: txHash,
		BlockHeight:     block.Height,
		Timestamp:       block.Timestamp,
		UnlockTime:      tx.GetUnlockTime(),
		PublicKey:       tx.GetTransactionPublicKey(),
	}
	if pid, ok := tx.GetPaymentId(); ok {
		info.PaymentId = pid
	}
	c.transactions[txHash] = info
	return info
}

// AddTransactionInputs scans tx's inputs for ones that spend a currently
// owned output, moves each match to the spent set, records the parent
// transaction if at least one input matched, and returns the summed matched
// amount.
func (c *Container) AddTransactionInputs(block BlockInfo, tx node.TransactionReader) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var amount uint64
	matched := false

	for i := 0; i < tx.GetInputCount(); i++ {
		switch tx.GetInputType(i) {
		case node.InputTypeKey:
			in := tx.GetInputKey(i)
			if c.markKeyImageSpentLocked(block, tx, uint64(i), in.KeyImage) {
				amount += in.Amount
				matched = true
			}
		case node.InputTypeMultisignature:
			in := tx.GetInputMultisignature(i)
			if c.markMultisignatureSpentLocked(block, tx, uint64(i), in) {
				amount += in.Amount
				matched = true
			}
		}
	}

	if matched {
		c.addTransactionLocked(block, tx)
	}

	return amount
}

func (c *Container) markKeyImageSpentLocked(block BlockInfo, tx node.TransactionReader, inputIndex uint64, image crypto.KeyImage) bool {
	ids := c.keyImageIndex[image]
	if len(ids) == 0 {
		return false
	}
	id := ids[0]
	c.spendSlotLocked(id, block, tx.GetTransactionHash(), inputIndex)
	return true
}

func (c *Container) markMultisignatureSpentLocked(block BlockInfo, tx node.TransactionReader, inputIndex uint64, in node.InputMultisignature) bool {
	// Linear scan matching (amount, globalOutputIndex), exactly as the
	// original does — multisignature
	// outputs carry no key image to index by.
	for _, id := range c.order {
		slot := c.owned[id]
		if slot == nil {
			continue
		}
		if slot.output.Type == node.OutputTypeMultisignature &&
			slot.output.Amount == in.Amount &&
			slot.output.GlobalOutputIndex == in.OutputIndex {
			c.spendSlotLocked(id, block, tx.GetTransactionHash(), inputIndex)
			return true
		}
	}
	return false
}

// spendSlotLocked moves owned output id to the spent set. Caller must hold
// c.mu.
func (c *Container) spendSlotLocked(id uint64, block BlockInfo, spendingTxHash crypto.Hash, inputIndex uint64) {
	slot := c.owned[id]
	if slot == nil {
		return
	}

	spent := SpentOutputInformation{
		ExtendedOutputInformation: slot.output,
		SpendingBlock:             block,
		SpendingTransactionHash:   spendingTxHash,
		InputInTransaction:        inputIndex,
	}
	c.spent = append(c.spent, spent)

	c.removeOwnedLocked(id)
}

// removeOwnedLocked deletes owned output id from every index and the
// primary sequence. Caller must hold c.mu.
func (c *Container) removeOwnedLocked(id uint64) {
	slot := c.owned[id]
	if slot == nil {
		return
	}
	delete(c.owned, id)

	if slot.output.Type == node.OutputTypeKey && !slot.output.KeyImage.IsZero() {
		c.keyImageIndex[slot.output.KeyImage] = removeID(c.keyImageIndex[slot.output.KeyImage], id)
		if len(c.keyImageIndex[slot.output.KeyImage]) == 0 {
			delete(c.keyImageIndex, slot.output.KeyImage)
		}
	}
	c.txHashIndex[slot.output.TransactionHash] = removeID(c.txHashIndex[slot.output.TransactionHash], id)
	if len(c.txHashIndex[slot.output.TransactionHash]) == 0 {
		delete(c.txHashIndex, slot.output.TransactionHash)
	}

	c.order = removeID(c.order, id)
}

func removeID(ids []uint64, target uint64) []uint64 {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Detach erases every owned output and transaction with BlockHeight >=
// height, then drops every spend record whose SpendingBlock.Height >=
// height, reviving the output back to owned when its own BlockHeight is
// below height. Reviving the spend keeps balances consistent across a
// reorg that un-confirms the spending transaction. The current height is
// set to height.
func (c *Container) Detach(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range append([]uint64(nil), c.order...) {
		slot := c.owned[id]
		if slot != nil && slot.output.BlockHeight >= height {
			c.removeOwnedLocked(id)
		}
	}

	for hash, info := range c.transactions {
		if info.BlockHeight >= height {
			delete(c.transactions, hash)
		}
	}

	kept := c.spent[:0]
	for _, s := range c.spent {
		if s.SpendingBlock.Height >= height {
			// The spend itself is being reorged out. If the output's own
			// creating block also falls at or beyond the detach height, the
			// output never existed on the surviving chain and is simply
			// dropped; otherwise it reverts to owned.
			if s.BlockHeight < height {
				c.reviveLocked(s)
			}
			continue
		}
		kept = append(kept, s)
	}
	c.spent = kept

	c.currentHeight = height
}

// reviveLocked reinserts a spent output back into the owned set, preserving
// its original indices. Caller must hold c.mu.
func (c *Container) reviveLocked(s SpentOutputInformation) {
	id := c.nextSlotID
	c.nextSlotID++

	ext := s.ExtendedOutputInformation
	c.owned[id] = &outputSlot{id: id, output: ext}
	c.order = append(c.order, id)

	if ext.Type == node.OutputTypeKey && !ext.KeyImage.IsZero() {
		c.keyImageIndex[ext.KeyImage] = append(c.keyImageIndex[ext.KeyImage], id)
	}
	c.txHashIndex[ext.TransactionHash] = append(c.txHashIndex[ext.TransactionHash], id)
}

// UpdateHeight sets the container's notion of the current chain height. No
// other mutation happens.
func (c *Container) UpdateHeight(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentHeight = height
}

// TransfersCount returns the number of owned plus spent outputs.
func (c *Container) TransfersCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owned) + len(c.spent)
}

// TransactionsCount returns the number of distinct recorded transactions.
func (c *Container) TransactionsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transactions)
}

// Balance sums the amount of every owned output selected by flags.
func (c *Container) Balance(flags IncludeFlags) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total uint64
	for _, id := range c.order {
		slot := c.owned[id]
		if slot != nil && c.isIncludedLocked(&slot.output, flags) {
			total += slot.output.Amount
		}
	}
	return total
}

// GetOutputs returns every owned output selected by flags, in insertion
// order.
func (c *Container) GetOutputs(flags IncludeFlags) []OutputInformation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []OutputInformation
	for _, id := range c.order {
		slot := c.owned[id]
		if slot != nil && c.isIncludedLocked(&slot.output, flags) {
			out = append(out, slot.output.toOutputInformation())
		}
	}
	return out
}

// GetTransactionOutputs returns every owned output of transactionHash
// selected by flags. The second return value is false when the transaction
// has no owned outputs on record at all (matching the original's
// empty-range-means-not-found semantics).
func (c *Container) GetTransactionOutputs(transactionHash crypto.Hash, flags IncludeFlags) ([]OutputInformation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.txHashIndex[transactionHash]
	if len(ids) == 0 {
		return nil, false
	}

	var out []OutputInformation
	for _, id := range ids {
		slot := c.owned[id]
		if slot != nil && c.isIncludedLocked(&slot.output, flags) {
			out = append(out, slot.output.toOutputInformation())
		}
	}
	return out, true
}

// GetTransactionInformation looks up a recorded transaction by hash.
func (c *Container) GetTransactionInformation(transactionHash crypto.Hash) (TransactionInformation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.transactions[transactionHash]
	return info, ok
}

// isSpendTimeUnlocked reports whether an output's unlock time has passed,
// interpreting values below cfg.MaxBlockHeight as block heights and values
// at or above it as UNIX timestamps.
func (c *Container) isSpendTimeUnlocked(unlockTime uint64) bool {
	if unlockTime < c.cfg.MaxBlockHeight {
		if c.currentHeight == 0 {
			return false
		}
		return c.currentHeight-1+c.cfg.LockedTxAllowedDeltaBlocks >= unlockTime
	}
	return c.cfg.now()+c.cfg.LockedTxAllowedDeltaSeconds >= unlockTime
}

// isIncludedLocked reports whether an owned output passes the requested
// lock-state and type filter. Caller must hold c.mu.
func (c *Container) isIncludedLocked(info *ExtendedOutputInformation, flags IncludeFlags) bool {
	timeUnlocked := c.isSpendTimeUnlocked(info.UnlockTime)
	deepEnough := c.currentHeight > info.BlockHeight+c.cfg.TransactionSpendableAge
	unlocked := timeUnlocked && deepEnough
	softLocked := timeUnlocked && !deepEnough
	locked := !timeUnlocked

	typeMatch := (flags&IncludeTypeKey != 0 && info.Type == node.OutputTypeKey) ||
		(flags&IncludeTypeMultisignature != 0 && info.Type == node.OutputTypeMultisignature)

	stateMatch := (flags&IncludeStateLocked != 0 && locked) ||
		(flags&IncludeStateUnlocked != 0 && unlocked) ||
		(flags&IncludeStateSoftLocked != 0 && softLocked)

	return typeMatch && stateMatch
}
