// Package consumer implements the Transfers Consumer: the
// per-account worker that scans every transaction of a new block batch for
// outputs owned by the account and inputs that spend them, derives key
// images for spend detection, and drives the Transfers Container.
//
// Block batches are scanned through a bounded worker pool: a producer
// goroutine feeds (block, transaction) pairs onto a channel and a fixed
// number of workers drain it concurrently, using Go's goroutine/channel/
// errgroup idiom in place of a blocking queue and a thread pool.
package consumer

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
	"github.com/ardolabar/bytecoin/transfers"
)

// Observer receives a notification for every transaction that moved the
// account's balance.
type Observer interface {
	OnTransfer(subscription *Consumer, txHash crypto.Hash, amountIn, amountOut uint64)
}

// Config carries the consumer's tunables.
type Config struct {
	// Workers is the size of the block-scanning worker pool. Defaults to
	// runtime.NumCPU(), floored at 2.
	Workers int

	Container transfers.Config
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	if n := runtime.NumCPU(); n >= 2 {
		return n
	}
	return 2
}

// Consumer is the Transfers Consumer: a per-account block processor wired
// to a node for out-of-band global-index lookups and key-image derivation,
// and to a Transfers Container it owns and mutates.
type Consumer struct {
	node            node.Interface
	keyImageDeriver node.KeyImageDeriver
	keys            crypto.AccountKeys
	container       *transfers.Container

	observersMu sync.Mutex
	observers   map[Observer]struct{}

	cfg Config
}

// New constructs a Consumer for the given account subscription.
func New(n node.Interface, deriver node.KeyImageDeriver, sub crypto.AccountSubscription, cfg Config) *Consumer {
	cfg.Container.TransactionSpendableAge = sub.TransactionSpendableAge
	return &Consumer{
		node:            n,
		keyImageDeriver: deriver,
		keys:            sub.Keys,
		container:       transfers.NewContainer(cfg.Container),
		observers:       make(map[Observer]struct{}),
		cfg:             cfg,
	}
}

// GetAddress returns the account address this consumer scans for.
func (c *Consumer) GetAddress() crypto.AccountAddress {
	return c.keys.Address
}

// GetContainer returns the Transfers Container this consumer drives.
func (c *Consumer) GetContainer() *transfers.Container {
	return c.container
}

// AddObserver registers an observer for onTransfer notifications.
func (c *Consumer) AddObserver(o Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers[o] = struct{}{}
}

// RemoveObserver unregisters an observer.
func (c *Consumer) RemoveObserver(o Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	delete(c.observers, o)
}

func (c *Consumer) notifyTransfer(txHash crypto.Hash, amountIn, amountOut uint64) {
	c.observersMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for o := range c.observers {
		observers = append(observers, o)
	}
	c.observersMu.Unlock()

	for _, o := range observers {
		o.OnTransfer(c, txHash, amountIn, amountOut)
	}
}

// OnBlockchainDetach forwards unconditionally to the container.
func (c *Consumer) OnBlockchainDetach(height uint64) {
	c.container.Detach(height)
}

// txItem is one (block, transaction) pair flowing through the bounded
// work queue.
type txItem struct {
	block transfers.BlockInfo
	tx    node.TransactionReader
}

// OnNewBlocks scans every transaction in blocks through a bounded worker
// pool, applies detected outputs/inputs to the container, and advances the
// container's height once the batch drains.
func (c *Consumer) OnNewBlocks(blocks []node.CompleteBlock, startHeight uint64, count int) error {
	newHeight := startHeight + uint64(count)

	workers := c.cfg.workers()
	queue := make(chan txItem, workers*2)

	go func() {
		defer close(queue)
		height := startHeight
		for _, b := range blocks {
			blockInfo := transfers.BlockInfo{Height: height, Timestamp: b.Timestamp}
			for _, tx := range b.Transactions {
				queue <- txItem{block: blockInfo, tx: tx}
			}
			height++
		}
	}()

	var g errgroup.Group
	g.SetLimit(workers)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for item := range queue {
				if err := c.processItem(item); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.container.UpdateHeight(newHeight)
	return nil
}

// processItem detects outputs, fetches global indices, derives key images,
// and applies the result to the container.
func (c *Consumer) processItem(item txItem) error {
	detected, err := c.processOutputs(item.tx)
	if err != nil {
		if cerr, ok := err.(Error); ok && cerr.ErrorCode == ErrGlobalIndices {
			log.Warnf("skipping transaction after global-indices failure: %v", err)
			return nil
		}
		return err
	}

	var amountIn uint64
	if len(detected) > 0 {
		amountIn = c.container.AddTransactionOutputs(item.block, item.tx, detected)
	}
	amountOut := c.container.AddTransactionInputs(item.block, item.tx)

	if amountIn != 0 || amountOut != 0 {
		c.notifyTransfer(item.tx.GetTransactionHash(), amountIn, amountOut)
	}
	return nil
}

// processOutputs finds outputs belonging to the account, resolves their
// global indices, and derives key images for spendable output types.
func (c *Consumer) processOutputs(tx node.TransactionReader) ([]transfers.DetectedOutput, error) {
	accountOuts := tx.FindOutputsToAccount(c.keys.Address, c.keys.ViewSecretKey)
	if len(accountOuts) == 0 {
		return nil, nil
	}

	txHash := tx.GetTransactionHash()
	txPubKey := tx.GetTransactionPublicKey()

	globalIndices, err := c.node.GetTransactionOutsGlobalIndices(txHash)
	if err != nil {
		return nil, consumerError(ErrGlobalIndices, "getTransactionOutsGlobalIndices failed", err)
	}

	var result []transfers.DetectedOutput
	for _, ao := range accountOuts {
		idx := ao.OutputIndex
		outType := tx.GetOutputType(int(idx))
		if outType != node.OutputTypeKey && outType != node.OutputTypeMultisignature {
			continue
		}
		if idx >= uint64(len(globalIndices)) {
			continue
		}

		out := transfers.DetectedOutput{
			Type:                 outType,
			TransactionPublicKey: txPubKey,
			OutputInTransaction:  idx,
			GlobalOutputIndex:    globalIndices[idx],
		}

		switch outType {
		case node.OutputTypeKey:
			outKey := tx.GetOutputKey(int(idx))

			ephemeral, image, err := c.keyImageDeriver.GenerateKeyImage(c.keys, txPubKey, idx)
			if err != nil {
				return nil, err
			}
			if !ephemeral.IsEqual(&outKey.Key) {
				panic(ProtocolInvariantError{TransactionHash: txHash.String(), OutputIndex: idx})
			}

			out.Amount = outKey.Amount
			out.OutputKey = outKey.Key
			out.KeyImage = image

		case node.OutputTypeMultisignature:
			msOut := tx.GetOutputMultisignature(int(idx))
			out.Amount = msOut.Amount
			out.RequiredSignatures = msOut.RequiredSignatures
		}

		result = append(result, out)
	}

	return result, nil
}
