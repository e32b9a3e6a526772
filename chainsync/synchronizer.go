package chainsync

import (
	"io"
	"sync"

	"github.com/davecgh/go-spew/spew"

	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
)

// Consumer is the per-account collaborator the Blockchain Synchronizer
// drives: it is handed new blocks to scan and told when to roll back on a
// reorg. Implemented by consumer.Consumer.
type Consumer interface {
	OnNewBlocks(blocks []node.CompleteBlock, startHeight uint64, count int) error
	OnBlockchainDetach(height uint64)
}

// Observer receives synchronization progress notifications.
// err is nil on a successful pass.
type Observer interface {
	SynchronizationProgressUpdated(current, total uint64, err error)
}

// state is the synchronizer's idle/running lifecycle.
type state int

const (
	stateIdle state = iota
	stateRunning
)

// Config carries the tunables a Synchronizer needs beyond the node and
// genesis hash: currently just whether block parsing failures should be
// logged with a full dump (useful in development, noisy in production).
type Config struct {
	// DumpMalformedBlocks, when true, logs a spew.Sdump of a block that
	// failed to parse at Debug level before abandoning the pass. Off by
	// default since block blobs can be large.
	DumpMalformedBlocks bool
}

// Synchronizer is the Blockchain Synchronizer: it drives the
// sync loop against a remote node, fans new blocks out to registered
// consumers, and serializes/deserializes the sync cursor.
type Synchronizer struct {
	node   node.Interface
	parser node.BlockParser
	cfg    Config

	genesisBlockHash crypto.Hash

	mu           sync.Mutex
	consumers    map[Consumer]*SynchronizationState
	consumerOrder []Consumer
	syncState    state
	idleCond     *sync.Cond

	lastProcessedHeight uint64

	observersMu sync.Mutex
	observers   map[Observer]struct{}

	notifyQuit chan struct{}
	notifyWG   sync.WaitGroup
	started    bool
}

// NewSynchronizer constructs a Synchronizer against the given node and block
// parser, configured with the chain's genesis block hash.
func NewSynchronizer(n node.Interface, parser node.BlockParser, genesisBlockHash crypto.Hash, cfg Config) *Synchronizer {
	s := &Synchronizer{
		node:             n,
		parser:           parser,
		cfg:              cfg,
		genesisBlockHash: genesisBlockHash,
		consumers:        make(map[Consumer]*SynchronizationState),
		observers:        make(map[Observer]struct{}),
	}
	s.idleCond = sync.NewCond(&s.mu)
	return s
}

// AddConsumer registers a consumer and allocates a fresh
// SynchronizationState seeded with the configured genesis hash.
func (s *Synchronizer) AddConsumer(c Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers[c] = NewSynchronizationState(s.genesisBlockHash)
	s.consumerOrder = append(s.consumerOrder, c)
}

// RemoveConsumer unregisters a consumer, returning whether it was present.
func (s *Synchronizer) RemoveConsumer(c Consumer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consumers[c]; !ok {
		return false
	}
	delete(s.consumers, c)
	for i, oc := range s.consumerOrder {
		if oc == c {
			s.consumerOrder = append(s.consumerOrder[:i], s.consumerOrder[i+1:]...)
			break
		}
	}
	return true
}

// GetConsumerState returns the SynchronizationState backing c, for
// persistence, or nil if c is not registered.
func (s *Synchronizer) GetConsumerState(c Consumer) *SynchronizationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumers[c]
}

// AddObserver registers an observer for progress notifications.
func (s *Synchronizer) AddObserver(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers[o] = struct{}{}
}

// RemoveObserver unregisters an observer.
func (s *Synchronizer) RemoveObserver(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	delete(s.observers, o)
}

func (s *Synchronizer) notifyObservers(current, total uint64, err error) {
	s.observersMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.observersMu.Unlock()

	// Notifications must not hold the synchronizer mutex: an observer
	// calling back into the Synchronizer would deadlock.
	for _, o := range observers {
		o.SynchronizationProgressUpdated(current, total, err)
	}
}

// Start begins the sync loop and subscribes to the node's chain-tip
// notifications. Idempotent.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.notifyQuit = make(chan struct{})
	s.notifyWG.Add(1)
	go s.handleNodeNotifications()

	s.mu.Lock()
	s.startSyncLocked()
	s.mu.Unlock()
}

// Stop waits for an in-flight processing pass to complete, then tears down
// the notification listener. Idempotent.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for s.syncState == stateRunning {
		s.idleCond.Wait()
	}
	s.mu.Unlock()

	close(s.notifyQuit)
	s.notifyWG.Wait()
}

func (s *Synchronizer) handleNodeNotifications() {
	defer s.notifyWG.Done()

	notifications := s.node.Notifications()
	for {
		select {
		case <-s.notifyQuit:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if _, ok := n.(node.LastKnownBlockHeightUpdated); ok {
				s.mu.Lock()
				s.startSyncLocked()
				s.mu.Unlock()
			}
		}
	}
}

// startSyncLocked is a no-op if a sync is already running, otherwise it
// kicks off the first batch request. Caller must hold s.mu.
func (s *Synchronizer) startSyncLocked() {
	if s.syncState == stateRunning {
		return
	}
	if len(s.consumers) == 0 {
		return
	}
	s.syncState = stateRunning
	go s.requestNextBlocks()
}

// commonShortHistory returns the short history of the consumer furthest
// behind.
func (s *Synchronizer) commonShortHistory() []crypto.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	var shortest *SynchronizationState
	for _, st := range s.consumers {
		if shortest == nil || st.GetHeight() < shortest.GetHeight() {
			shortest = st
		}
	}
	if shortest == nil {
		return nil
	}
	return shortest.GetShortHistory()
}

func (s *Synchronizer) requestNextBlocks() {
	history := s.commonShortHistory()
	if len(history) == 0 {
		s.finishSync()
		return
	}

	resp, err := s.node.GetNewBlocks(history)
	if err != nil {
		s.notifyObservers(s.lastProcessedHeight, s.node.GetLastLocalBlockHeight(),
			syncError(ErrNodeTransport, "getNewBlocks failed", err))
		s.finishSync()
		return
	}

	s.processBlocks(resp)
}

// processBlocks parses a fetched interval's raw blocks, reconciles it
// against every registered consumer, and either requests the next batch or
// ends the pass.
func (s *Synchronizer) processBlocks(resp node.BlocksResponse) {
	newHeight := resp.StartHeight + uint64(len(resp.Blocks))

	interval := Interval{StartHeight: resp.StartHeight}
	completeBlocks := make([]node.CompleteBlock, 0, len(resp.Blocks))

	for _, raw := range resp.Blocks {
		cb, err := s.parser.ParseBlock(raw)
		if err != nil {
			if s.cfg.DumpMalformedBlocks {
				log.Debugf("malformed block: %s", spew.Sdump(raw))
			}
			log.Errorf("block parse failed, abandoning pass: %v", err)
			// Abort this pass without advancing any consumer's state.
			s.finishSync()
			return
		}
		interval.Blocks = append(interval.Blocks, cb.BlockHash)
		completeBlocks = append(completeBlocks, cb)
	}

	blocksAdded := s.updateConsumers(interval, completeBlocks)

	s.lastProcessedHeight = newHeight
	s.notifyObservers(newHeight, s.node.GetLastLocalBlockHeight(), nil)

	if blocksAdded || s.node.GetLastLocalBlockHeight() > newHeight {
		s.requestNextBlocks()
		return
	}

	s.finishSync()
}

// updateConsumers checks the interval against each registered consumer's
// state, detaches then appends as required, calling into the consumer
// before mutating its state, and releasing the synchronizer mutex before
// every such call.
func (s *Synchronizer) updateConsumers(interval Interval, blocks []node.CompleteBlock) bool {
	s.mu.Lock()
	type entry struct {
		consumer Consumer
		state    *SynchronizationState
	}
	ordered := make([]entry, 0, len(s.consumerOrder))
	for _, c := range s.consumerOrder {
		if st, ok := s.consumers[c]; ok {
			ordered = append(ordered, entry{c, st})
		}
	}
	s.mu.Unlock()

	blocksAdded := false

	for _, e := range ordered {
		result := e.state.CheckInterval(interval)

		if result.DetachRequired {
			e.consumer.OnBlockchainDetach(result.DetachHeight)
			e.state.Detach(result.DetachHeight)
		}

		if result.HasNewBlocks {
			offset := result.NewBlockHeight - interval.StartHeight
			newBlocks := blocks[offset:]
			newHashes := interval.Blocks[offset:]

			if err := e.consumer.OnNewBlocks(newBlocks, result.NewBlockHeight, len(newBlocks)); err != nil {
				log.Errorf("consumer failed to process new blocks: %v", err)
				continue
			}
			if err := e.state.AddBlocks(newHashes, result.NewBlockHeight, len(newHashes)); err != nil {
				log.Errorf("failed to record new block hashes: %v", err)
				continue
			}
			blocksAdded = true
		}
	}

	return blocksAdded
}

func (s *Synchronizer) finishSync() {
	s.mu.Lock()
	s.syncState = stateIdle
	s.idleCond.Broadcast()
	s.mu.Unlock()
}

// Save writes the synchronizer's 32-byte genesis hash header.
func (s *Synchronizer) Save(w io.Writer) error {
	_, err := w.Write(s.genesisBlockHash[:])
	if err != nil {
		return syncError(ErrIO, "failed to write genesis hash", err)
	}
	return nil
}

// Load reads the genesis hash header and fails with ErrGenesisMismatch if it
// differs from the configured genesis hash.
func (s *Synchronizer) Load(r io.Reader) error {
	var stored crypto.Hash
	if _, err := io.ReadFull(r, stored[:]); err != nil {
		return syncError(ErrIO, "failed to read genesis hash", err)
	}
	if stored != s.genesisBlockHash {
		return syncError(ErrGenesisMismatch, "genesis block hash does not match stored state", nil)
	}
	return nil
}
