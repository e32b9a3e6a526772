// Package subscriber implements the Transfers Synchronizer façade: it owns
// the mapping from account address to Transfers Consumer, keeps each
// consumer registered with a Blockchain Synchronizer, and coordinates
// save/load of the whole subscription set as one persisted blob.
package subscriber

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/ardolabar/bytecoin/chainsync"
	"github.com/ardolabar/bytecoin/consumer"
	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
)

// CurrentVersion is the persisted format version this build writes and the
// highest version it will read.
const CurrentVersion uint32 = 0

const wireProtocolVersion uint32 = 0

// Synchronizer is the Transfers Synchronizer façade: a registry of
// subscriptions, each backed by its own Transfers Consumer, all driven by
// one shared Blockchain Synchronizer.
type Synchronizer struct {
	sync            *chainsync.Synchronizer
	node            node.Interface
	keyImageDeriver node.KeyImageDeriver
	consumerCfg     consumer.Config

	mu            sync.Mutex
	subscriptions map[crypto.AccountAddress]*consumer.Consumer
}

// New constructs a Synchronizer façade over an already-configured
// Blockchain Synchronizer.
func New(sync *chainsync.Synchronizer, n node.Interface, deriver node.KeyImageDeriver, consumerCfg consumer.Config) *Synchronizer {
	return &Synchronizer{
		sync:            sync,
		node:            n,
		keyImageDeriver: deriver,
		consumerCfg:     consumerCfg,
		subscriptions:   make(map[crypto.AccountAddress]*consumer.Consumer),
	}
}

// AddSubscription registers a new account, or returns the existing
// consumer unchanged if the address is already subscribed: it is
// idempotent on address.
func (s *Synchronizer) AddSubscription(sub crypto.AccountSubscription) *consumer.Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subscriptions[sub.Keys.Address]; ok {
		return existing
	}

	c := consumer.New(s.node, s.keyImageDeriver, sub, s.consumerCfg)
	s.subscriptions[sub.Keys.Address] = c
	s.sync.AddConsumer(c)
	return c
}

// RemoveSubscription unregisters an account's consumer, returning whether
// it was present.
func (s *Synchronizer) RemoveSubscription(addr crypto.AccountAddress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.subscriptions[addr]
	if !ok {
		return false
	}
	s.sync.RemoveConsumer(c)
	delete(s.subscriptions, addr)
	return true
}

// GetSubscriptions returns every subscribed address.
func (s *Synchronizer) GetSubscriptions() []crypto.AccountAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]crypto.AccountAddress, 0, len(s.subscriptions))
	for addr := range s.subscriptions {
		addrs = append(addrs, addr)
	}
	return addrs
}

// GetSubscription looks up the consumer for addr.
func (s *Synchronizer) GetSubscription(addr crypto.AccountAddress) (*consumer.Consumer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.subscriptions[addr]
	return c, ok
}

// Save writes the Blockchain Synchronizer's header, then the subscription
// set: u32 version, varint subscriptionCount, and for each subscription
// {AccountAddress, varint blobLen, opaque blob}, where the blob is the
// consumer's synchronization-state save concatenated with its container
// save.
func (s *Synchronizer) Save(w io.Writer) error {
	if err := s.sync.Save(w); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], CurrentVersion)
	if _, err := w.Write(versionBuf[:]); err != nil {
		return subscriberError(ErrIO, "failed to write version", err)
	}

	if err := wire.WriteVarInt(w, wireProtocolVersion, uint64(len(s.subscriptions))); err != nil {
		return subscriberError(ErrIO, "failed to write subscription count", err)
	}

	for addr, c := range s.subscriptions {
		var blob bytes.Buffer
		state := s.sync.GetConsumerState(c)
		if state != nil {
			if err := state.Save(&blob); err != nil {
				return err
			}
		}
		if err := c.GetContainer().Save(&blob); err != nil {
			return err
		}

		if _, err := w.Write(addr.SpendPublicKey[:]); err != nil {
			return subscriberError(ErrIO, "failed to write address", err)
		}
		if _, err := w.Write(addr.ViewPublicKey[:]); err != nil {
			return subscriberError(ErrIO, "failed to write address", err)
		}

		if err := wire.WriteVarInt(w, wireProtocolVersion, uint64(blob.Len())); err != nil {
			return subscriberError(ErrIO, "failed to write blob length", err)
		}
		if _, err := w.Write(blob.Bytes()); err != nil {
			return subscriberError(ErrIO, "failed to write blob", err)
		}
	}

	return nil
}

// Load checks the Blockchain Synchronizer's header, then replaces every
// currently subscribed consumer's state with what r encodes. Blobs for addresses
// that are not currently subscribed are consumed but discarded. Fails with
// chainsync's ErrGenesisMismatch if the stored genesis hash does not
// match, or with ErrUnsupportedVersion if the stored subscription-set
// version is newer than this build supports.
func (s *Synchronizer) Load(r io.Reader) error {
	if err := s.sync.Load(r); err != nil {
		return err
	}

	var versionBuf [4]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return subscriberError(ErrIO, "failed to read version", err)
	}
	version := binary.LittleEndian.Uint32(versionBuf[:])
	if version > CurrentVersion {
		return subscriberError(ErrUnsupportedVersion, "unsupported subscription storage version", nil)
	}

	count, err := wire.ReadVarInt(r, wireProtocolVersion)
	if err != nil {
		return subscriberError(ErrIO, "failed to read subscription count", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := uint64(0); i < count; i++ {
		var addr crypto.AccountAddress
		if _, err := io.ReadFull(r, addr.SpendPublicKey[:]); err != nil {
			return subscriberError(ErrIO, "failed to read address", err)
		}
		if _, err := io.ReadFull(r, addr.ViewPublicKey[:]); err != nil {
			return subscriberError(ErrIO, "failed to read address", err)
		}

		blobLen, err := wire.ReadVarInt(r, wireProtocolVersion)
		if err != nil {
			return subscriberError(ErrIO, "failed to read blob length", err)
		}
		blob := make([]byte, blobLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return subscriberError(ErrIO, "failed to read blob", err)
		}

		c, ok := s.subscriptions[addr]
		if !ok {
			// Unknown address: blob consumed, discarded.
			continue
		}

		br := bytes.NewReader(blob)
		state := s.sync.GetConsumerState(c)
		if state != nil {
			if err := state.Load(br); err != nil {
				return err
			}
		}
		if err := c.GetContainer().Load(br); err != nil {
			return err
		}
	}

	return nil
}
