// Package crypto defines the opaque fixed-width value types the transfer
// synchronization core passes around: hashes, public/secret keys, key
// images, and the account identifiers built from them. The core never
// interprets the bytes of these types itself — deriving, signing, or
// proving anything about them is the job of external cryptography
// primitives (output detection, key image derivation, and friends).
package crypto

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashSize is the size, in bytes, of a Hash, PublicKey, SecretKey, or
// KeyImage in the underlying protocol.
const HashSize = chainhash.HashSize

// Hash is a 32-byte protocol hash: a block hash, a transaction hash, or a
// payment ID. It is a type alias for chainhash.Hash since the two are
// byte-for-byte the same 32-byte value with the same hex/string semantics.
type Hash = chainhash.Hash

// NewHashFromBytes constructs a Hash from a byte slice of exactly HashSize
// bytes.
func NewHashFromBytes(b []byte) (Hash, error) {
	var h Hash
	err := h.SetBytes(b)
	return h, err
}

// PublicKey is a 32-byte elliptic-curve public key: a spend key, a view key,
// an output's stealth key, or a transaction public key.
type PublicKey [HashSize]byte

// String returns the hex encoding of the key with the byte order reversed,
// matching chainhash.Hash's display convention so the two print the same way
// in logs.
func (k PublicKey) String() string {
	for i, j := 0, len(k)-1; i < j; i, j = i+1, j-1 {
		k[i], k[j] = k[j], k[i]
	}
	return hex.EncodeToString(k[:])
}

// IsEqual returns whether k and other represent the same key.
func (k *PublicKey) IsEqual(other *PublicKey) bool {
	if k == nil && other == nil {
		return true
	}
	if k == nil || other == nil {
		return false
	}
	return *k == *other
}

// SecretKey is a 32-byte elliptic-curve secret scalar: a view secret or a
// spend secret.
type SecretKey [HashSize]byte

// Zero overwrites the secret key's bytes with zeroes. Callers should invoke
// this once a subscription holding the key is torn down.
func (k *SecretKey) Zero() {
	zeroBytea32((*[32]byte)(k))
}

// KeyImage is a deterministic, one-way function of an output's stealth key
// and the spender's keys. Published in a spending transaction's Key input
// to allow double-spend detection without revealing which output is being
// spent.
type KeyImage [HashSize]byte

// IsZero reports whether the key image is the all-zero value, which is the
// sentinel used for Multisignature outputs: key images are unused for
// that output type.
func (k KeyImage) IsZero() bool {
	return k == KeyImage{}
}

func (k KeyImage) String() string {
	return hex.EncodeToString(k[:])
}

// AccountAddress is the public half of an account: the keys a sender needs
// to construct an output paying the account.
type AccountAddress struct {
	SpendPublicKey PublicKey
	ViewPublicKey  PublicKey
}

// Less provides a total order over addresses: by spend public key bytes,
// then by view public key bytes. Addresses are already comparable structs
// and key maps directly; nothing in this module sorts by Less, and
// subscriber persistence writes subscriptions in map iteration order.
func (a AccountAddress) Less(b AccountAddress) bool {
	if a.SpendPublicKey != b.SpendPublicKey {
		return string(a.SpendPublicKey[:]) < string(b.SpendPublicKey[:])
	}
	return string(a.ViewPublicKey[:]) < string(b.ViewPublicKey[:])
}

// AccountKeys is the full keypair set for an account: the public address
// plus the two secrets needed for output detection (ViewSecretKey) and
// key-image derivation (SpendSecretKey).
type AccountKeys struct {
	Address        AccountAddress
	ViewSecretKey  SecretKey
	SpendSecretKey SecretKey
}

// Zero clears both secret keys. Call this when a subscription is removed so
// key material does not linger in the heap longer than necessary.
func (k *AccountKeys) Zero() {
	k.ViewSecretKey.Zero()
	k.SpendSecretKey.Zero()
}

// AccountSubscription binds an account's keys to the consumer-level policy
// needed to process blocks on its behalf: when the account was created (so a
// rescan/sync can skip blocks mined before it could own anything — not used
// by this core directly, carried for callers that seed sync from it) and how
// many confirmations an output needs before it is spendable.
type AccountSubscription struct {
	Keys                    AccountKeys
	AccountCreationTime     uint64
	TransactionSpendableAge uint64
}
