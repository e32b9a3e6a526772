package transfers

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"

	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
)

// CurrentVersion is the persisted format version this build writes and the
// highest version it will read. Version bytes are 0 at this
// revision.
const CurrentVersion uint32 = 0

// wireProtocolVersion is a fixed, meaningless protocol version passed to
// btcd/wire's varint codec — this module has no protocol-version
// negotiation of its own, wire's API just requires the parameter.
const wireProtocolVersion uint32 = 0

// Save writes {version, currentHeight, transactions, owned outputs, spent
// outputs} to w in a fixed binary little-endian format.
func (c *Container) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeUint32(w, CurrentVersion); err != nil {
		return containerError(ErrIO, "failed to write version", err)
	}
	if err := writeUint64(w, c.currentHeight); err != nil {
		return containerError(ErrIO, "failed to write current height", err)
	}

	if err := wire.WriteVarInt(w, wireProtocolVersion, uint64(len(c.transactions))); err != nil {
		return containerError(ErrIO, "failed to write transaction count", err)
	}
	for _, info := range c.transactions {
		if err := writeTransactionInformation(w, info); err != nil {
			return containerError(ErrIO, "failed to write transaction", err)
		}
	}

	if err := wire.WriteVarInt(w, wireProtocolVersion, uint64(len(c.owned))); err != nil {
		return containerError(ErrIO, "failed to write owned-output count", err)
	}
	for _, id := range c.order {
		slot := c.owned[id]
		if slot == nil {
			continue
		}
		if err := writeExtendedOutput(w, slot.output); err != nil {
			return containerError(ErrIO, "failed to write owned output", err)
		}
	}

	if err := wire.WriteVarInt(w, wireProtocolVersion, uint64(len(c.spent))); err != nil {
		return containerError(ErrIO, "failed to write spent-output count", err)
	}
	for _, s := range c.spent {
		if err := writeSpentOutput(w, s); err != nil {
			return containerError(ErrIO, "failed to write spent output", err)
		}
	}

	return nil
}

// Load replaces the container's contents with what r encodes, failing with
// ErrUnsupportedVersion if the stored version is newer than CurrentVersion.
func (c *Container) Load(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return containerError(ErrIO, "failed to read version", err)
	}
	if version > CurrentVersion {
		return containerError(ErrUnsupportedVersion,
			"unsupported transfers storage version", nil)
	}

	height, err := readUint64(r)
	if err != nil {
		return containerError(ErrIO, "failed to read current height", err)
	}

	txCount, err := wire.ReadVarInt(r, wireProtocolVersion)
	if err != nil {
		return containerError(ErrCorruptData, "failed to read transaction count", err)
	}
	transactions := make(map[crypto.Hash]TransactionInformation, txCount)
	for i := uint64(0); i < txCount; i++ {
		info, err := readTransactionInformation(r)
		if err != nil {
			return containerError(ErrCorruptData, "failed to read transaction", err)
		}
		transactions[info.TransactionHash] = info
	}

	ownedCount, err := wire.ReadVarInt(r, wireProtocolVersion)
	if err != nil {
		return containerError(ErrCorruptData, "failed to read owned-output count", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentHeight = height
	c.transactions = transactions
	c.owned = make(map[uint64]*outputSlot, ownedCount)
	c.order = nil
	c.keyImageIndex = make(map[crypto.KeyImage][]uint64)
	c.txHashIndex = make(map[crypto.Hash][]uint64)
	c.nextSlotID = 0
	c.spent = nil

	for i := uint64(0); i < ownedCount; i++ {
		ext, err := readExtendedOutput(r)
		if err != nil {
			return containerError(ErrCorruptData, "failed to read owned output", err)
		}
		id := c.nextSlotID
		c.nextSlotID++
		c.owned[id] = &outputSlot{id: id, output: ext}
		c.order = append(c.order, id)
		if ext.Type == node.OutputTypeKey && !ext.KeyImage.IsZero() {
			c.keyImageIndex[ext.KeyImage] = append(c.keyImageIndex[ext.KeyImage], id)
		}
		c.txHashIndex[ext.TransactionHash] = append(c.txHashIndex[ext.TransactionHash], id)
	}

	spentCount, err := wire.ReadVarInt(r, wireProtocolVersion)
	if err != nil {
		return containerError(ErrCorruptData, "failed to read spent-output count", err)
	}
	for i := uint64(0); i < spentCount; i++ {
		s, err := readSpentOutput(r)
		if err != nil {
			return containerError(ErrCorruptData, "failed to read spent output", err)
		}
		c.spent = append(c.spent, s)
	}

	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeHash(w io.Writer, h crypto.Hash) error {
	_, err := w.Write(h[:])
	return err
}

func readHash(r io.Reader) (crypto.Hash, error) {
	var h crypto.Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

func writePublicKey(w io.Writer, k crypto.PublicKey) error {
	_, err := w.Write(k[:])
	return err
}

func readPublicKey(r io.Reader) (crypto.PublicKey, error) {
	var k crypto.PublicKey
	_, err := io.ReadFull(r, k[:])
	return k, err
}

func writeKeyImage(w io.Writer, k crypto.KeyImage) error {
	_, err := w.Write(k[:])
	return err
}

func readKeyImage(r io.Reader) (crypto.KeyImage, error) {
	var k crypto.KeyImage
	_, err := io.ReadFull(r, k[:])
	return k, err
}

func writeTransactionInformation(w io.Writer, info TransactionInformation) error {
	if err := writeHash(w, info.TransactionHash); err != nil {
		return err
	}
	if err := writePublicKey(w, info.PublicKey); err != nil {
		return err
	}
	if err := writeUint64(w, info.BlockHeight); err != nil {
		return err
	}
	if err := writeUint64(w, info.Timestamp); err != nil {
		return err
	}
	if err := writeUint64(w, info.UnlockTime); err != nil {
		return err
	}
	return writeHash(w, info.PaymentId)
}

func readTransactionInformation(r io.Reader) (TransactionInformation, error) {
	var info TransactionInformation
	var err error
	if info.TransactionHash, err = readHash(r); err != nil {
		return info, err
	}
	if info.PublicKey, err = readPublicKey(r); err != nil {
		return info, err
	}
	if info.BlockHeight, err = readUint64(r); err != nil {
		return info, err
	}
	if info.Timestamp, err = readUint64(r); err != nil {
		return info, err
	}
	if info.UnlockTime, err = readUint64(r); err != nil {
		return info, err
	}
	if info.PaymentId, err = readHash(r); err != nil {
		return info, err
	}
	return info, nil
}

func writeExtendedOutputCommon(w io.Writer, e ExtendedOutputInformation) error {
	if err := writeUint32(w, uint32(e.Type)); err != nil {
		return err
	}
	if err := writeUint64(w, e.Amount); err != nil {
		return err
	}
	if err := writeUint64(w, e.GlobalOutputIndex); err != nil {
		return err
	}
	if err := writeUint64(w, e.OutputInTransaction); err != nil {
		return err
	}
	if err := writePublicKey(w, e.TransactionPublicKey); err != nil {
		return err
	}
	if err := writeKeyImage(w, e.KeyImage); err != nil {
		return err
	}
	if err := writeUint64(w, e.UnlockTime); err != nil {
		return err
	}
	if err := writeUint64(w, e.BlockHeight); err != nil {
		return err
	}
	if err := writeHash(w, e.TransactionHash); err != nil {
		return err
	}
	switch e.Type {
	case node.OutputTypeKey:
		return writePublicKey(w, e.OutputKey)
	case node.OutputTypeMultisignature:
		return writeUint32(w, e.RequiredSignatures)
	}
	return nil
}

func readExtendedOutputCommon(r io.Reader) (ExtendedOutputInformation, error) {
	var e ExtendedOutputInformation
	typ, err := readUint32(r)
	if err != nil {
		return e, err
	}
	e.Type = node.OutputType(typ)
	if e.Amount, err = readUint64(r); err != nil {
		return e, err
	}
	if e.GlobalOutputIndex, err = readUint64(r); err != nil {
		return e, err
	}
	if e.OutputInTransaction, err = readUint64(r); err != nil {
		return e, err
	}
	if e.TransactionPublicKey, err = readPublicKey(r); err != nil {
		return e, err
	}
	if e.KeyImage, err = readKeyImage(r); err != nil {
		return e, err
	}
	if e.UnlockTime, err = readUint64(r); err != nil {
		return e, err
	}
	if e.BlockHeight, err = readUint64(r); err != nil {
		return e, err
	}
	if e.TransactionHash, err = readHash(r); err != nil {
		return e, err
	}
	switch e.Type {
	case node.OutputTypeKey:
		if e.OutputKey, err = readPublicKey(r); err != nil {
			return e, err
		}
	case node.OutputTypeMultisignature:
		if e.RequiredSignatures, err = readUint32(r); err != nil {
			return e, err
		}
	}
	return e, nil
}

func writeExtendedOutput(w io.Writer, e ExtendedOutputInformation) error {
	return writeExtendedOutputCommon(w, e)
}

func readExtendedOutput(r io.Reader) (ExtendedOutputInformation, error) {
	return readExtendedOutputCommon(r)
}

func writeSpentOutput(w io.Writer, s SpentOutputInformation) error {
	if err := writeExtendedOutputCommon(w, s.ExtendedOutputInformation); err != nil {
		return err
	}
	if err := writeUint64(w, s.SpendingBlock.Height); err != nil {
		return err
	}
	if err := writeUint64(w, s.SpendingBlock.Timestamp); err != nil {
		return err
	}
	if err := writeHash(w, s.SpendingTransactionHash); err != nil {
		return err
	}
	return writeUint64(w, s.InputInTransaction)
}

func readSpentOutput(r io.Reader) (SpentOutputInformation, error) {
	var s SpentOutputInformation
	ext, err := readExtendedOutputCommon(r)
	if err != nil {
		return s, err
	}
	s.ExtendedOutputInformation = ext
	if s.SpendingBlock.Height, err = readUint64(r); err != nil {
		return s, err
	}
	if s.SpendingBlock.Timestamp, err = readUint64(r); err != nil {
		return s, err
	}
	if s.SpendingTransactionHash, err = readHash(r); err != nil {
		return s, err
	}
	if s.InputInTransaction, err = readUint64(r); err != nil {
		return s, err
	}
	return s, nil
}
