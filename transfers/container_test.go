package transfers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
)

// fakeTx is a minimal node.TransactionReader test double: only the fields a
// container test needs are meaningful.
type fakeTx struct {
	hash       crypto.Hash
	pubKey     crypto.PublicKey
	unlockTime uint64
	paymentID  crypto.Hash
	hasPayment bool
	inputs     []fakeInput
}

type fakeInput struct {
	typ  node.InputType
	key  node.InputKey
	ms   node.InputMultisignature
}

func (t fakeTx) GetTransactionHash() crypto.Hash          { return t.hash }
func (t fakeTx) GetTransactionPublicKey() crypto.PublicKey { return t.pubKey }
func (t fakeTx) GetUnlockTime() uint64                     { return t.unlockTime }
func (t fakeTx) GetPaymentId() (crypto.Hash, bool)         { return t.paymentID, t.hasPayment }
func (t fakeTx) GetInputCount() int                        { return len(t.inputs) }
func (t fakeTx) GetInputType(i int) node.InputType         { return t.inputs[i].typ }
func (t fakeTx) GetInputKey(i int) node.InputKey           { return t.inputs[i].key }
func (t fakeTx) GetInputMultisignature(i int) node.InputMultisignature {
	return t.inputs[i].ms
}
func (t fakeTx) GetOutputType(i int) node.OutputType                      { return node.OutputTypeInvalid }
func (t fakeTx) GetOutputKey(i int) node.OutputKey                        { return node.OutputKey{} }
func (t fakeTx) GetOutputMultisignature(i int) node.OutputMultisignature  { return node.OutputMultisignature{} }
func (t fakeTx) FindOutputsToAccount(crypto.AccountAddress, crypto.SecretKey) []node.AccountOutput {
	return nil
}

func hashFromByte(b byte) crypto.Hash {
	var h crypto.Hash
	h[0] = b
	return h
}

func keyImageFromByte(b byte) crypto.KeyImage {
	var k crypto.KeyImage
	k[0] = b
	return k
}

func testConfig() Config {
	return Config{
		MaxBlockHeight:              500000000,
		LockedTxAllowedDeltaBlocks:  1,
		LockedTxAllowedDeltaSeconds: 1,
		TransactionSpendableAge:     10,
		Now:                         func() uint64 { return 1000 },
	}
}

func TestContainerAddAndBalance(t *testing.T) {
	c := NewContainer(testConfig())

	tx := fakeTx{hash: hashFromByte(1)}
	detected := []DetectedOutput{
		{Type: node.OutputTypeKey, Amount: 100, KeyImage: keyImageFromByte(1)},
		{Type: node.OutputTypeKey, Amount: 200, KeyImage: keyImageFromByte(2)},
	}

	c.UpdateHeight(5)
	amount := c.AddTransactionOutputs(BlockInfo{Height: 5}, tx, detected)
	require.Equal(t, uint64(300), amount)
	require.Equal(t, 2, c.TransfersCount())
	require.Equal(t, 1, c.TransactionsCount())

	// At height 5, the outputs have age 0 < TransactionSpendableAge(10):
	// soft-locked, not unlocked.
	require.Equal(t, uint64(0), c.Balance(IncludeDefault))
	require.Equal(t, uint64(300), c.Balance(IncludeStateSoftLocked|IncludeTypeKey))

	// Deepen to height 16: currentHeight(16) > blockHeight(5)+age(10).
	c.UpdateHeight(16)
	require.Equal(t, uint64(300), c.Balance(IncludeDefault))
	require.Equal(t, uint64(0), c.Balance(IncludeStateSoftLocked|IncludeTypeKey))
}

func TestContainerSpend(t *testing.T) {
	c := NewContainer(testConfig())

	outTx := fakeTx{hash: hashFromByte(1)}
	image := keyImageFromByte(7)
	c.AddTransactionOutputs(BlockInfo{Height: 1}, outTx, []DetectedOutput{
		{Type: node.OutputTypeKey, Amount: 500, KeyImage: image},
	})
	c.UpdateHeight(20)
	require.Equal(t, uint64(500), c.Balance(IncludeDefault))

	spendTx := fakeTx{
		hash: hashFromByte(2),
		inputs: []fakeInput{
			{typ: node.InputTypeKey, key: node.InputKey{Amount: 500, KeyImage: image}},
		},
	}
	amountOut := c.AddTransactionInputs(BlockInfo{Height: 21}, spendTx)
	require.Equal(t, uint64(500), amountOut)
	require.Equal(t, uint64(0), c.Balance(IncludeDefault))
	require.Equal(t, 1, c.TransfersCount())
}

func TestContainerDetachDropsNewerOutputsAndRevivesSpends(t *testing.T) {
	c := NewContainer(testConfig())

	image := keyImageFromByte(9)
	outTx := fakeTx{hash: hashFromByte(1)}
	c.AddTransactionOutputs(BlockInfo{Height: 5}, outTx, []DetectedOutput{
		{Type: node.OutputTypeKey, Amount: 100, KeyImage: image},
	})

	spendTx := fakeTx{
		hash:   hashFromByte(2),
		inputs: []fakeInput{{typ: node.InputTypeKey, key: node.InputKey{Amount: 100, KeyImage: image}}},
	}
	c.AddTransactionInputs(BlockInfo{Height: 10}, spendTx)
	c.UpdateHeight(10)

	// Detach from height 10: the spend (at height 10) is reorged out, but
	// the output itself (height 5) survives, so it revives.
	c.Detach(10)
	require.Equal(t, uint64(100), c.Balance(IncludeAll))

	// Detach from height 5: the output's own creating block is reorged
	// out too; it must not come back.
	c2 := NewContainer(testConfig())
	c2.AddTransactionOutputs(BlockInfo{Height: 5}, outTx, []DetectedOutput{
		{Type: node.OutputTypeKey, Amount: 100, KeyImage: image},
	})
	c2.AddTransactionInputs(BlockInfo{Height: 10}, spendTx)
	c2.Detach(5)
	require.Equal(t, uint64(0), c2.Balance(IncludeAll))
	require.Equal(t, 0, c2.TransfersCount())
}

func TestContainerMultisignatureSpendMatchesByAmountAndIndex(t *testing.T) {
	c := NewContainer(testConfig())

	outTx := fakeTx{hash: hashFromByte(1)}
	c.AddTransactionOutputs(BlockInfo{Height: 1}, outTx, []DetectedOutput{
		{Type: node.OutputTypeMultisignature, Amount: 50, GlobalOutputIndex: 42, RequiredSignatures: 2},
	})

	spendTx := fakeTx{
		hash: hashFromByte(2),
		inputs: []fakeInput{
			{typ: node.InputTypeMultisignature, ms: node.InputMultisignature{Amount: 50, OutputIndex: 42}},
		},
	}
	amount := c.AddTransactionInputs(BlockInfo{Height: 2}, spendTx)
	require.Equal(t, uint64(50), amount)
}

func TestContainerSaveLoadRoundTrip(t *testing.T) {
	c := NewContainer(testConfig())

	outTx := fakeTx{hash: hashFromByte(1), pubKey: crypto.PublicKey{0xAB}}
	c.AddTransactionOutputs(BlockInfo{Height: 3, Timestamp: 99}, outTx, []DetectedOutput{
		{Type: node.OutputTypeKey, Amount: 77, KeyImage: keyImageFromByte(3), OutputKey: crypto.PublicKey{0x01}},
		{Type: node.OutputTypeMultisignature, Amount: 88, GlobalOutputIndex: 1, RequiredSignatures: 3},
	})
	spendTx := fakeTx{
		hash:   hashFromByte(2),
		inputs: []fakeInput{{typ: node.InputTypeKey, key: node.InputKey{Amount: 77, KeyImage: keyImageFromByte(3)}}},
	}
	c.AddTransactionInputs(BlockInfo{Height: 4}, spendTx)
	c.UpdateHeight(4)

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	loaded := NewContainer(testConfig())
	require.NoError(t, loaded.Load(&buf))

	require.Equal(t, c.TransfersCount(), loaded.TransfersCount())
	require.Equal(t, c.TransactionsCount(), loaded.TransactionsCount())
	require.Equal(t, c.Balance(IncludeAll), loaded.Balance(IncludeAll))
}

func TestContainerLoadRejectsNewerVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, CurrentVersion+1))
	require.NoError(t, writeUint64(&buf, 0))

	c := NewContainer(testConfig())
	err := c.Load(&buf)
	require.Error(t, err)

	cerr, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, ErrUnsupportedVersion, cerr.ErrorCode)
}
