package subscriber

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardolabar/bytecoin/chainsync"
	"github.com/ardolabar/bytecoin/consumer"
	"github.com/ardolabar/bytecoin/crypto"
	"github.com/ardolabar/bytecoin/node"
)

type noopNode struct{}

func (noopNode) GetNewBlocks([]crypto.Hash) (node.BlocksResponse, error) { return node.BlocksResponse{}, nil }
func (noopNode) GetTransactionOutsGlobalIndices(crypto.Hash) ([]uint64, error) { return nil, nil }
func (noopNode) GetLastLocalBlockHeight() uint64                              { return 0 }
func (noopNode) Notifications() <-chan interface{}                            { return nil }

type noopDeriver struct{}

func (noopDeriver) GenerateKeyImage(crypto.AccountKeys, crypto.PublicKey, uint64) (crypto.PublicKey, crypto.KeyImage, error) {
	return crypto.PublicKey{}, crypto.KeyImage{}, nil
}

func testAddress(b byte) crypto.AccountAddress {
	return crypto.AccountAddress{SpendPublicKey: crypto.PublicKey{b}, ViewPublicKey: crypto.PublicKey{b, b}}
}

func TestSubscriberAddSubscriptionIsIdempotent(t *testing.T) {
	genesis := crypto.Hash{0xAA}
	sync := chainsync.NewSynchronizer(noopNode{}, nil, genesis, chainsync.Config{})
	s := New(sync, noopNode{}, noopDeriver{}, consumer.Config{})

	addr := testAddress(1)
	sub := crypto.AccountSubscription{Keys: crypto.AccountKeys{Address: addr}}

	c1 := s.AddSubscription(sub)
	c2 := s.AddSubscription(sub)
	require.Same(t, c1, c2)
	require.Len(t, s.GetSubscriptions(), 1)
}

func TestSubscriberSaveLoadRoundTrip(t *testing.T) {
	genesis := crypto.Hash{0xAA}

	sync1 := chainsync.NewSynchronizer(noopNode{}, nil, genesis, chainsync.Config{})
	s1 := New(sync1, noopNode{}, noopDeriver{}, consumer.Config{})
	addr := testAddress(2)
	c1 := s1.AddSubscription(crypto.AccountSubscription{Keys: crypto.AccountKeys{Address: addr}})
	c1.GetContainer().UpdateHeight(42)

	var buf bytes.Buffer
	require.NoError(t, s1.Save(&buf))

	sync2 := chainsync.NewSynchronizer(noopNode{}, nil, genesis, chainsync.Config{})
	s2 := New(sync2, noopNode{}, noopDeriver{}, consumer.Config{})
	c2 := s2.AddSubscription(crypto.AccountSubscription{Keys: crypto.AccountKeys{Address: addr}})

	require.NoError(t, s2.Load(&buf))
	require.Equal(t, c1.GetContainer().TransfersCount(), c2.GetContainer().TransfersCount())
}

func TestSubscriberLoadFailsOnGenesisMismatch(t *testing.T) {
	sync1 := chainsync.NewSynchronizer(noopNode{}, nil, crypto.Hash{0x01}, chainsync.Config{})
	s1 := New(sync1, noopNode{}, noopDeriver{}, consumer.Config{})

	var buf bytes.Buffer
	require.NoError(t, s1.Save(&buf))

	sync2 := chainsync.NewSynchronizer(noopNode{}, nil, crypto.Hash{0x02}, chainsync.Config{})
	s2 := New(sync2, noopNode{}, noopDeriver{}, consumer.Config{})

	err := s2.Load(&buf)
	require.Error(t, err)

	cerr, ok := err.(chainsync.Error)
	require.True(t, ok)
	require.Equal(t, chainsync.ErrGenesisMismatch, cerr.ErrorCode)
}
