package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelayerAllowLists(t *testing.T) {
	t.Run("empty list allows any address", func(t *testing.T) {
		r := &Relayer{}
		assert.Nil(t, r.AllowedContracts())
		assert.True(t, r.AllowsContract("0x1234567890abcdef1234567890abcdef12345678"))
		assert.True(t, r.AllowsForwarder("0x1234567890abcdef1234567890abcdef12345678"))
	})

	t.Run("populated list is exclusive and case-insensitive", func(t *testing.T) {
		r := &Relayer{
			AllowedTargets: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA, 0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		}

		assert.Len(t, r.AllowedContracts(), 2)
		assert.True(t, r.AllowsContract("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
		assert.True(t, r.AllowsContract("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"))
		assert.False(t, r.AllowsContract("0xcccccccccccccccccccccccccccccccccccccccc"))
	})

	t.Run("whitespace-only list means allow any", func(t *testing.T) {
		r := &Relayer{AllowedRelays: "  "}
		assert.Nil(t, r.AllowedForwarders())
		assert.True(t, r.AllowsForwarder("0xdddddddddddddddddddddddddddddddddddddddd"))
	})
}

func TestQueuedTransactionStatus(t *testing.T) {
	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, QueuedTransactionStatusQueued.IsTerminal())
		assert.False(t, QueuedTransactionStatusSubmitted.IsTerminal())
		assert.False(t, QueuedTransactionStatusMined.IsTerminal())
		assert.True(t, QueuedTransactionStatusConfirmed.IsTerminal())
		assert.True(t, QueuedTransactionStatusErrored.IsTerminal())
		assert.True(t, QueuedTransactionStatusCancelled.IsTerminal())
	})

	t.Run("event types", func(t *testing.T) {
		assert.Equal(t, "transaction_queued", QueuedTransactionStatusQueued.EventType())
		assert.Equal(t, "transaction_mined", QueuedTransactionStatusMined.EventType())
		assert.Equal(t, "transaction_confirmed", QueuedTransactionStatusConfirmed.EventType())
		assert.Equal(t, "transaction_errored", QueuedTransactionStatusErrored.EventType())
		assert.Empty(t, QueuedTransactionStatusCancelled.EventType())
	})
}

func TestLaneKey(t *testing.T) {
	tx := &QueuedTransaction{WalletAddress: "0xabc", ChainID: 137}
	assert.Equal(t, "0xabc:137", tx.LaneKey())
	assert.Equal(t, tx.LaneKey(), LaneKey("0xabc", 137))
	assert.NotEqual(t, LaneKey("0xabc", 1), LaneKey("0xabc", 137))
}
