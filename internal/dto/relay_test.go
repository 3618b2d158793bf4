package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayRequestValidate(t *testing.T) {
	forward := &ForwardRequestData{To: "0x1"}
	permit := &PermitRequestData{To: "0x2"}
	execute := &MetaTransactionRequest{To: "0x3"}

	t.Run("accepts matching tag and payload", func(t *testing.T) {
		assert.NoError(t, (&RelayRequest{Type: RelayRequestTypeForward, Forward: forward}).Validate())
		assert.NoError(t, (&RelayRequest{Type: RelayRequestTypePermit, Permit: permit}).Validate())
		assert.NoError(t, (&RelayRequest{Type: RelayRequestTypeExecute, Execute: execute}).Validate())
	})

	t.Run("rejects missing payload", func(t *testing.T) {
		err := (&RelayRequest{Type: RelayRequestTypeForward}).Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one request payload")
	})

	t.Run("rejects multiple payloads", func(t *testing.T) {
		err := (&RelayRequest{Type: RelayRequestTypeForward, Forward: forward, Permit: permit}).Validate()
		assert.Error(t, err)
	})

	t.Run("rejects tag and payload mismatch", func(t *testing.T) {
		err := (&RelayRequest{Type: RelayRequestTypePermit, Forward: forward}).Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires the permit payload")
	})

	t.Run("rejects unknown tag", func(t *testing.T) {
		err := (&RelayRequest{Type: "direct", Forward: forward}).Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown relay request type")
	})
}

func TestRelayRequestTargetContract(t *testing.T) {
	assert.Equal(t, "0x1", (&RelayRequest{Forward: &ForwardRequestData{To: "0x1"}}).TargetContract())
	assert.Equal(t, "0x2", (&RelayRequest{Permit: &PermitRequestData{To: "0x2"}}).TargetContract())
	assert.Equal(t, "0x3", (&RelayRequest{Execute: &MetaTransactionRequest{To: "0x3"}}).TargetContract())
	assert.Empty(t, (&RelayRequest{}).TargetContract())
}
