package dto

import (
	"fmt"
	"time"
)

// RelayRequestType tag selecting exactly one relay request variant
type RelayRequestType string

const (
	RelayRequestTypeForward RelayRequestType = "forward"
	RelayRequestTypePermit  RelayRequestType = "permit"
	RelayRequestTypeExecute RelayRequestType = "execute-meta-transaction"
)

// RelayRequest tagged union of the three supported meta-transaction
// authorization patterns. Exactly one payload must be set, and it must match
// the type tag.
type RelayRequest struct {
	Type    RelayRequestType        `json:"type" binding:"required"`
	Forward *ForwardRequestData     `json:"forward,omitempty"`
	Permit  *PermitRequestData      `json:"permit,omitempty"`
	Execute *MetaTransactionRequest `json:"execute_meta_transaction,omitempty"`
}

// ForwardRequestData a generic ERC-2771 forwarder-relayed call
type ForwardRequestData struct {
	From             string `json:"from" binding:"required"`
	To               string `json:"to" binding:"required"`
	Value            string `json:"value"`
	Gas              string `json:"gas" binding:"required"`
	Nonce            string `json:"nonce" binding:"required"`
	Data             string `json:"data" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
	ForwarderAddress string `json:"forwarder_address" binding:"required"`
}

// PermitRequestData an ERC-2612 off-chain token approval
type PermitRequestData struct {
	Owner     string `json:"owner" binding:"required"`
	Spender   string `json:"spender" binding:"required"`
	Value     string `json:"value" binding:"required"`
	Nonce     string `json:"nonce"`
	Deadline  string `json:"deadline" binding:"required"`
	To        string `json:"to" binding:"required"` // token contract
	Signature string `json:"signature" binding:"required"`
}

// MetaTransactionRequest the legacy native meta-transaction pattern
type MetaTransactionRequest struct {
	From      string `json:"from" binding:"required"`
	To        string `json:"to" binding:"required"`
	Data      string `json:"data" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// Validate checks that exactly one variant payload is present and matches
// the type tag
func (r *RelayRequest) Validate() error {
	set := 0
	if r.Forward != nil {
		set++
	}
	if r.Permit != nil {
		set++
	}
	if r.Execute != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one request payload must be set, got %d", set)
	}

	switch r.Type {
	case RelayRequestTypeForward:
		if r.Forward == nil {
			return fmt.Errorf("type %q requires the forward payload", r.Type)
		}
	case RelayRequestTypePermit:
		if r.Permit == nil {
			return fmt.Errorf("type %q requires the permit payload", r.Type)
		}
	case RelayRequestTypeExecute:
		if r.Execute == nil {
			return fmt.Errorf("type %q requires the execute_meta_transaction payload", r.Type)
		}
	default:
		return fmt.Errorf("unknown relay request type %q", r.Type)
	}
	return nil
}

// TargetContract returns the contract the variant ultimately calls into,
// used for the relayer contract allow-list check
func (r *RelayRequest) TargetContract() string {
	switch {
	case r.Forward != nil:
		return r.Forward.To
	case r.Permit != nil:
		return r.Permit.To
	case r.Execute != nil:
		return r.Execute.To
	}
	return ""
}

// RelayResponse returned synchronously once the intent is durably queued
type RelayResponse struct {
	QueueID string `json:"queue_id"`
}

// RelayErrorResponse returned on authorization rejection
type RelayErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// TransactionStatusResponse the status query view of a queued transaction
type TransactionStatusResponse struct {
	QueueID     string     `json:"queue_id"`
	ChainID     uint64     `json:"chain_id"`
	Extension   string     `json:"extension"`
	Status      string     `json:"status"`
	Wallet      string     `json:"wallet_address"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Nonce       *uint64    `json:"nonce,omitempty"`
	BlockNumber *uint64    `json:"block_number,omitempty"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	MinedAt     *time.Time `json:"mined_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
