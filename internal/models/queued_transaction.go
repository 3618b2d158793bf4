package models

import (
	"fmt"
	"time"
)

// QueuedTransactionStatus lifecycle state of a queued transaction
type QueuedTransactionStatus string

const (
	QueuedTransactionStatusQueued    QueuedTransactionStatus = "queued"    // accepted, waiting for a submission lane
	QueuedTransactionStatusSubmitted QueuedTransactionStatus = "submitted" // signed and broadcast to the chain
	QueuedTransactionStatusMined     QueuedTransactionStatus = "mined"     // included in a block
	QueuedTransactionStatusConfirmed QueuedTransactionStatus = "confirmed" // survived the confirmation depth
	QueuedTransactionStatusErrored   QueuedTransactionStatus = "errored"   // permanent failure, no further retries
	QueuedTransactionStatusCancelled QueuedTransactionStatus = "cancelled" // operator cancel, only reachable from queued
)

// IsTerminal reports whether no further transition may leave this status.
func (s QueuedTransactionStatus) IsTerminal() bool {
	switch s {
	case QueuedTransactionStatusConfirmed, QueuedTransactionStatusErrored, QueuedTransactionStatusCancelled:
		return true
	}
	return false
}

// EventType maps a status to the webhook/NATS event type emitted on the
// transition into it. Empty string means no notification for that status.
func (s QueuedTransactionStatus) EventType() string {
	switch s {
	case QueuedTransactionStatusQueued:
		return "transaction_queued"
	case QueuedTransactionStatusSubmitted:
		return "transaction_submitted"
	case QueuedTransactionStatusMined:
		return "transaction_mined"
	case QueuedTransactionStatusConfirmed:
		return "transaction_confirmed"
	case QueuedTransactionStatusErrored:
		return "transaction_errored"
	}
	return ""
}

// QueuedTransaction durable unit of on-chain work. Created by the queue
// service on enqueue, mutated only by the submission worker afterwards,
// never deleted by the core.
type QueuedTransaction struct {
	ID        string                  `json:"queue_id" gorm:"primaryKey"` // UUID, immutable across retries
	ChainID   uint64                  `json:"chain_id" gorm:"not null;index:idx_wallet_chain"`
	Extension string                  `json:"extension" gorm:"index"` // logical route family that produced the intent
	Status    QueuedTransactionStatus `json:"status" gorm:"not null;default:queued;index"`

	// Transaction intent payload
	WalletAddress string `json:"wallet_address" gorm:"not null;index:idx_wallet_chain;size:42"`
	ToAddress     string `json:"to_address" gorm:"not null;size:42"`
	Data          string `json:"data" gorm:"type:text"` // hex encoded call data
	Value         string `json:"value" gorm:"default:0"`
	Fingerprint   string `json:"fingerprint" gorm:"index;size:66"` // keccak of the intent content, diagnostic only

	// Chain results
	Nonce       *uint64 `json:"nonce" gorm:"index"` // assigned at submission time
	TxHash      string  `json:"tx_hash" gorm:"index"`
	BlockNumber *uint64 `json:"block_number"`
	GasLimit    uint64  `json:"gas_limit"`
	GasPrice    string  `json:"gas_price"`

	// Retry bookkeeping
	RetryCount  int        `json:"retry_count" gorm:"default:0"`
	MaxRetries  int        `json:"max_retries" gorm:"default:3"`
	NextRetryAt *time.Time `json:"next_retry_at"`
	LastError   string     `json:"last_error" gorm:"type:text"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	MinedAt     *time.Time `json:"mined_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

// TableName specifies the table name
func (QueuedTransaction) TableName() string {
	return "queued_transactions"
}

// LaneKey identifies the per (wallet, chain) submission lane the record
// belongs to. Submissions within one lane are strictly serialized.
func (q *QueuedTransaction) LaneKey() string {
	return LaneKey(q.WalletAddress, q.ChainID)
}

// LaneKey builds the submission lane key for a wallet+chain pair.
func LaneKey(wallet string, chainID uint64) string {
	return fmt.Sprintf("%s:%d", wallet, chainID)
}
