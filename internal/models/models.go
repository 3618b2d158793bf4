package models

import (
	"strings"
	"time"

	"go-relayer/internal/utils"
)

// Relayer chain identity and policy for a backend-controlled wallet.
// Created and updated by the admin configuration flow; the relay core only
// reads these records.
type Relayer struct {
	ID             string `json:"id" gorm:"primaryKey"` // UUID
	Name           string `json:"name"`
	ChainID        uint64 `json:"chain_id" gorm:"not null;index"`
	BackendWallet  string `json:"backend_wallet_address" gorm:"not null;size:42;index"`
	AllowedTargets string `json:"allowed_contracts" gorm:"type:text"`  // comma separated, empty = allow any
	AllowedRelays  string `json:"allowed_forwarders" gorm:"type:text"` // comma separated, empty = allow any

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Relayer) TableName() string {
	return "relayers"
}

// AllowedContracts returns the normalized contract allow-list, nil when the
// relayer allows any target contract.
func (r *Relayer) AllowedContracts() []string {
	return splitAddressList(r.AllowedTargets)
}

// AllowedForwarders returns the normalized forwarder allow-list, nil when the
// relayer allows any forwarder.
func (r *Relayer) AllowedForwarders() []string {
	return splitAddressList(r.AllowedRelays)
}

// AllowsContract checks the contract allow-list (absence = allow any).
func (r *Relayer) AllowsContract(address string) bool {
	list := r.AllowedContracts()
	if list == nil {
		return true
	}
	return utils.ContainsAddress(list, address)
}

// AllowsForwarder checks the forwarder allow-list (absence = allow any).
func (r *Relayer) AllowsForwarder(address string) bool {
	list := r.AllowedForwarders()
	if list == nil {
		return true
	}
	return utils.ContainsAddress(list, address)
}

func splitAddressList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, utils.NormalizeAddress(trimmed))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// WebhookSubscription a registered webhook endpoint for one event type.
// Rows are managed by the admin API; the cache and notifier only read them.
type WebhookSubscription struct {
	ID        string    `json:"id" gorm:"primaryKey"` // UUID
	EventType string    `json:"event_type" gorm:"not null;index"`
	URL       string    `json:"url" gorm:"not null"`
	Secret    string    `json:"secret,omitempty"`
	Active    bool      `json:"active" gorm:"not null;default:true;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}
