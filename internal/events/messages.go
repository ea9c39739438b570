package events

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the ledger fan-out channel.
const (
	KindTransactionCreated = "transaction.created"
	KindTransactionDeleted = "transaction.deleted"
	KindBalanceRepaired    = "balance.repaired"
)

// LedgerEvent is a lightweight notification of a committed mutation.
// Consumers fetch any state they need from the store; the event carries
// just enough to route and correlate.
type LedgerEvent struct {
	Kind        string    `json:"kind"`
	OwnerID     string    `json:"owner_id"`
	TxID        string    `json:"transaction_id,omitempty"`
	WalletID    string    `json:"wallet_id,omitempty"`
	Category    string    `json:"category,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Epoch       uint64    `json:"epoch"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
