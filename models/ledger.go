package models

import "time"

// EntryKind classifies a ledger entry
type EntryKind string

// Ledger entry kinds
const (
	EntryDebit  EntryKind = "debit"
	EntryCredit EntryKind = "credit"
	EntryRefund EntryKind = "refund"
)

// LedgerEntry holds the structure for the wallettransactions collection in mongo.
// Entries are append-only.
type LedgerEntry struct {
	ID    string    `json:"_id" bson:"_id"`
	Actor string    `json:"user" bson:"user"`
	Kind  EntryKind `json:"type" bson:"type"`
	// Amount is signed: negative for debits, positive for credits and refunds
	Amount           int64   `json:"amount" bson:"amount"`
	RelatedCase      *string `json:"rescueRequest" bson:"rescueRequest"`
	ResultingBalance int64   `json:"balanceAfter" bson:"balanceAfter"`
	Description      string  `json:"description" bson:"description"`
	// IdempotencyKey is unique across the collection
	IdempotencyKey   string    `json:"-" bson:"idempotencyKey"`
	PaymentReference string    `json:"paymentReference,omitempty" bson:"paymentReference,omitempty"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}

// WalletResponse is returned by the wallet endpoint
type WalletResponse struct {
	Success       bool          `json:"success"`
	WalletBalance int64         `json:"walletBalance"`
	Transactions  []LedgerEntry `json:"transactions"`
}

// LedgerAudit compares a cached wallet balance against its ledger
type LedgerAudit struct {
	Actor         string `json:"user"`
	CachedBalance int64  `json:"walletBalance"`
	LedgerBalance int64  `json:"ledgerBalance"`
	Entries       int    `json:"entries"`
	ChainValid    bool   `json:"chainValid"`
	Consistent    bool   `json:"consistent"`
}
