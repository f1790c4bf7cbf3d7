package domain

import "time"

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// TransactionReason classifies why a ledger entry exists.
type TransactionReason string

const (
	// ReasonHold is the reservation debit written at submission.
	ReasonHold TransactionReason = "HOLD"
	// ReasonRefund is the settling credit written when a job fails.
	ReasonRefund TransactionReason = "REFUND"
	// ReasonGrant is an administrative top-up with no job attached.
	ReasonGrant TransactionReason = "GRANT"
)

// CreditTransaction is one append-only ledger entry.
type CreditTransaction struct {
	ID        string
	UserID    string
	Type      TransactionType
	Reason    TransactionReason
	Amount    int64
	JobID     *string
	CreatedAt time.Time
}

// Signed returns the amount with the sign implied by the transaction type.
func (t CreditTransaction) Signed() int64 {
	if t.Type == TransactionDebit {
		return -t.Amount
	}
	return t.Amount
}
