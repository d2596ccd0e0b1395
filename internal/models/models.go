package models

import (
	"time"

	"github.com/google/uuid"
)

// Round lifecycle states.
const (
	RoundOpen     = "OPEN"
	RoundLocked   = "LOCKED"
	RoundResolved = "RESOLVED"
)

// Coin outcomes. OutcomeHouse is the edge roll where neither side pays out.
const (
	OutcomeUnset = "unset"
	OutcomeHeads = "heads"
	OutcomeTails = "tails"
	OutcomeHouse = "house"
)

// Round is one betting cycle of the coin flip room. Once the state hits
// RoundResolved the round is immutable and belongs in the round history.
type Round struct {
	ID          string    `json:"round_id"`
	RoundNumber int64     `json:"round_number"`
	State       string    `json:"state"`
	Outcome     string    `json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *Round) IsResolved() bool {
	return r.State == RoundResolved
}

// Bet result states.
const (
	BetUnset = "unset"
	BetWin   = "win"
	BetLose  = "lose"
)

// Bet is a single wager by the current user against a round. Result stays
// unset until the round resolves and the backend reports win or lose.
type Bet struct {
	ID        string    `json:"bet_id"`
	RoundID   string    `json:"round_id"`
	Amount    float64   `json:"amount"`
	Side      string    `json:"side"`
	Result    string    `json:"result"`
	AmountWon float64   `json:"amount_won"`
	CreatedAt time.Time `json:"created_at"`
}

// HasResult reports whether the backend already settled this bet.
func (b *Bet) HasResult() bool {
	return b.Result != "" && b.Result != BetUnset
}

// Transaction kinds.
const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
)

// Transaction status. Submitted means the backend queued the request with the
// payment gateway; the final settled/failed only ever arrives as a push event.
// Unknown means the settlement window elapsed with no gateway event.
const (
	TxSubmitted = "submitted"
	TxSettled   = "settled"
	TxFailed    = "failed"
	TxUnknown   = "unknown"
)

// TransactionRequest is a user initiated deposit or withdrawal. The
// CorrelationID is generated client side before the request is sent, the ID
// is assigned by the backend once the request is accepted.
type TransactionRequest struct {
	ID            string    `json:"transaction_id"`
	CorrelationID string    `json:"correlation_id"`
	Kind          string    `json:"kind"`
	Amount        float64   `json:"amount"`
	Phone         string    `json:"phone"`
	Status        string    `json:"status"`
	ReceiptNumber string    `json:"receipt_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WalletSnapshot is the most recently observed balance as asserted by the
// server. The client never derives it from bet or transaction deltas.
type WalletSnapshot struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

func GenerateUUID() string {
	return uuid.New().String()
}
