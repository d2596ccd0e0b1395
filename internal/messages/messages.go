package messages

import (
	"encoding/json"
	"fmt"
)

// Event is the envelope every push message arrives in: an event name plus a
// JSON payload matching one of the model entities.
type Event[T any] struct {
	Event string `json:"event"`
	Value T      `json:"value,omitempty"`
}

// Room wide events.
const (
	EvRoundUpdate        = "roundUpdate"
	EvRoundResult        = "roundResult"
	EvBetResult          = "betResult"
	EvIndividualBet      = "individualBetUpdate"
	EvJackpotUpdate      = "jackpotUpdate"
	EvRoundHistoryUpdate = "roundHistoryUpdate"
)

// Per user events.
const (
	EvBalanceUpdate    = "balance_update"
	EvDepositStatus    = "deposit_status"
	EvWithdrawalStatus = "withdrawal_status"
)

var validEvents = map[string]struct{}{
	EvRoundUpdate:        {},
	EvRoundResult:        {},
	EvBetResult:          {},
	EvIndividualBet:      {},
	EvJackpotUpdate:      {},
	EvRoundHistoryUpdate: {},
	EvBalanceUpdate:      {},
	EvDepositStatus:      {},
	EvWithdrawalStatus:   {},
}

// BalanceValue is the payload of a balance_update: an authoritative snapshot,
// never a delta.
type BalanceValue struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency,omitempty"`
}

type JackpotValue struct {
	Amount float64 `json:"amount"`
}

// SettlementValue reports the payment gateway outcome for a deposit or
// withdrawal that was previously accepted by the backend.
type SettlementValue struct {
	CorrelationID string `json:"correlation_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
}

// DecodeRawEvent peels the envelope off without touching the payload, so the
// caller can switch on the event name before committing to a value type.
func DecodeRawEvent(data []byte) (*Event[json.RawMessage], error) {
	var ev Event[json.RawMessage]
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("[messages] - invalid event format: %w", err)
	}
	if _, ok := validEvents[ev.Event]; !ok {
		return nil, fmt.Errorf("[messages] - unknown event: %s", ev.Event)
	}
	return &ev, nil
}

func DecodeValue[T any](raw json.RawMessage) (T, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("[messages] - invalid event value: %w", err)
	}
	return value, nil
}

func EncodeEvent[T any](event string, value T) ([]byte, error) {
	if _, ok := validEvents[event]; !ok {
		return nil, fmt.Errorf("[messages] - unknown event: %s", event)
	}
	return json.Marshal(Event[T]{Event: event, Value: value})
}
