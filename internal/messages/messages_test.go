package messages_test

import (
	"testing"

	"github.com/Lavizord/coinflip-client/internal/messages"
	"github.com/Lavizord/coinflip-client/internal/models"
)

func TestDecodeRawEvent(t *testing.T) {
	payload := []byte(`{"event":"roundResult","value":{"round_id":"r-42","round_number":42,"outcome":"heads"}}`)

	ev, err := messages.DecodeRawEvent(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Event != messages.EvRoundResult {
		t.Errorf("expected roundResult, got %s", ev.Event)
	}

	round, err := messages.DecodeValue[models.Round](ev.Value)
	if err != nil {
		t.Fatalf("value decode failed: %v", err)
	}
	if round.ID != "r-42" || round.RoundNumber != 42 || round.Outcome != models.OutcomeHeads {
		t.Errorf("unexpected round: %+v", round)
	}
}

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	if _, err := messages.DecodeRawEvent([]byte(`{"event":"pwnEverything","value":{}}`)); err == nil {
		t.Error("unknown event should be rejected")
	}
	if _, err := messages.DecodeRawEvent([]byte(`not json`)); err == nil {
		t.Error("malformed payload should be rejected")
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	data, err := messages.EncodeEvent(messages.EvBalanceUpdate, messages.BalanceValue{Balance: 137.5})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	ev, err := messages.DecodeRawEvent(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	value, err := messages.DecodeValue[messages.BalanceValue](ev.Value)
	if err != nil {
		t.Fatalf("value decode failed: %v", err)
	}
	if value.Balance != 137.5 {
		t.Errorf("expected 137.5, got %f", value.Balance)
	}
}

func TestEncodeRejectsUnknownEvent(t *testing.T) {
	if _, err := messages.EncodeEvent("madeUp", 1); err == nil {
		t.Error("unknown event should not encode")
	}
}
