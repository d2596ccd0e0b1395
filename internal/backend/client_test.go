package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lavizord/coinflip-client/internal/apperr"
	"github.com/Lavizord/coinflip-client/internal/backend"
	"github.com/Lavizord/coinflip-client/internal/models"
)

func TestGetCurrentRound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/round/current" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-access-token") != "tok" {
			t.Errorf("missing access token header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data": map[string]any{
				"round_id": "r-1", "round_number": 7, "state": "OPEN", "outcome": "unset",
			},
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "key")
	round, err := client.GetCurrentRound(context.Background(), "tok")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if round.ID != "r-1" || round.State != models.RoundOpen {
		t.Errorf("unexpected round: %+v", round)
	}
}

func TestErrorEnvelopeMapsToErrorKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "error",
			"resp":   "too many otp requests",
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "")
	err := client.RequestOTP(context.Background(), "254700000001")
	if err == nil {
		t.Fatal("expected an error")
	}
	appErr := apperr.From(err)
	if appErr.Kind != apperr.KindRateLimited {
		t.Errorf("expected rate limited, got %s", appErr.Kind)
	}
}

func TestValidationBeforeRequest(t *testing.T) {
	// No server: validation failures must not touch the network.
	client := backend.NewClient("http://127.0.0.1:0", "")

	if _, err := client.PlaceBet(context.Background(), "tok", "r-1", "edge", 10); err == nil {
		t.Error("bad side should be rejected")
	} else if apperr.From(err).Kind != apperr.KindValidation {
		t.Errorf("expected validation kind, got %s", apperr.From(err).Kind)
	}

	if _, err := client.PlaceBet(context.Background(), "tok", "r-1", models.OutcomeHeads, 0); err == nil {
		t.Error("zero amount should be rejected")
	}

	tx := models.TransactionRequest{Amount: 100}
	if _, err := client.InitiateDeposit(context.Background(), "tok", tx); err == nil {
		t.Error("missing phone should be rejected")
	}
}

func TestInitiateDepositSendsCorrelationID(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   map[string]string{"transaction_id": "tx-1"},
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "")
	tx := models.TransactionRequest{CorrelationID: "c1", Amount: 500, Phone: "254700000001"}
	id, err := client.InitiateDeposit(context.Background(), "tok", tx)
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if id != "tx-1" {
		t.Errorf("expected accepted id tx-1, got %s", id)
	}
	if got["correlation_id"] != "c1" {
		t.Errorf("correlation id not sent, body: %+v", got)
	}
}

func TestGetBetHistoryPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("expected page=2, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data": map[string]any{
				"items":       []map[string]any{{"bet_id": "b-1", "result": "unset"}},
				"page":        2,
				"total_pages": 5,
				"total_items": 93,
			},
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "")
	page, err := client.GetBetHistory(context.Background(), "tok", 2)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if page.Page != 2 || page.TotalPages != 5 || page.TotalItems != 93 {
		t.Errorf("pagination metadata wrong: %+v", page)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "b-1" {
		t.Errorf("items wrong: %+v", page.Items)
	}
}
