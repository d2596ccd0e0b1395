// Package backend is the REST side of the betting room: one shot fetches and
// mutation submissions. Deposits and withdrawals only get an accepted
// acknowledgment here; their real outcome arrives later on the per user
// pub/sub topic.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Lavizord/coinflip-client/internal/apperr"
	"github.com/Lavizord/coinflip-client/internal/models"
	"github.com/Lavizord/coinflip-client/internal/requests"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// errorEnvelope is what the backend returns on any failure. Responses are
// tried against it first, normal payloads after.
type errorEnvelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Resp   string `json:"resp"`
}

// do issues one request and decodes the data envelope into out. Transport
// failures, error envelopes and non-2xx statuses all come back as
// *apperr.Error so trackers can surface them uniformly.
func (c *Client) do(ctx context.Context, method, endpoint, token string, in, out any) error {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "bad_base_url", err)
	}
	if i := strings.Index(endpoint, "?"); i >= 0 {
		base.RawQuery = endpoint[i+1:]
		endpoint = endpoint[:i]
	}
	base.Path = path.Join(base.Path, endpoint)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.KindUnknown, "encode_failed", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, base.String(), body)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "request_failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	if token != "" {
		req.Header.Set("x-access-token", token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, "network_failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, "read_failed", err)
	}

	// Try to unmarshal as an error first.
	var apiError errorEnvelope
	if err := json.Unmarshal(data, &apiError); err == nil && apiError.Status == "error" {
		appErr := apperr.FromStatus(resp.StatusCode, apiError.Resp)
		if apiError.Code != "" {
			appErr.Code = apiError.Code
		}
		return appErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromStatus(resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.KindUnknown, "decode_failed", fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// RequestOTP asks the backend to send a one time code to the phone.
func (c *Client) RequestOTP(ctx context.Context, phone string) error {
	if phone == "" {
		return apperr.New(apperr.KindValidation, "bad_phone", "phone is required")
	}
	payload := map[string]string{"phone": phone}
	return c.do(ctx, http.MethodPost, "otp/request", "", payload, nil)
}

type verifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token    string  `json:"token"`
		PlayerID string  `json:"player_id"`
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"data"`
}

// VerifyOTP trades a code for a session. The response doubles as the
// authoritative initial balance.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*models.Session, *models.WalletSnapshot, error) {
	if phone == "" {
		return nil, nil, apperr.New(apperr.KindValidation, "bad_phone", "phone is required")
	}
	if code == "" {
		return nil, nil, apperr.New(apperr.KindValidation, "bad_request", "code is required")
	}
	payload := map[string]string{"phone": phone, "code": code}
	var resp verifyResponse
	if err := c.do(ctx, http.MethodPost, "otp/verify", "", payload, &resp); err != nil {
		return nil, nil, err
	}
	session := &models.Session{
		Token:     resp.Data.Token,
		PlayerID:  resp.Data.PlayerID,
		Phone:     phone,
		CreatedAt: time.Now(),
	}
	wallet := &models.WalletSnapshot{
		Balance:  resp.Data.Balance,
		Currency: resp.Data.Currency,
	}
	return session, wallet, nil
}

type roundResponse struct {
	Status string       `json:"status"`
	Data   models.Round `json:"data"`
}

func (c *Client) GetCurrentRound(ctx context.Context, token string) (*models.Round, error) {
	var resp roundResponse
	if err := c.do(ctx, http.MethodGet, "round/current", token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type jackpotResponse struct {
	Status string `json:"status"`
	Data   struct {
		Amount float64 `json:"amount"`
	} `json:"data"`
}

func (c *Client) GetJackpot(ctx context.Context, token string) (float64, error) {
	var resp jackpotResponse
	if err := c.do(ctx, http.MethodGet, "jackpot", token, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Amount, nil
}

type walletResponse struct {
	Status string                `json:"status"`
	Data   models.WalletSnapshot `json:"data"`
}

func (c *Client) GetWallet(ctx context.Context, token string) (*models.WalletSnapshot, error) {
	var resp walletResponse
	if err := c.do(ctx, http.MethodGet, "wallet", token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type betResponse struct {
	Status string     `json:"status"`
	Data   models.Bet `json:"data"`
}

// PlaceBet submits a wager on the open round. The returned bet has an unset
// result; resolution arrives as a betResult push event.
func (c *Client) PlaceBet(ctx context.Context, token, roundID, side string, amount float64) (*models.Bet, error) {
	if amount <= 0 {
		return nil, apperr.New(apperr.KindValidation, "bad_amount", "bet amount must be positive")
	}
	if side != models.OutcomeHeads && side != models.OutcomeTails {
		return nil, apperr.New(apperr.KindValidation, "bad_side", "side must be heads or tails")
	}
	payload := map[string]any{
		"round_id": roundID,
		"side":     side,
		"amount":   amount,
	}
	var resp betResponse
	if err := c.do(ctx, http.MethodPost, "bet", token, payload, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type pageEnvelope[T any] struct {
	Status string           `json:"status"`
	Data   requests.Page[T] `json:"data"`
}

func (c *Client) GetBetHistory(ctx context.Context, token string, page int) (requests.Page[models.Bet], error) {
	var resp pageEnvelope[models.Bet]
	endpoint := "bets?page=" + strconv.Itoa(page)
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return requests.Page[models.Bet]{}, err
	}
	return resp.Data, nil
}

func (c *Client) GetDepositHistory(ctx context.Context, token string, page int) (requests.Page[models.TransactionRequest], error) {
	return c.getTransactionPage(ctx, token, "deposits", page)
}

func (c *Client) GetWithdrawalHistory(ctx context.Context, token string, page int) (requests.Page[models.TransactionRequest], error) {
	return c.getTransactionPage(ctx, token, "withdrawals", page)
}

func (c *Client) getTransactionPage(ctx context.Context, token, endpoint string, page int) (requests.Page[models.TransactionRequest], error) {
	var resp pageEnvelope[models.TransactionRequest]
	if err := c.do(ctx, http.MethodGet, endpoint+"?page="+strconv.Itoa(page), token, nil, &resp); err != nil {
		return requests.Page[models.TransactionRequest]{}, err
	}
	return resp.Data, nil
}

type acceptResponse struct {
	Status string `json:"status"`
	Data   struct {
		TransactionID string `json:"transaction_id"`
	} `json:"data"`
}

// InitiateDeposit submits an STK style deposit push. The return value is only
// the backend assigned transaction id of the queued request, never a
// settlement.
func (c *Client) InitiateDeposit(ctx context.Context, token string, tx models.TransactionRequest) (string, error) {
	return c.initiateTransaction(ctx, token, "deposit", tx)
}

// InitiateWithdrawal submits a payout request. Same acknowledgment-only
// semantics as InitiateDeposit.
func (c *Client) InitiateWithdrawal(ctx context.Context, token string, tx models.TransactionRequest) (string, error) {
	return c.initiateTransaction(ctx, token, "withdraw", tx)
}

func (c *Client) initiateTransaction(ctx context.Context, token, endpoint string, tx models.TransactionRequest) (string, error) {
	if tx.Amount <= 0 {
		return "", apperr.New(apperr.KindValidation, "bad_amount", "amount must be positive")
	}
	if tx.Phone == "" {
		return "", apperr.New(apperr.KindValidation, "bad_phone", "phone is required")
	}
	payload := map[string]any{
		"amount":         tx.Amount,
		"phone":          tx.Phone,
		"correlation_id": tx.CorrelationID,
	}
	var resp acceptResponse
	if err := c.do(ctx, http.MethodPost, endpoint, token, payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.TransactionID, nil
}
