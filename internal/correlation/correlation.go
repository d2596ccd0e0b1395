// Package correlation bridges the gap between a mutation the backend merely
// accepted and its real outcome, which the payment gateway reports later
// through a push event. Each submitted deposit or withdrawal gets a client
// generated correlation id; the settlement event echoes it back.
package correlation

import (
	"sync"
	"time"

	"github.com/Lavizord/coinflip-client/internal/models"
	"github.com/Lavizord/coinflip-client/logger"
)

const defaultWindow = 120 * time.Second

// Correlator keeps the pending placeholder per correlation id and resolves or
// expires them. Expired placeholders are handed to onExpire with status
// unknown so they surface as "check history" instead of sitting in submitted
// forever; gateway delivery is not guaranteed.
type Correlator struct {
	window   time.Duration
	onExpire func(models.TransactionRequest)

	mu      sync.Mutex
	pending map[string]models.TransactionRequest

	quit    chan struct{}
	stopped sync.Once
}

func New(window time.Duration, onExpire func(models.TransactionRequest)) *Correlator {
	if window <= 0 {
		window = defaultWindow
	}
	return &Correlator{
		window:   window,
		onExpire: onExpire,
		pending:  make(map[string]models.TransactionRequest),
		quit:     make(chan struct{}),
	}
}

// Track creates the placeholder for a mutation about to be submitted. The
// correlation id exists before the request is sent, so a settlement racing
// the submit response still matches.
func (c *Correlator) Track(kind string, amount float64, phone string) models.TransactionRequest {
	tx := models.TransactionRequest{
		CorrelationID: models.GenerateUUID(),
		Kind:          kind,
		Amount:        amount,
		Phone:         phone,
		Status:        models.TxSubmitted,
		CreatedAt:     time.Now(),
	}
	c.mu.Lock()
	c.pending[tx.CorrelationID] = tx
	c.mu.Unlock()
	return tx
}

// Confirm records the backend assigned transaction id on the placeholder once
// the submit request is acknowledged. Returns the updated placeholder; the
// settlement may already have taken it, in which case ok is false.
func (c *Correlator) Confirm(correlationID, transactionID string) (models.TransactionRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.pending[correlationID]
	if !ok {
		return models.TransactionRequest{}, false
	}
	tx.ID = transactionID
	c.pending[correlationID] = tx
	return tx, true
}

// Drop discards a placeholder whose submit request was rejected outright; no
// settlement will ever reference it.
func (c *Correlator) Drop(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

// Resolve matches a settlement event to its placeholder, by correlation id
// first and by backend id as a fallback for events that lost the correlation
// field on the way through the webhook processor. The placeholder leaves the
// pending set in the same step, so a redelivered settlement finds nothing to
// resolve twice. ok is false for settlements with no matching placeholder
// (e.g. submitted from another device); the caller still records those.
func (c *Correlator) Resolve(correlationID, transactionID, status, receipt string) (models.TransactionRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.pending[correlationID]
	if !ok && transactionID != "" {
		for key, candidate := range c.pending {
			if candidate.ID == transactionID {
				tx, ok = candidate, true
				correlationID = key
				break
			}
		}
	}
	if !ok {
		return models.TransactionRequest{}, false
	}
	delete(c.pending, correlationID)

	if transactionID != "" {
		tx.ID = transactionID
	}
	tx.Status = status
	tx.ReceiptNumber = receipt
	return tx, true
}

// Pending returns the placeholders still waiting on the gateway.
func (c *Correlator) Pending() []models.TransactionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.TransactionRequest, 0, len(c.pending))
	for _, tx := range c.pending {
		out = append(out, tx)
	}
	return out
}

// Sweep expires placeholders older than the settlement window, marking them
// unknown and handing them to onExpire. Split out from the ticker loop so
// tests can drive it with a synthetic clock.
func (c *Correlator) Sweep(now time.Time) []models.TransactionRequest {
	c.mu.Lock()
	var expired []models.TransactionRequest
	for key, tx := range c.pending {
		if now.Sub(tx.CreatedAt) >= c.window {
			delete(c.pending, key)
			tx.Status = models.TxUnknown
			expired = append(expired, tx)
		}
	}
	c.mu.Unlock()

	for _, tx := range expired {
		logger.Default.Warnf("no settlement for %s %s within %s, marking status unknown", tx.Kind, tx.CorrelationID, c.window)
		if c.onExpire != nil {
			c.onExpire(tx)
		}
	}
	return expired
}

// Start runs the expiry sweep until Stop is called.
func (c *Correlator) Start() {
	go func() {
		ticker := time.NewTicker(c.window / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep(time.Now())
			case <-c.quit:
				return
			}
		}
	}()
}

func (c *Correlator) Stop() {
	c.stopped.Do(func() { close(c.quit) })
}
