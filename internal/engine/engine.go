// Package engine wires the transport channels, the backend client, the
// correlation layer and the reconciler store into one synchronization engine.
// It owns the teardown hazard: every subscription handler and in flight fetch
// is stamped with an owner generation, and a completion that outlived its
// generation (logout, user switch, Stop) is a no-op instead of a write into
// the next owner's state.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Lavizord/coinflip-client/internal/apperr"
	"github.com/Lavizord/coinflip-client/internal/backend"
	"github.com/Lavizord/coinflip-client/internal/channels"
	"github.com/Lavizord/coinflip-client/internal/correlation"
	"github.com/Lavizord/coinflip-client/internal/messages"
	"github.com/Lavizord/coinflip-client/internal/models"
	"github.com/Lavizord/coinflip-client/internal/reconciler"
	"github.com/Lavizord/coinflip-client/internal/requests"
	"github.com/Lavizord/coinflip-client/logger"
)

type Config struct {
	RoomID           string
	SettlementWindow time.Duration
}

type Engine struct {
	cfg      Config
	backend  *backend.Client
	channels *channels.Manager
	store    *reconciler.Store
	corr     *correlation.Correlator

	mu            sync.Mutex
	gen           uint64
	session       *models.Session
	roomHandle    *channels.Handle
	historyHandle *channels.Handle
	playerHandle  *channels.Handle

	// One tracker per logical pull/mutate operation; consumers read these for
	// loading and error state.
	RoundFetch        *requests.Tracker[models.Round]
	JackpotFetch      *requests.Tracker[float64]
	WalletFetch       *requests.Tracker[models.WalletSnapshot]
	BetHistory        *requests.PageTracker[models.Bet]
	DepositHistory    *requests.PageTracker[models.TransactionRequest]
	WithdrawalHistory *requests.PageTracker[models.TransactionRequest]
	BetSubmit         *requests.Tracker[models.Bet]
	DepositSubmit     *requests.Tracker[models.TransactionRequest]
	WithdrawalSubmit  *requests.Tracker[models.TransactionRequest]
	OTPSend           *requests.Tracker[bool]
	Login             *requests.Tracker[models.Session]
}

func New(cfg Config, client *backend.Client, mgr *channels.Manager, store *reconciler.Store) *Engine {
	e := &Engine{
		cfg:               cfg,
		backend:           client,
		channels:          mgr,
		store:             store,
		RoundFetch:        requests.NewTracker[models.Round](),
		JackpotFetch:      requests.NewTracker[float64](),
		WalletFetch:       requests.NewTracker[models.WalletSnapshot](),
		BetHistory:        requests.NewPageTracker[models.Bet](),
		DepositHistory:    requests.NewPageTracker[models.TransactionRequest](),
		WithdrawalHistory: requests.NewPageTracker[models.TransactionRequest](),
		BetSubmit:         requests.NewTracker[models.Bet](),
		DepositSubmit:     requests.NewTracker[models.TransactionRequest](),
		WithdrawalSubmit:  requests.NewTracker[models.TransactionRequest](),
		OTPSend:           requests.NewTracker[bool](),
		Login:             requests.NewTracker[models.Session](),
	}
	// Expired placeholders surface in the ledger as status unknown; the
	// underlying mutation may still succeed later, in which case the late
	// settlement replaces the entry by id.
	e.corr = correlation.New(cfg.SettlementWindow, func(tx models.TransactionRequest) {
		e.store.ApplyTransaction(tx)
	})
	return e
}

func (e *Engine) Store() *reconciler.Store {
	return e.store
}

// PendingTransactions returns the deposits/withdrawals still waiting on the
// payment gateway.
func (e *Engine) PendingTransactions() []models.TransactionRequest {
	return e.corr.Pending()
}

func (e *Engine) currentGen() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

func (e *Engine) genValid(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == gen
}

// Start opens the room wide topics and begins the settlement expiry sweep.
// Per user topics are opened by Login.
func (e *Engine) Start(ctx context.Context) error {
	gen := e.currentGen()
	handler := e.roomHandler(gen)

	roomHandle, err := e.channels.Open(ctx, channels.RoomTopic(e.cfg.RoomID), handler)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, "subscribe_failed", err)
	}
	historyHandle, err := e.channels.Open(ctx, channels.RoomHistoryTopic(e.cfg.RoomID), handler)
	if err != nil {
		e.channels.Close(roomHandle)
		return apperr.Wrap(apperr.KindTransport, "subscribe_failed", err)
	}

	e.mu.Lock()
	e.roomHandle = roomHandle
	e.historyHandle = historyHandle
	e.mu.Unlock()

	e.corr.Start()
	logger.Default.Infof("sync engine started for room %s", e.cfg.RoomID)
	return nil
}

// Stop tears the engine down: the generation bump makes every in flight
// callback a no-op, then the subscriptions are closed synchronously.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	room, history, player := e.roomHandle, e.historyHandle, e.playerHandle
	e.roomHandle, e.historyHandle, e.playerHandle = nil, nil, nil
	e.session = nil
	e.mu.Unlock()

	e.channels.Close(room)
	e.channels.Close(history)
	e.channels.Close(player)
	e.corr.Stop()
	logger.Default.Info("sync engine stopped")
}

// authToken returns the session token, or a structured error when there is no
// usable session. The expiry check avoids sending requests that are going to
// bounce.
func (e *Engine) authToken() (string, error) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return "", apperr.New(apperr.KindAuth, "no_session", "not logged in")
	}
	if session.IsTokenExpired() {
		return "", apperr.New(apperr.KindAuth, "auth_failed", "session token expired")
	}
	return session.Token, nil
}

// RequestOTP asks the backend to text a login code to the phone.
func (e *Engine) RequestOTP(ctx context.Context, phone string) requests.State[bool] {
	return e.OTPSend.Run(ctx, func(ctx context.Context) (bool, error) {
		if err := e.backend.RequestOTP(ctx, phone); err != nil {
			return false, err
		}
		return true, nil
	})
}

// LoginWithOTP verifies the code, installs the session and swaps the per user
// subscription over to the new identity. Any state belonging to a previously
// logged in user is cleared before the new user's state can arrive.
func (e *Engine) LoginWithOTP(ctx context.Context, phone, code string) requests.State[models.Session] {
	return e.Login.Run(ctx, func(ctx context.Context) (models.Session, error) {
		session, wallet, err := e.backend.VerifyOTP(ctx, phone, code)
		if err != nil {
			return models.Session{}, err
		}
		if err := e.installSession(ctx, session, wallet); err != nil {
			return models.Session{}, err
		}
		return *session, nil
	})
}

func (e *Engine) installSession(ctx context.Context, session *models.Session, wallet *models.WalletSnapshot) error {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	old := e.playerHandle
	e.playerHandle = nil
	e.session = session
	e.mu.Unlock()

	// The old user's subscription must be gone before the new user's state is
	// seeded; a stale handle must never deliver into the new user's view.
	e.channels.Close(old)
	for _, tx := range e.corr.Pending() {
		e.corr.Drop(tx.CorrelationID)
	}
	e.store.ResetUser()
	if wallet != nil {
		e.store.ApplyWallet(*wallet)
	}

	handle, err := e.channels.Open(ctx, channels.PlayerTopic(session.PlayerID), e.playerHandler(gen))
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, "subscribe_failed", err)
	}
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		e.channels.Close(handle)
		return apperr.New(apperr.KindUnknown, "superseded", "login superseded")
	}
	e.playerHandle = handle
	e.mu.Unlock()
	logger.Default.Infof("session installed for player %s", session.PlayerID)
	return nil
}

// Logout drops the session, the per user subscription and all user scoped
// state.
func (e *Engine) Logout() {
	e.mu.Lock()
	e.gen++
	old := e.playerHandle
	e.playerHandle = nil
	e.session = nil
	e.mu.Unlock()

	e.channels.Close(old)
	for _, tx := range e.corr.Pending() {
		e.corr.Drop(tx.CorrelationID)
	}
	e.store.ResetUser()
}

// Pull operations. Each one funnels its payload into the store on success,
// guarded by the generation captured before the fetch went out.

func (e *Engine) FetchCurrentRound(ctx context.Context) requests.State[models.Round] {
	gen := e.currentGen()
	return e.RoundFetch.Run(ctx, func(ctx context.Context) (models.Round, error) {
		round, err := e.backend.GetCurrentRound(ctx, e.tokenOrEmpty())
		if err != nil {
			return models.Round{}, err
		}
		if e.genValid(gen) {
			e.store.ApplyRound(*round)
		}
		return *round, nil
	})
}

func (e *Engine) FetchJackpot(ctx context.Context) requests.State[float64] {
	gen := e.currentGen()
	return e.JackpotFetch.Run(ctx, func(ctx context.Context) (float64, error) {
		amount, err := e.backend.GetJackpot(ctx, e.tokenOrEmpty())
		if err != nil {
			return 0, err
		}
		if e.genValid(gen) {
			e.store.ApplyJackpot(amount)
		}
		return amount, nil
	})
}

func (e *Engine) FetchWallet(ctx context.Context) requests.State[models.WalletSnapshot] {
	gen := e.currentGen()
	return e.WalletFetch.Run(ctx, func(ctx context.Context) (models.WalletSnapshot, error) {
		token, err := e.authToken()
		if err != nil {
			return models.WalletSnapshot{}, err
		}
		wallet, err := e.backend.GetWallet(ctx, token)
		if err != nil {
			return models.WalletSnapshot{}, err
		}
		if e.genValid(gen) {
			e.store.ApplyWallet(*wallet)
		}
		return *wallet, nil
	})
}

func (e *Engine) FetchBetHistory(ctx context.Context, page int) requests.State[requests.Page[models.Bet]] {
	gen := e.currentGen()
	return e.BetHistory.Run(ctx, func(ctx context.Context) (requests.Page[models.Bet], error) {
		token, err := e.authToken()
		if err != nil {
			return requests.Page[models.Bet]{}, err
		}
		p, err := e.backend.GetBetHistory(ctx, token, page)
		if err != nil {
			return requests.Page[models.Bet]{}, err
		}
		if e.genValid(gen) {
			e.store.ApplyBets(p.Items)
		}
		return p, nil
	})
}

func (e *Engine) FetchDepositHistory(ctx context.Context, page int) requests.State[requests.Page[models.TransactionRequest]] {
	return e.fetchTransactionPage(ctx, e.DepositHistory, e.backend.GetDepositHistory, page)
}

func (e *Engine) FetchWithdrawalHistory(ctx context.Context, page int) requests.State[requests.Page[models.TransactionRequest]] {
	return e.fetchTransactionPage(ctx, e.WithdrawalHistory, e.backend.GetWithdrawalHistory, page)
}

func (e *Engine) fetchTransactionPage(
	ctx context.Context,
	tracker *requests.PageTracker[models.TransactionRequest],
	fetch func(context.Context, string, int) (requests.Page[models.TransactionRequest], error),
	page int,
) requests.State[requests.Page[models.TransactionRequest]] {
	gen := e.currentGen()
	return tracker.Run(ctx, func(ctx context.Context) (requests.Page[models.TransactionRequest], error) {
		token, err := e.authToken()
		if err != nil {
			return requests.Page[models.TransactionRequest]{}, err
		}
		p, err := fetch(ctx, token, page)
		if err != nil {
			return requests.Page[models.TransactionRequest]{}, err
		}
		if e.genValid(gen) {
			e.store.ApplyTransactions(p.Items)
		}
		return p, nil
	})
}

// PlaceBet wagers on the currently open round. The returned bet carries an
// unset result; the betResult push event completes it.
func (e *Engine) PlaceBet(ctx context.Context, side string, amount float64) requests.State[models.Bet] {
	gen := e.currentGen()
	return e.BetSubmit.Run(ctx, func(ctx context.Context) (models.Bet, error) {
		token, err := e.authToken()
		if err != nil {
			return models.Bet{}, err
		}
		round, ok := e.store.CurrentRound()
		if !ok || round.State != models.RoundOpen {
			return models.Bet{}, apperr.New(apperr.KindValidation, "round_closed", "no open round to bet on")
		}
		bet, err := e.backend.PlaceBet(ctx, token, round.ID, side, amount)
		if err != nil {
			return models.Bet{}, err
		}
		if e.genValid(gen) {
			e.store.ApplyBet(*bet)
		}
		return *bet, nil
	})
}

// Deposit submits an STK push deposit. The fulfilled tracker value is the
// submitted placeholder; settlement lands later through the per user topic.
func (e *Engine) Deposit(ctx context.Context, amount float64, phone string) requests.State[models.TransactionRequest] {
	return e.submitTransaction(ctx, e.DepositSubmit, models.TxDeposit, amount, phone)
}

// Withdraw submits a payout request, same deferred settlement semantics as
// Deposit.
func (e *Engine) Withdraw(ctx context.Context, amount float64, phone string) requests.State[models.TransactionRequest] {
	return e.submitTransaction(ctx, e.WithdrawalSubmit, models.TxWithdrawal, amount, phone)
}

func (e *Engine) submitTransaction(
	ctx context.Context,
	tracker *requests.Tracker[models.TransactionRequest],
	kind string,
	amount float64,
	phone string,
) requests.State[models.TransactionRequest] {
	gen := e.currentGen()
	return tracker.Run(ctx, func(ctx context.Context) (models.TransactionRequest, error) {
		token, err := e.authToken()
		if err != nil {
			return models.TransactionRequest{}, err
		}
		// The correlation id has to exist before the request goes out, so a
		// settlement racing the acknowledgment still matches.
		tx := e.corr.Track(kind, amount, phone)

		var id string
		if kind == models.TxWithdrawal {
			id, err = e.backend.InitiateWithdrawal(ctx, token, tx)
		} else {
			id, err = e.backend.InitiateDeposit(ctx, token, tx)
		}
		if err != nil {
			e.corr.Drop(tx.CorrelationID)
			return models.TransactionRequest{}, err
		}
		if !e.genValid(gen) {
			e.corr.Drop(tx.CorrelationID)
			return models.TransactionRequest{}, apperr.New(apperr.KindUnknown, "superseded", "session changed during submit")
		}
		if confirmed, ok := e.corr.Confirm(tx.CorrelationID, id); ok {
			tx = confirmed
		} else {
			// The settlement beat the acknowledgment; the ledger already has
			// the terminal entry.
			tx.ID = id
		}
		return tx, nil
	})
}

func (e *Engine) tokenOrEmpty() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.Token
}

// roomHandler folds room wide push events into the store. Round and jackpot
// state is room scoped, so the guard only trips after Stop.
func (e *Engine) roomHandler(gen uint64) channels.Handler {
	return func(topic string, payload []byte) {
		if !e.genValid(gen) {
			return
		}
		ev, err := messages.DecodeRawEvent(payload)
		if err != nil {
			logger.Default.Warnf("dropping event on %s: %v", topic, err)
			return
		}
		switch ev.Event {
		case messages.EvRoundUpdate:
			round, err := messages.DecodeValue[models.Round](ev.Value)
			if err != nil {
				logger.Default.Warnf("bad roundUpdate payload: %v", err)
				return
			}
			e.store.ApplyRound(round)
		case messages.EvRoundResult, messages.EvRoundHistoryUpdate:
			round, err := messages.DecodeValue[models.Round](ev.Value)
			if err != nil {
				logger.Default.Warnf("bad %s payload: %v", ev.Event, err)
				return
			}
			e.store.ApplyRoundResolved(round)
		case messages.EvBetResult, messages.EvIndividualBet:
			bet, err := messages.DecodeValue[models.Bet](ev.Value)
			if err != nil {
				logger.Default.Warnf("bad %s payload: %v", ev.Event, err)
				return
			}
			e.store.ApplyBet(bet)
		case messages.EvJackpotUpdate:
			value, err := messages.DecodeValue[messages.JackpotValue](ev.Value)
			if err != nil {
				logger.Default.Warnf("bad jackpotUpdate payload: %v", err)
				return
			}
			e.store.ApplyJackpot(value.Amount)
		default:
			logger.Default.Debugf("ignoring %s on %s", ev.Event, topic)
		}
	}
}

// playerHandler folds per user push events into the store. The generation is
// the one current when this user's subscription was opened, so events for a
// previous user can never land after a switch.
func (e *Engine) playerHandler(gen uint64) channels.Handler {
	return func(topic string, payload []byte) {
		if !e.genValid(gen) {
			return
		}
		ev, err := messages.DecodeRawEvent(payload)
		if err != nil {
			logger.Default.Warnf("dropping event on %s: %v", topic, err)
			return
		}
		switch ev.Event {
		case messages.EvBalanceUpdate:
			value, err := messages.DecodeValue[messages.BalanceValue](ev.Value)
			if err != nil {
				logger.Default.Warnf("bad balance_update payload: %v", err)
				return
			}
			e.store.ApplyBalance(value.Balance, value.Currency)
		case messages.EvDepositStatus:
			e.applySettlement(ev.Value, models.TxDeposit)
		case messages.EvWithdrawalStatus:
			e.applySettlement(ev.Value, models.TxWithdrawal)
		case messages.EvBetResult, messages.EvIndividualBet:
			bet, err := messages.DecodeValue[models.Bet](ev.Value)
			if err != nil {
				logger.Default.Warnf("bad %s payload: %v", ev.Event, err)
				return
			}
			e.store.ApplyBet(bet)
		default:
			logger.Default.Debugf("ignoring %s on %s", ev.Event, topic)
		}
	}
}

func (e *Engine) applySettlement(raw []byte, kind string) {
	value, err := messages.DecodeValue[messages.SettlementValue](raw)
	if err != nil {
		logger.Default.Warnf("bad settlement payload: %v", err)
		return
	}
	tx, ok := e.corr.Resolve(value.CorrelationID, value.TransactionID, value.Status, value.ReceiptNumber)
	if !ok {
		// No placeholder: submitted from another device, or the placeholder
		// already expired. Still recorded, dropping settlements silently is
		// not acceptable.
		tx = models.TransactionRequest{
			ID:            value.TransactionID,
			CorrelationID: value.CorrelationID,
			Status:        value.Status,
			ReceiptNumber: value.ReceiptNumber,
			CreatedAt:     time.Now(),
		}
	}
	tx.Kind = kind
	e.store.ApplyTransaction(tx)
}
