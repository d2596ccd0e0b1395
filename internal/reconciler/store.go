// Package reconciler folds every inbound item, fetched or pushed, into one
// consistent in-memory view of the betting room: round history, the user's
// bet ledger, the deposit/withdrawal ledgers, and the balance and jackpot
// scalars. It is the single funnel both the pull and the push path go
// through; nothing else mutates these collections.
package reconciler

import (
	"sort"
	"sync"

	"github.com/Lavizord/coinflip-client/internal/models"
)

const defaultCap = 50

type Config struct {
	RoundHistoryCap int
	LedgerCap       int
}

// Store owns the reconciled state. Every Apply method is one synchronous merge
// step under the store mutex, so no caller can observe a half applied
// transition. Projections hand out copies, never the backing slices.
type Store struct {
	mu  sync.Mutex
	cfg Config

	currentRound *models.Round
	roundHistory []models.Round // most recent first
	bets         []models.Bet   // most recent first
	deposits     []models.TransactionRequest
	withdrawals  []models.TransactionRequest
	wallet       models.WalletSnapshot
	walletKnown  bool
	jackpot      float64
}

func NewStore(cfg Config) *Store {
	if cfg.RoundHistoryCap <= 0 {
		cfg.RoundHistoryCap = defaultCap
	}
	if cfg.LedgerCap <= 0 {
		cfg.LedgerCap = defaultCap
	}
	return &Store{cfg: cfg}
}

// ApplyRound takes a round snapshot from a fetch or a roundUpdate event. The
// current round scalar always takes the incoming value; a snapshot that is
// already resolved is also folded into history.
func (s *Store) ApplyRound(r models.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.currentRound = &cp
	if r.IsResolved() {
		s.mergeResolvedRound(r)
	}
}

// ApplyRoundResolved takes a roundResult or roundHistoryUpdate event. If it
// resolves the round currently on display, the scalar is updated in the same
// step so a render between the two cannot see an open round with a resolved
// twin in history.
func (s *Store) ApplyRoundResolved(r models.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.State = models.RoundResolved
	if s.currentRound != nil && s.currentRound.ID == r.ID {
		cp := r
		s.currentRound = &cp
	}
	s.mergeResolvedRound(r)
}

// mergeResolvedRound inserts into round history, deduplicated by identity.
// Resolved rounds are immutable, so a redelivery is ignored outright. Callers
// hold s.mu.
func (s *Store) mergeResolvedRound(r models.Round) {
	for _, existing := range s.roundHistory {
		if existing.ID == r.ID {
			return
		}
	}
	s.roundHistory = append([]models.Round{r}, s.roundHistory...)
	// The transport gives no ordering across reconnects; the server sequence
	// number is the tie break when present.
	sort.SliceStable(s.roundHistory, func(i, j int) bool {
		return s.roundHistory[i].RoundNumber > s.roundHistory[j].RoundNumber
	})
	if len(s.roundHistory) > s.cfg.RoundHistoryCap {
		s.roundHistory = s.roundHistory[:s.cfg.RoundHistoryCap]
	}
}

// ApplyBet merges one bet from either path. Identity wins over origin: a bet
// first seen through a page fetch and later completed by a betResult event
// ends up as one entry carrying the result. An event for a bet not known
// locally yet is inserted net new rather than dropped, push delivery is the
// only resolution notice most sessions get.
func (s *Store) ApplyBet(b models.Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeBet(b)
}

// ApplyBets merges one fetched page of the bet ledger.
func (s *Store) ApplyBets(bets []models.Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bets {
		s.mergeBet(b)
	}
}

func (s *Store) mergeBet(b models.Bet) {
	for i, existing := range s.bets {
		if existing.ID != b.ID {
			continue
		}
		// Replace in place only when the incoming copy carries news: a page
		// refetched after a push already landed must not regress the result.
		if b.HasResult() && !existing.HasResult() {
			if b.CreatedAt.IsZero() {
				b.CreatedAt = existing.CreatedAt
			}
			s.bets[i] = b
		}
		return
	}
	s.bets = append([]models.Bet{b}, s.bets...)
	if len(s.bets) > s.cfg.LedgerCap {
		s.bets = s.bets[:s.cfg.LedgerCap]
	}
}

// ApplyBalance overwrites the balance scalar unconditionally. The server sends
// authoritative snapshots, not deltas, so there is nothing to merge.
func (s *Store) ApplyBalance(balance float64, currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet.Balance = balance
	if currency != "" {
		s.wallet.Currency = currency
	}
	s.walletKnown = true
}

func (s *Store) ApplyWallet(w models.WalletSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = w
	s.walletKnown = true
}

// ApplyJackpot overwrites the room jackpot scalar, same discipline as the
// balance.
func (s *Store) ApplyJackpot(amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jackpot = amount
}

// ApplyTransaction merges one deposit or withdrawal into its ledger. Matching
// is by backend id first, then by correlation id for entries that never got
// one. A settled or failed copy replaces a submitted placeholder in place.
func (s *Store) ApplyTransaction(tx models.TransactionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeTransaction(tx)
}

// ApplyTransactions merges one fetched page of the deposit or withdrawal
// ledger.
func (s *Store) ApplyTransactions(txs []models.TransactionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.mergeTransaction(tx)
	}
}

func (s *Store) mergeTransaction(tx models.TransactionRequest) {
	ledger := &s.deposits
	if tx.Kind == models.TxWithdrawal {
		ledger = &s.withdrawals
	}
	for i, existing := range *ledger {
		if !sameTransaction(existing, tx) {
			continue
		}
		if transactionSupersedes(tx, existing) {
			if tx.CreatedAt.IsZero() {
				tx.CreatedAt = existing.CreatedAt
			}
			if tx.CorrelationID == "" {
				tx.CorrelationID = existing.CorrelationID
			}
			(*ledger)[i] = tx
		}
		return
	}
	*ledger = append([]models.TransactionRequest{tx}, (*ledger)...)
	if len(*ledger) > s.cfg.LedgerCap {
		*ledger = (*ledger)[:s.cfg.LedgerCap]
	}
}

func sameTransaction(a, b models.TransactionRequest) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.CorrelationID != "" && a.CorrelationID == b.CorrelationID
}

// transactionSupersedes reports whether the incoming copy carries a later
// lifecycle state than the one already stored. Terminal entries are immutable.
func transactionSupersedes(incoming, existing models.TransactionRequest) bool {
	if existing.Status == models.TxSettled || existing.Status == models.TxFailed {
		return false
	}
	return incoming.Status != existing.Status || (incoming.ID != "" && existing.ID == "")
}

// ResetUser clears everything scoped to the logged in user. Round state is
// room scoped and survives a user switch.
func (s *Store) ResetUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets = nil
	s.deposits = nil
	s.withdrawals = nil
	s.wallet = models.WalletSnapshot{}
	s.walletKnown = false
}

// Projections. All of them copy.

func (s *Store) CurrentRound() (models.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRound == nil {
		return models.Round{}, false
	}
	return *s.currentRound, true
}

func (s *Store) RoundHistory() []models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Round, len(s.roundHistory))
	copy(out, s.roundHistory)
	return out
}

func (s *Store) Bets() []models.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Bet, len(s.bets))
	copy(out, s.bets)
	return out
}

func (s *Store) Deposits() []models.TransactionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TransactionRequest, len(s.deposits))
	copy(out, s.deposits)
	return out
}

func (s *Store) Withdrawals() []models.TransactionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TransactionRequest, len(s.withdrawals))
	copy(out, s.withdrawals)
	return out
}

func (s *Store) Wallet() (models.WalletSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet, s.walletKnown
}

func (s *Store) Jackpot() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jackpot
}
