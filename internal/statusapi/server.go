// Package statusapi exposes the reconciled state as read-only JSON over a
// local HTTP port. The rendering layer consumes these projections; nothing
// here can mutate the store.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Lavizord/coinflip-client/internal/engine"
	"github.com/Lavizord/coinflip-client/internal/models"
)

type Server struct {
	engine *engine.Engine
}

func New(e *engine.Engine) *Server {
	return &Server{engine: e}
}

// Router builds the read-only route table, CORS-enabled for a local frontend.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/state/round", s.roundHandler).Methods("GET")
	r.HandleFunc("/state/history", s.historyHandler).Methods("GET")
	r.HandleFunc("/state/wallet", s.walletHandler).Methods("GET")
	r.HandleFunc("/state/jackpot", s.jackpotHandler).Methods("GET")
	r.HandleFunc("/state/bets", s.betsHandler).Methods("GET")
	r.HandleFunc("/state/transactions", s.transactionsHandler).Methods("GET")

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) roundHandler(w http.ResponseWriter, r *http.Request) {
	round, ok := s.engine.Store().CurrentRound()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"round": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"round": round})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"rounds": s.engine.Store().RoundHistory(),
	})
}

func (s *Server) walletHandler(w http.ResponseWriter, r *http.Request) {
	wallet, known := s.engine.Store().Wallet()
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet": wallet,
		"known":  known,
	})
}

func (s *Server) jackpotHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"jackpot": s.engine.Store().Jackpot(),
	})
}

func (s *Server) betsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"bets": s.engine.Store().Bets(),
	})
}

func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	respondJSON(w, http.StatusOK, map[string]any{
		"deposits":    store.Deposits(),
		"withdrawals": store.Withdrawals(),
		"pending":     orEmpty(s.engine.PendingTransactions()),
	})
}

func orEmpty(txs []models.TransactionRequest) []models.TransactionRequest {
	if txs == nil {
		return []models.TransactionRequest{}
	}
	return txs
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
