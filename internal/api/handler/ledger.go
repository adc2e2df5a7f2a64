// internal/api/handler/ledger.go
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"campus-coin/internal/api/types"
	"campus-coin/internal/domain"
	"campus-coin/internal/service"
	"campus-coin/internal/util" // For custom errors
)

// DefaultTimeout bounds every request, lock waits included.
const DefaultTimeout = 15 * time.Second

const maxBodyBytes = 1 << 16

// LedgerHandler handles HTTP requests related to ledger operations.
type LedgerHandler struct {
	service service.LedgerService
	logger  *slog.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc service.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: svc,
		logger:  logger,
	}
}

// Helper function to send JSON responses.
func (h *LedgerHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h *LedgerHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "Account not found"
	case util.IsError(err, util.ErrSelfTransfer):
		statusCode = http.StatusBadRequest
		message = "Cannot transfer to the same account"
	case util.IsError(err, util.ErrInvalidAmount),
		util.IsError(err, util.ErrInvalidAccountKey),
		util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = err.Error() // Use the error message directly for invalid input
	case util.IsError(err, util.ErrInsufficientFunds):
		statusCode = http.StatusPaymentRequired // 402 Payment Required
		message = "Insufficient funds"
	case util.IsError(err, util.ErrStorageFault):
		statusCode = http.StatusServiceUnavailable
		message = "Ledger storage unavailable"
		h.logger.Error("Storage fault", "error", err)
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, types.ErrorResponse{Error: message, Code: util.ErrorCode(err)})
}

// decode reads a JSON body. Amount validation errors keep their kind; anything
// else is reported as invalid input.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if util.IsError(err, util.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("malformed request body: %w", util.ErrInvalidInput)
	}
	return nil
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Nickname string `json:"nickname"`
}

// Login opens (or creates) the caller's account.
// POST /login
func (h *LedgerHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}
	key, err := domain.ParseAccountKey(req.Nickname)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	acc, err := h.service.Login(r.Context(), key)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.LoginResponse{
		Success:  true,
		Nickname: acc.Key.String(),
		Balance:  acc.Balance,
	})
}

// GetBalance returns one account's balance.
// GET /balance/{nickname}
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseAccountKey(chi.URLParam(r, "nickname"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	acc, err := h.service.GetBalance(r.Context(), key)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.BalanceResponse{Balance: acc.Balance})
}

// QuestRequest represents the request body for a quest reward.
type QuestRequest struct {
	Nickname string        `json:"nickname"`
	Amount   domain.Amount `json:"amount"` // JSON number or numeric string
}

// CreditQuestReward credits a quest reward.
// POST /quest
func (h *LedgerHandler) CreditQuestReward(w http.ResponseWriter, r *http.Request) {
	var req QuestRequest
	if err := decode(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}
	key, err := domain.ParseAccountKey(req.Nickname)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	acc, err := h.service.CreditQuestReward(r.Context(), domain.CreditRequest{Account: key, Amount: req.Amount})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.BalanceResponse{Balance: acc.Balance})
}

// SendRequest represents the request body for a transfer.
type SendRequest struct {
	From   string        `json:"from"`
	To     string        `json:"to"`
	Amount domain.Amount `json:"amount"`
}

// Transfer moves coins between two accounts.
// POST /send
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}
	from, err := domain.ParseAccountKey(req.From)
	if err != nil {
		h.respondWithError(w, fmt.Errorf("sender: %w", err))
		return
	}
	to, err := domain.ParseAccountKey(req.To)
	if err != nil {
		h.respondWithError(w, fmt.Errorf("receiver: %w", err))
		return
	}

	sender, receiver, err := h.service.Transfer(r.Context(), domain.TransferRequest{From: from, To: to, Amount: req.Amount})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.TransferResponse{
		Success:         true,
		Balance:         sender.Balance,
		ReceiverBalance: receiver.Balance,
	})
}

// GetRanking lists every account, richest first.
// GET /ranking
func (h *LedgerHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.RankAccounts(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.NewRanking(accounts))
}

// GetHistory lists one account's history, newest first.
// GET /history/{nickname}
func (h *LedgerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseAccountKey(chi.URLParam(r, "nickname"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	entries, err := h.service.HistoryFor(r.Context(), key)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.NewHistory(entries))
}
