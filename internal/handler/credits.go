package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/middleware"
	"github.com/kwizz/kwizz-go/internal/model"
)

type CreditService interface {
	CheckBalance(ctx context.Context, hostID string) (model.Balance, error)
	PurchaseLot(ctx context.Context, hostID string, size int) (*model.CreditLot, error)
}

type CreditHandler struct {
	ledger CreditService
}

func NewCreditHandler(ledger CreditService) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// Routes mounts under /v1/credits behind host auth.
func (h *CreditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Balance)
	r.Post("/lots", h.PurchaseLot)
	return r
}

// GET /v1/credits
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	host := middleware.GetHost(r.Context())
	if host == nil {
		writeError(w, r, apperrors.Unauthorized("Host authentication required"))
		return
	}

	balance, err := h.ledger.CheckBalance(r.Context(), host.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

type purchaseLotRequest struct {
	Size int `json:"size"`
}

// POST /v1/credits/lots
func (h *CreditHandler) PurchaseLot(w http.ResponseWriter, r *http.Request) {
	host := middleware.GetHost(r.Context())
	if host == nil {
		writeError(w, r, apperrors.Unauthorized("Host authentication required"))
		return
	}

	var req purchaseLotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	lot, err := h.ledger.PurchaseLot(r.Context(), host.ID, req.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}
