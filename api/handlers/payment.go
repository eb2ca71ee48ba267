package handlers

import (
	"io"
	"net/http"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/payment"
)

// maxWebhookBytes bounds a Stripe webhook body
const maxWebhookBytes = 64 << 10

// Payment exists for dependency injection purposes
type Payment struct {
	Service *payment.Service
}

type topUpRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// CreateOrderHandler opens a wallet top-up payment for a citizen
func (p Payment) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	var req topUpRequest
	if err := decode(w, r, &req); err != nil {
		api.WriteError(w, "invalid top-up request", err)
		return
	}
	order, err := p.Service.CreateTopUp(r.Context(), actor, req.Amount)
	if err != nil {
		api.WriteError(w, "failed to create payment order", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, order)
}

// WebhookHandler applies a signed Stripe event
func (p Payment) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		config.ErrorStatus("failed to read webhook body", http.StatusBadRequest, w, err)
		return
	}
	entry, err := p.Service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		api.WriteError(w, "failed to process webhook", err)
		return
	}
	resp := map[string]interface{}{"received": true}
	if entry != nil {
		resp["walletBalance"] = entry.ResultingBalance
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
