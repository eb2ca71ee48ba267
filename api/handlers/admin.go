package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
	"github.com/pawsaarthi/rescue-api/payment"
)

// Admin case listing page sizes
const (
	adminPageSize    = 50
	adminMaxPageSize = 200
)

// Admin exists for dependency injection purposes
type Admin struct {
	DB       databases.UserDatabase
	RDB      databases.RescueDatabase
	Engine   *lifecycle.Engine
	Ledger   *ledger.Ledger
	Notifier payment.Notifier
}

type usersResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Users   []models.User `json:"users"`
}

// PendingApprovalsHandler lists org, facility and carrier accounts awaiting approval
func (h Admin) PendingApprovalsHandler(w http.ResponseWriter, r *http.Request) {
	approved := false
	users, err := h.DB.Find(r.Context(), databases.UserQuery{Approved: &approved})
	if err != nil {
		config.ErrorStatus("failed to get pending approvals", http.StatusInternalServerError, w, err)
		return
	}
	pending := []models.User{}
	for _, u := range users {
		if u.Details.Role.RequiresApproval() {
			pending = append(pending, u)
		}
	}
	api.WriteJSON(w, http.StatusOK, usersResponse{Success: true, Count: len(pending), Users: pending})
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

// ApproveUserHandler grants or revokes approval. An empty body approves.
func (h Admin) ApproveUserHandler(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			api.WriteError(w, "invalid approval", err)
			return
		}
	}
	approved := req.Approved == nil || *req.Approved

	userID := mux.Vars(r)["userId"]
	target, err := h.DB.FindByID(r.Context(), userID)
	if err != nil {
		writeStoreError(w, "User not found.", err)
		return
	}
	if !target.Details.Role.RequiresApproval() {
		config.ErrorStatus("Only NGO, hospital, and ambulance accounts require approval.", http.StatusBadRequest, w, nil)
		return
	}
	user, err := h.DB.SetApproved(r.Context(), userID, approved)
	if err != nil {
		writeStoreError(w, "User not found.", err)
		return
	}

	actor, _ := api.ActorFrom(r.Context())
	zap.S().Infow("user approval changed", "userId", userID, "approved", approved, "admin", actor.ID)
	msg := "User " + user.Details.Email + " has been approved."
	if approved {
		h.Notifier.Notify(r.Context(), user.ID, models.NotificationApproval, "Account approved",
			"Your "+user.Details.Role.String()+" account has been approved. You can now respond to rescues.")
	} else {
		msg = "User " + user.Details.Email + " approval has been revoked."
	}
	api.WriteJSON(w, http.StatusOK, userResponse{Success: true, Message: msg, User: user})
}

type rescuePageResponse struct {
	Success    bool                `json:"success"`
	Count      int                 `json:"count"`
	Total      int64               `json:"total"`
	Page       int64               `json:"page"`
	Limit      int64               `json:"limit"`
	TotalPages int64               `json:"totalPages"`
	Cases      []models.RescueCase `json:"cases"`
}

// RescuesHandler pages through every case for the admin panel, newest
// first. ?status= filters by a comma separated status list, ?page= and
// ?limit= select the window.
func (h Admin) RescuesHandler(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		config.ErrorStatus("page must be a positive number", http.StatusBadRequest, w, err)
		return
	}
	limit, err := queryInt(r, "limit", adminPageSize)
	if err != nil || limit < 1 || limit > adminMaxPageSize {
		config.ErrorStatus("limit must be between 1 and "+strconv.Itoa(adminMaxPageSize), http.StatusBadRequest, w, err)
		return
	}

	q := databases.CaseQuery{Sort: databases.SortCreatedDesc, Limit: limit, Page: page}
	if s := r.URL.Query().Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			status := models.CaseStatus(strings.TrimSpace(part))
			if !status.Valid() {
				config.ErrorStatus("unknown status "+string(status), http.StatusBadRequest, w, nil)
				return
			}
			q.Statuses = append(q.Statuses, status)
		}
	}
	total, err := h.RDB.Count(r.Context(), q)
	if err != nil {
		config.ErrorStatus("failed to count rescue requests", http.StatusInternalServerError, w, err)
		return
	}
	cases, err := h.RDB.Find(r.Context(), q)
	if err != nil {
		config.ErrorStatus("failed to get rescue requests", http.StatusInternalServerError, w, err)
		return
	}
	if cases == nil {
		cases = []models.RescueCase{}
	}
	api.WriteJSON(w, http.StatusOK, rescuePageResponse{
		Success:    true,
		Count:      len(cases),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
		Cases:      cases,
	})
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

type overrideRequest struct {
	Status     *models.CaseStatus `json:"status"`
	AdminNotes *string            `json:"adminNotes" validate:"omitempty,max=1000"`
}

// OverrideHandler sets any status or note on a case without moving money
func (h Admin) OverrideHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	var req overrideRequest
	if err := decode(w, r, &req); err != nil {
		api.WriteError(w, "invalid override", err)
		return
	}
	c, err := h.Engine.Override(r.Context(), mux.Vars(r)["id"], actor, req.Status, req.AdminNotes)
	if err != nil {
		api.WriteError(w, "failed to override rescue request", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rescueResponse{Success: true, Message: "Rescue status updated to '" + string(c.Status) + "'.", Rescue: c})
}

// DeleteRescueHandler removes a case
func (h Admin) DeleteRescueHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	if err := h.Engine.Delete(r.Context(), mux.Vars(r)["id"], actor); err != nil {
		api.WriteError(w, "failed to delete rescue request", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Rescue request deleted."})
}

// ReconcileRefundsHandler retries outstanding deposit refunds
func (h Admin) ReconcileRefundsHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	n, err := h.Engine.ReconcileRefunds(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to reconcile refunds", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "repaired": n})
}

// VerifyWalletHandler compares a user's cached balance against their ledger
func (h Admin) VerifyWalletHandler(w http.ResponseWriter, r *http.Request) {
	audit, err := h.Ledger.Verify(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		api.WriteError(w, "failed to verify wallet", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "audit": audit})
}

// SeedAdmin creates the admin account from configuration when it does not
// exist yet
func SeedAdmin(ctx context.Context, users databases.UserDatabase, email, password string, now time.Time) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, databases.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		ID: primitive.NewObjectID().Hex(),
		Details: models.UserDetails{
			Name:      "Administrator",
			Email:     email,
			Password:  string(hash),
			Role:      models.RoleAdmin,
			Approved:  true,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		},
	}
	if err := users.Insert(ctx, admin); err != nil && !errors.Is(err, databases.ErrDuplicate) {
		return err
	}
	zap.S().Infow("admin account seeded", "email", email)
	return nil
}
