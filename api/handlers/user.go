package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/geo"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/models"
)

// User exists for dependency injection purposes
type User struct {
	DB     databases.UserDatabase
	NDB    databases.NotificationDatabase
	Ledger *ledger.Ledger
	Now    func() time.Time
}

type registerRequest struct {
	Name           string           `json:"name" validate:"required,max=100"`
	Email          string           `json:"email" validate:"required,email"`
	Password       string           `json:"password" validate:"required,min=6,max=72"`
	Role           string           `json:"role" validate:"required,oneof=user ngo hospital ambulance admin"`
	Phone          string           `json:"phone" validate:"max=20"`
	Location       *models.Location `json:"location"`
	OrgName        string           `json:"orgName" validate:"max=200"`
	RegNumber      string           `json:"regNumber" validate:"max=100"`
	Address        string           `json:"address" validate:"max=300"`
	Capacity       int              `json:"capacity" validate:"gte=0"`
	LinkedHospital string           `json:"linkedHospital"`
	VehicleNumber  string           `json:"vehicleNumber" validate:"max=20"`
}

type userResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *models.User `json:"user"`
}

// RegisterHandler creates a citizen, org, facility or carrier account.
// Accounts other than citizens wait for admin approval.
func (u User) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		api.WriteError(w, "invalid registration", err)
		return
	}
	role, _ := models.ParseRole(req.Role)
	if !role.Registrable() {
		config.ErrorStatus("Admin accounts cannot be self-registered.", http.StatusForbidden, w, nil)
		return
	}
	if req.Location != nil && !geo.Valid(*req.Location) {
		config.ErrorStatus("location is not a valid coordinate", http.StatusBadRequest, w, nil)
		return
	}

	var linked *string
	if role == models.RoleCarrier {
		if req.LinkedHospital == "" {
			config.ErrorStatus("linkedHospital is required for ambulance accounts", http.StatusBadRequest, w, nil)
			return
		}
		hospital, err := u.DB.FindByID(r.Context(), req.LinkedHospital)
		if err != nil || hospital.Details.Role != models.RoleFacility {
			config.ErrorStatus("linkedHospital does not reference a hospital", http.StatusBadRequest, w, err)
			return
		}
		linked = &hospital.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}
	now := u.Now().UTC()
	user := &models.User{
		ID: primitive.NewObjectID().Hex(),
		Details: models.UserDetails{
			Name:           strings.TrimSpace(req.Name),
			Email:          strings.TrimSpace(req.Email),
			Password:       string(hash),
			Role:           role,
			Approved:       !role.RequiresApproval(),
			Phone:          req.Phone,
			HomeLocation:   req.Location,
			OrgName:        req.OrgName,
			RegNumber:      req.RegNumber,
			Address:        req.Address,
			Capacity:       req.Capacity,
			LinkedFacility: linked,
			VehicleNumber:  req.VehicleNumber,
			Available:      role == models.RoleCarrier,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if err := u.DB.Insert(r.Context(), user); err != nil {
		if errors.Is(err, databases.ErrDuplicate) {
			config.ErrorStatus("An account with this email already exists.", http.StatusBadRequest, w, nil)
			return
		}
		config.ErrorStatus("failed to register user", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("new user registered", "userId", user.ID, "role", role)

	msg := "Registration successful!"
	if role.RequiresApproval() {
		msg = "Registration successful! Awaiting admin approval."
	}
	api.WriteJSON(w, http.StatusCreated, userResponse{Success: true, Message: msg, User: user})
}

// ProfileHandler returns the authenticated user
func (u User) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	user, err := u.DB.FindByID(r.Context(), actor.ID)
	if err != nil {
		writeStoreError(w, "User not found.", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}

// UpdateProfileHandler changes the mutable profile fields of the authenticated user
func (u User) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	var req models.ProfileUpdate
	if err := decode(w, r, &req); err != nil {
		api.WriteError(w, "invalid profile", err)
		return
	}
	if req.HomeLocation != nil && !geo.Valid(*req.HomeLocation) {
		config.ErrorStatus("location is not a valid coordinate", http.StatusBadRequest, w, nil)
		return
	}
	user, err := u.DB.UpdateProfile(r.Context(), actor.ID, req)
	if err != nil {
		writeStoreError(w, "User not found.", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, userResponse{Success: true, Message: "Profile updated successfully.", User: user})
}

// WalletHandler returns the balance and recent ledger entries of a citizen
func (u User) WalletHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	balance, err := u.Ledger.Balance(r.Context(), actor.ID)
	if err != nil {
		api.WriteError(w, "failed to load wallet", err)
		return
	}
	history, err := u.Ledger.History(r.Context(), actor.ID)
	if err != nil {
		api.WriteError(w, "failed to load wallet", err)
		return
	}
	if history == nil {
		history = []models.LedgerEntry{}
	}
	api.WriteJSON(w, http.StatusOK, models.WalletResponse{Success: true, WalletBalance: balance, Transactions: history})
}

type notificationsResponse struct {
	Success       bool                  `json:"success"`
	Count         int                   `json:"count"`
	Unread        int                   `json:"unread"`
	Notifications []models.Notification `json:"notifications"`
}

// NotificationsHandler lists the in-app notifications of the authenticated user
func (u User) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	ns, err := u.NDB.FindByRecipient(r.Context(), actor.ID, notificationLimit)
	if err != nil {
		config.ErrorStatus("failed to get notifications", http.StatusInternalServerError, w, err)
		return
	}
	unread := 0
	for _, n := range ns {
		if !n.Read {
			unread++
		}
	}
	if ns == nil {
		ns = []models.Notification{}
	}
	api.WriteJSON(w, http.StatusOK, notificationsResponse{Success: true, Count: len(ns), Unread: unread, Notifications: ns})
}

// MarkNotificationReadHandler marks one notification of the authenticated user as read
func (u User) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	id := mux.Vars(r)["id"]
	if err := u.NDB.MarkRead(r.Context(), id, actor.ID); err != nil {
		writeStoreError(w, "Notification not found.", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

const notificationLimit = 50

// writeStoreError maps store sentinels that reach a handler directly
func writeStoreError(w http.ResponseWriter, notFound string, err error) {
	if errors.Is(err, databases.ErrNotFound) {
		config.ErrorStatus(notFound, http.StatusNotFound, w, nil)
		return
	}
	api.WriteError(w, "request failed", err)
}
