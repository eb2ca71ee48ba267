package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/media"
	"github.com/pawsaarthi/rescue-api/models"
	"github.com/pawsaarthi/rescue-api/visibility"
)

// maxUploadBytes bounds a whole multipart case report
const maxUploadBytes = 5*media.MaxImageBytes + media.MaxVideoBytes + 1<<20

// multipartMemory is the part of a multipart form held in memory
const multipartMemory = 32 << 20

// Rescue exists for dependency injection purposes
type Rescue struct {
	Engine *lifecycle.Engine
	Ledger *ledger.Ledger
	Views  *visibility.Service
	Media  media.Uploader
}

type rescueResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Rescue  *models.RescueCase `json:"rescue"`
}

type rescueListResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Cases   []models.RescueCase `json:"cases"`
}

func listResponse(cases []models.RescueCase) rescueListResponse {
	if cases == nil {
		cases = []models.RescueCase{}
	}
	return rescueListResponse{Success: true, Count: len(cases), Cases: cases}
}

// CreateRescueHandler reports a new case from a multipart form with fields
// description, lat, lng, address and up to five images plus one video under
// "media". The deposit is taken when the case is stored.
func (h Rescue) CreateRescueHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		config.ErrorStatus("invalid multipart form", http.StatusBadRequest, w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	description := strings.TrimSpace(r.FormValue("description"))
	lat, latErr := strconv.ParseFloat(r.FormValue("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.FormValue("lng"), 64)
	if description == "" || latErr != nil || lngErr != nil {
		config.ErrorStatus("Description and location (lat/lng) are required.", http.StatusBadRequest, w, nil)
		return
	}

	var files []media.File
	for _, fh := range r.MultipartForm.File["media"] {
		f, err := fh.Open()
		if err != nil {
			config.ErrorStatus("failed to read upload", http.StatusBadRequest, w, err)
			return
		}
		defer f.Close()
		files = append(files, media.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	if err := media.Validate(files); err != nil {
		api.WriteError(w, "invalid attachments", err)
		return
	}

	in := lifecycle.NewCase{
		Description: description,
		Location:    models.Location{Lat: lat, Lng: lng, Address: strings.TrimSpace(r.FormValue("address"))},
	}
	// checked again inside the engine, before any upload happens here
	if err := in.Validate(); err != nil {
		api.WriteError(w, "invalid rescue request", err)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), actor.ID)
	if err != nil {
		api.WriteError(w, "failed to load wallet", err)
		return
	}
	if balance < h.Engine.Deposit() {
		api.WriteError(w, "insufficient funds", models.Errorf(models.KindInsufficientFunds,
			"insufficient wallet balance, a deposit of %d is required to report a rescue", h.Engine.Deposit()))
		return
	}
	in.Images, in.Video = media.UploadAll(r.Context(), h.Media, files)

	c, err := h.Engine.CreateCase(r.Context(), actor, in)
	if err != nil {
		api.WriteError(w, "failed to create rescue request", err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, rescueResponse{
		Success: true,
		Message: "Rescue request submitted! Nearby NGOs have been notified.",
		Rescue:  c,
	})
}

// MyRescuesHandler lists the cases reported by the authenticated citizen
func (h Rescue) MyRescuesHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	cases, err := h.Views.ReporterCases(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get rescue requests", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, listResponse(cases))
}

// RescueByIDHandler returns one case. Citizens only see their own.
func (h Rescue) RescueByIDHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	c, err := h.Views.CaseDetail(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		api.WriteError(w, "failed to get rescue request", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rescueResponse{Success: true, Rescue: c})
}

// AcceptRescueHandler lets an org take a reported case
func (h Rescue) AcceptRescueHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	c, err := h.Engine.Accept(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		api.WriteError(w, "failed to accept rescue request", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rescueResponse{Success: true, Message: "Rescue request accepted!", Rescue: c})
}

// RejectRescueHandler records that an org will not take a case
func (h Rescue) RejectRescueHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	c, err := h.Engine.Decline(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		api.WriteError(w, "failed to reject rescue request", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rescueResponse{Success: true, Message: "Rescue request rejected.", Rescue: c})
}

type assignRequest struct {
	AmbulanceID string `json:"ambulanceId" validate:"required"`
}

// AssignAmbulanceHandler lets a facility dispatch one of its carriers
func (h Rescue) AssignAmbulanceHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	var req assignRequest
	if err := decode(w, r, &req); err != nil {
		api.WriteError(w, "Please provide an ambulanceId.", err)
		return
	}
	c, err := h.Engine.AssignCarrier(r.Context(), mux.Vars(r)["id"], actor, req.AmbulanceID)
	if err != nil {
		api.WriteError(w, "failed to assign ambulance", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rescueResponse{Success: true, Message: "Ambulance assigned successfully!", Rescue: c})
}

type statusRequest struct {
	Status models.CaseStatus `json:"status" validate:"required"`
}

// UpdateStatusHandler lets the assigned carrier move a case along transport
func (h Rescue) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		api.WriteError(w, "Please provide a status.", err)
		return
	}
	c, err := h.Engine.Advance(r.Context(), mux.Vars(r)["id"], actor, req.Status)
	if err != nil {
		api.WriteError(w, "failed to update rescue status", err)
		return
	}
	msg := "Status updated to '" + string(c.Status) + "'."
	if c.Status == models.StatusCompleted && c.DepositReturned {
		msg = "Rescue completed. The reporter's deposit has been refunded."
	}
	api.WriteJSON(w, http.StatusOK, rescueResponse{Success: true, Message: msg, Rescue: c})
}
