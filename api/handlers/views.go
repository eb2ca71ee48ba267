package handlers

import (
	"net/http"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/models"
	"github.com/pawsaarthi/rescue-api/visibility"
)

// Views serves the role dashboards of orgs, facilities and carriers
type Views struct {
	Service *visibility.Service
}

// NearbyHandler lists reported cases an org may accept
func (v Views) NearbyHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	resp, err := v.Service.NearbyPending(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get nearby rescue requests", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// OrgCasesHandler lists the cases accepted by the org
func (v Views) OrgCasesHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	cases, err := v.Service.OrgCases(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get accepted cases", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, listResponse(cases))
}

// EscalatedHandler lists escalated cases near the facility
func (v Views) EscalatedHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	resp, err := v.Service.EscalatedNearby(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get escalated rescue requests", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// FacilityCasesHandler lists the cases the facility dispatched to
func (v Views) FacilityCasesHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	cases, err := v.Service.FacilityCases(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get hospital cases", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, listResponse(cases))
}

type carriersResponse struct {
	Success    bool          `json:"success"`
	Count      int           `json:"count"`
	Ambulances []models.User `json:"ambulances"`
}

// CarriersHandler lists the approved carriers linked to the facility
func (v Views) CarriersHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	carriers, err := v.Service.LinkedCarriers(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get ambulances", err)
		return
	}
	if carriers == nil {
		carriers = []models.User{}
	}
	api.WriteJSON(w, http.StatusOK, carriersResponse{Success: true, Count: len(carriers), Ambulances: carriers})
}

type taskResponse struct {
	Success bool               `json:"success"`
	Task    *models.RescueCase `json:"task"`
}

// AssignedHandler returns the carrier's case in transport, or a null task
func (v Views) AssignedHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	c, err := v.Service.ActiveTask(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get assigned task", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, taskResponse{Success: true, Task: c})
}

// HistoryHandler lists the carrier's completed cases
func (v Views) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := api.ActorFrom(r.Context())
	cases, err := v.Service.CarrierHistory(r.Context(), actor)
	if err != nil {
		api.WriteError(w, "failed to get rescue history", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, listResponse(cases))
}
