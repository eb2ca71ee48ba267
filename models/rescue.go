package models

import (
	"time"
)

// CaseStatus is the workflow state of a rescue case. Values are the wire names
// used in the rescuerequests collection.
type CaseStatus string

// Case statuses in canonical order. StatusFacilityEscalated is only entered
// through forced escalation and StatusCancelled only through admin override.
const (
	StatusReported          CaseStatus = "pending"
	StatusOrgAccepted       CaseStatus = "ngo_accepted"
	StatusFacilityEscalated CaseStatus = "hospital_escalated"
	StatusCarrierAssigned   CaseStatus = "ambulance_assigned"
	StatusEnRoute           CaseStatus = "en_route"
	StatusPickedUp          CaseStatus = "picked_up"
	StatusDelivered         CaseStatus = "delivered"
	StatusCompleted         CaseStatus = "completed"
	StatusCancelled         CaseStatus = "cancelled"
)

// AllStatuses lists every known status
var AllStatuses = []CaseStatus{
	StatusReported,
	StatusOrgAccepted,
	StatusFacilityEscalated,
	StatusCarrierAssigned,
	StatusEnRoute,
	StatusPickedUp,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
}

// Valid reports whether s is a known status
func (s CaseStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// MaxCaseImages is the maximum number of images attached to a case
const MaxCaseImages = 5

// MaxDescriptionLength bounds the case description
const MaxDescriptionLength = 1000

// Location is a point in decimal degrees with an optional label
type Location struct {
	Lat     float64 `json:"lat" bson:"lat"`
	Lng     float64 `json:"lng" bson:"lng"`
	Address string  `json:"address,omitempty" bson:"address"`
}

// RescueCase holds the structure for the rescuerequests collection in mongo
type RescueCase struct {
	ID          string     `json:"_id" bson:"_id"`
	Reporter    string     `json:"user" bson:"user"`
	Description string     `json:"description" bson:"description"`
	Images      []string   `json:"images" bson:"images"`
	Video       string     `json:"video,omitempty" bson:"video"`
	Location    Location   `json:"location" bson:"location"`
	Status      CaseStatus `json:"status" bson:"status"`

	AssignedOrg      *string  `json:"assignedNGO" bson:"assignedNGO"`
	AssignedFacility *string  `json:"assignedHospital" bson:"assignedHospital"`
	AssignedCarrier  *string  `json:"assignedAmbulance" bson:"assignedAmbulance"`
	RejectedBy       []string `json:"rejectedBy" bson:"rejectedBy"`

	DepositHeld     bool `json:"depositDeducted" bson:"depositDeducted"`
	DepositReturned bool `json:"depositRefunded" bson:"depositRefunded"`

	AcceptedAt        *time.Time `json:"acceptedAt" bson:"acceptedAt"`
	EscalatedAt       *time.Time `json:"escalatedAt" bson:"escalatedAt"`
	CarrierAssignedAt *time.Time `json:"ambulanceAssignedAt" bson:"ambulanceAssignedAt"`
	EnRouteAt         *time.Time `json:"enRouteAt" bson:"enRouteAt"`
	PickedUpAt        *time.Time `json:"pickedUpAt" bson:"pickedUpAt"`
	DeliveredAt       *time.Time `json:"deliveredAt" bson:"deliveredAt"`
	CompletedAt       *time.Time `json:"completedAt" bson:"completedAt"`

	AdminNote string `json:"adminNotes" bson:"adminNotes"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	// Version is bumped on every write and guards compare-and-swap updates
	Version int64 `json:"__v" bson:"__v"`
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (c RescueCase) Clone() RescueCase {
	out := c
	out.Images = append([]string(nil), c.Images...)
	out.RejectedBy = append([]string(nil), c.RejectedBy...)
	out.AssignedOrg = cloneString(c.AssignedOrg)
	out.AssignedFacility = cloneString(c.AssignedFacility)
	out.AssignedCarrier = cloneString(c.AssignedCarrier)
	out.AcceptedAt = cloneTime(c.AcceptedAt)
	out.EscalatedAt = cloneTime(c.EscalatedAt)
	out.CarrierAssignedAt = cloneTime(c.CarrierAssignedAt)
	out.EnRouteAt = cloneTime(c.EnRouteAt)
	out.PickedUpAt = cloneTime(c.PickedUpAt)
	out.DeliveredAt = cloneTime(c.DeliveredAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	return out
}

// RejectedByOrg reports whether the org already declined this case
func (c RescueCase) RejectedByOrg(orgID string) bool {
	for _, id := range c.RejectedBy {
		if id == orgID {
			return true
		}
	}
	return false
}

// CaseView is a case annotated with its distance from the viewer. DistanceKm
// is nil when the viewer has no home location.
type CaseView struct {
	RescueCase `bson:",inline"`
	DistanceKm *float64 `json:"distance"`
}

// CaseListResponse is returned by every case listing endpoint
type CaseListResponse struct {
	Success     bool       `json:"success"`
	Count       int        `json:"count"`
	Cases       []CaseView `json:"cases"`
	LocationSet *bool      `json:"locationSet,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
