// Package visibility answers which cases an actor may see and how far away
// they are. It never writes.
package visibility

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/geo"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
)

// Default search radii
const (
	DefaultOrgRadiusKm      = 50.0
	DefaultFacilityRadiusKm = 10.0
)

// HistoryLimit bounds the carrier history listing
const HistoryLimit = 50

// Config holds the search radii. Zero values take the defaults.
type Config struct {
	OrgRadiusKm      float64
	FacilityRadiusKm float64
}

// Service runs the read queries over the case store
type Service struct {
	store          databases.Store
	orgRadius      float64
	facilityRadius float64
}

// New returns a visibility service
func New(store databases.Store, cfg Config) *Service {
	s := &Service{store: store, orgRadius: cfg.OrgRadiusKm, facilityRadius: cfg.FacilityRadiusKm}
	if s.orgRadius <= 0 {
		s.orgRadius = DefaultOrgRadiusKm
	}
	if s.facilityRadius <= 0 {
		s.facilityRadius = DefaultFacilityRadiusKm
	}
	return s
}

// HasLocation reports whether loc is set. The zero point counts as unset.
func HasLocation(loc *models.Location) bool {
	return loc != nil && !(loc.Lat == 0 && loc.Lng == 0)
}

// NearbyPending lists reported cases an org can still accept, oldest first.
// With a home location the list is cut to the org radius and ordered by
// distance. Without one every case is returned with an unknown distance.
func (s *Service) NearbyPending(ctx context.Context, actor lifecycle.Actor) (*models.CaseListResponse, error) {
	if err := requireRole(actor, models.RoleOrg); err != nil {
		return nil, err
	}
	cases, err := s.store.Rescues().Find(ctx, databases.CaseQuery{
		Statuses:      []models.CaseStatus{models.StatusReported},
		OrgUnassigned: true,
		NotRejectedBy: actor.ID,
		Sort:          databases.SortCreatedAsc,
	})
	if err != nil {
		return nil, err
	}

	located := HasLocation(actor.Location)
	var views []models.CaseView
	if located {
		views = withinRadius(cases, *actor.Location, s.orgRadius)
	} else {
		views = make([]models.CaseView, 0, len(cases))
		for _, c := range cases {
			views = append(views, models.CaseView{RescueCase: c})
		}
	}
	zap.S().Debugw("nearby pending cases", "org", actor.ID, "candidates", len(cases), "visible", len(views), "locationSet", located)
	return &models.CaseListResponse{Success: true, Count: len(views), Cases: views, LocationSet: &located}, nil
}

// EscalatedNearby lists escalated cases within the facility radius,
// nearest first. Facilities without a home location get LocationRequired.
func (s *Service) EscalatedNearby(ctx context.Context, actor lifecycle.Actor) (*models.CaseListResponse, error) {
	if err := requireRole(actor, models.RoleFacility); err != nil {
		return nil, err
	}
	if !HasLocation(actor.Location) {
		return nil, models.Errorf(models.KindLocationRequired, "please set your hospital location in your profile")
	}
	cases, err := s.store.Rescues().Find(ctx, databases.CaseQuery{
		Statuses: []models.CaseStatus{models.StatusFacilityEscalated},
		Sort:     databases.SortEscalatedAsc,
	})
	if err != nil {
		return nil, err
	}
	views := withinRadius(cases, *actor.Location, s.facilityRadius)
	zap.S().Debugw("escalated nearby cases", "hospital", actor.ID, "candidates", len(cases), "visible", len(views))
	return &models.CaseListResponse{Success: true, Count: len(views), Cases: views}, nil
}

// withinRadius keeps cases at most radius km from origin, nearest first.
// Ties keep the incoming order.
func withinRadius(cases []models.RescueCase, origin models.Location, radius float64) []models.CaseView {
	views := make([]models.CaseView, 0, len(cases))
	for _, c := range cases {
		d := geo.Between(origin, c.Location)
		if d > radius {
			continue
		}
		views = append(views, models.CaseView{RescueCase: c, DistanceKm: &d})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return *views[i].DistanceKm < *views[j].DistanceKm
	})
	return views
}

// ReporterCases lists the citizen's own cases, newest first
func (s *Service) ReporterCases(ctx context.Context, actor lifecycle.Actor) ([]models.RescueCase, error) {
	if actor.Role != models.RoleCitizen {
		return nil, forbidden(actor)
	}
	return s.store.Rescues().Find(ctx, databases.CaseQuery{Reporter: actor.ID, Sort: databases.SortCreatedDesc})
}

// OrgCases lists the cases the org accepted, newest first
func (s *Service) OrgCases(ctx context.Context, actor lifecycle.Actor) ([]models.RescueCase, error) {
	if err := requireRole(actor, models.RoleOrg); err != nil {
		return nil, err
	}
	return s.store.Rescues().Find(ctx, databases.CaseQuery{AssignedOrg: actor.ID, Sort: databases.SortCreatedDesc})
}

// FacilityCases lists the cases the facility dispatched to, newest first
func (s *Service) FacilityCases(ctx context.Context, actor lifecycle.Actor) ([]models.RescueCase, error) {
	if err := requireRole(actor, models.RoleFacility); err != nil {
		return nil, err
	}
	return s.store.Rescues().Find(ctx, databases.CaseQuery{AssignedFacility: actor.ID, Sort: databases.SortCreatedDesc})
}

// LinkedCarriers lists the approved carriers of a facility
func (s *Service) LinkedCarriers(ctx context.Context, actor lifecycle.Actor) ([]models.User, error) {
	if err := requireRole(actor, models.RoleFacility); err != nil {
		return nil, err
	}
	approved := true
	return s.store.Users().Find(ctx, databases.UserQuery{
		Role:           models.RoleCarrier,
		Approved:       &approved,
		LinkedFacility: actor.ID,
	})
}

// ActiveTask returns the carrier's case in transport, or nil
func (s *Service) ActiveTask(ctx context.Context, actor lifecycle.Actor) (*models.RescueCase, error) {
	if err := requireRole(actor, models.RoleCarrier); err != nil {
		return nil, err
	}
	cases, err := s.store.Rescues().Find(ctx, databases.CaseQuery{
		AssignedCarrier: actor.ID,
		Statuses:        []models.CaseStatus{models.StatusCarrierAssigned, models.StatusEnRoute, models.StatusPickedUp},
		Sort:            databases.SortUpdatedDesc,
		Limit:           1,
	})
	if err != nil || len(cases) == 0 {
		return nil, err
	}
	return &cases[0], nil
}

// CarrierHistory lists the carrier's completed cases, latest first
func (s *Service) CarrierHistory(ctx context.Context, actor lifecycle.Actor) ([]models.RescueCase, error) {
	if err := requireRole(actor, models.RoleCarrier); err != nil {
		return nil, err
	}
	return s.store.Rescues().Find(ctx, databases.CaseQuery{
		AssignedCarrier: actor.ID,
		Statuses:        []models.CaseStatus{models.StatusCompleted},
		Sort:            databases.SortCompletedDesc,
		Limit:           HistoryLimit,
	})
}

// CaseDetail returns one case. Citizens may only read their own.
func (s *Service) CaseDetail(ctx context.Context, caseID string, actor lifecycle.Actor) (*models.RescueCase, error) {
	c, err := s.store.Rescues().FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			return nil, models.Errorf(models.KindNotFound, "rescue request not found")
		}
		return nil, err
	}
	if actor.Role == models.RoleCitizen && c.Reporter != actor.ID {
		return nil, models.Errorf(models.KindForbidden, "access denied")
	}
	return c, nil
}

func requireRole(actor lifecycle.Actor, role models.Role) error {
	if actor.Role != role {
		return forbidden(actor)
	}
	return lifecycle.CheckApproved(actor)
}

func forbidden(actor lifecycle.Actor) error {
	return models.Errorf(models.KindForbidden, "not available to a %s account", actor.Role)
}
