package lifecycle

import (
	"github.com/pawsaarthi/rescue-api/models"
)

type edgeKey struct {
	from models.CaseStatus
	role models.Role
}

// edges maps a status and the acting role to the single status that role
// may move the case to
var edges = map[edgeKey]models.CaseStatus{
	{models.StatusReported, models.RoleOrg}:               models.StatusOrgAccepted,
	{models.StatusReported, models.RoleSystem}:            models.StatusFacilityEscalated,
	{models.StatusFacilityEscalated, models.RoleFacility}: models.StatusCarrierAssigned,
	{models.StatusCarrierAssigned, models.RoleCarrier}:    models.StatusEnRoute,
	{models.StatusEnRoute, models.RoleCarrier}:            models.StatusPickedUp,
	{models.StatusPickedUp, models.RoleCarrier}:           models.StatusCompleted,
}

// ExpectedNext returns the only status role may move a case in status from
// to. ok is false when role has no move from that status.
func ExpectedNext(from models.CaseStatus, role models.Role) (models.CaseStatus, bool) {
	next, ok := edges[edgeKey{from, role}]
	return next, ok
}

// CanTransition reports whether role has any edge in the graph
func CanTransition(role models.Role) bool {
	for k := range edges {
		if k.role == role {
			return true
		}
	}
	return false
}

// normalize maps the "delivered" label onto the collapsed completion edge
func normalize(from, requested models.CaseStatus) models.CaseStatus {
	if from == models.StatusPickedUp && requested == models.StatusDelivered {
		return models.StatusCompleted
	}
	return requested
}

func expectedNext(c *models.RescueCase, role models.Role, requested models.CaseStatus) (models.CaseStatus, error) {
	next, ok := ExpectedNext(c.Status, role)
	if !ok || normalize(c.Status, requested) != next {
		return "", models.Errorf(models.KindInvalidTransition,
			"case is in state %s, cannot apply %s", c.Status, requested)
	}
	return next, nil
}
