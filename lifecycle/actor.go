package lifecycle

import (
	"github.com/pawsaarthi/rescue-api/models"
)

// Actor is the authenticated identity acting on a case. The engine trusts
// these fields as resolved by the identity provider.
type Actor struct {
	ID       string
	Role     models.Role
	Approved bool
	// Location is the actor's home location, when set
	Location *models.Location
	// LinkedFacility is the owning facility of a carrier
	LinkedFacility *string
}

// SystemActor is the identity of scheduled jobs
var SystemActor = Actor{ID: "system", Role: models.RoleSystem, Approved: true}

// ActorFromUser builds the acting identity of a stored user
func ActorFromUser(u *models.User) Actor {
	a := Actor{
		ID:             u.ID,
		Role:           u.Details.Role,
		Approved:       u.Details.Approved,
		LinkedFacility: u.Details.LinkedFacility,
	}
	if u.Details.HomeLocation != nil {
		loc := *u.Details.HomeLocation
		a.Location = &loc
	}
	return a
}

// CheckApproved fails with Forbidden when the actor's role needs admin
// approval that has not been granted
func CheckApproved(a Actor) error {
	if a.Role.RequiresApproval() && !a.Approved {
		return models.Errorf(models.KindForbidden, "your %s account is awaiting admin approval", a.Role)
	}
	return nil
}
