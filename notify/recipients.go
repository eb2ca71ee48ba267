package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/geo"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
	"github.com/pawsaarthi/rescue-api/visibility"
)

type message struct {
	recipient string
	kind      models.NotificationType
	title     string
	body      string
	email     bool
}

// messages resolves who hears about e and what they are told
func (d *Dispatcher) messages(ctx context.Context, e lifecycle.Event) []message {
	c := e.Case
	reporter := func(kind models.NotificationType, title, body string, email bool) message {
		return message{recipient: c.Reporter, kind: kind, title: title, body: body, email: email}
	}

	switch e.Type {
	case lifecycle.EventCaseCreated:
		orgs := d.nearby(ctx, models.RoleOrg, c.Location, d.orgRadius(), true)
		out := make([]message, 0, len(orgs))
		for _, id := range orgs {
			out = append(out, message{
				recipient: id,
				kind:      models.NotificationRescueNew,
				title:     "New rescue request nearby",
				body:      describe(c),
			})
		}
		return out
	case lifecycle.EventOrgAccepted:
		return []message{reporter(models.NotificationRescueAccepted,
			"Your rescue request was accepted",
			"An NGO has accepted your rescue request and is on the way.", false)}
	case lifecycle.EventEscalated:
		facilities := d.nearby(ctx, models.RoleFacility, c.Location, d.facilityRadius(), false)
		out := make([]message, 0, len(facilities)+1)
		for _, id := range facilities {
			out = append(out, message{
				recipient: id,
				kind:      models.NotificationRescueEscalated,
				title:     "Rescue request escalated",
				body:      "No NGO responded in time. " + describe(c),
			})
		}
		return append(out, reporter(models.NotificationRescueUpdated,
			"Your rescue request was escalated",
			"No NGO responded in time, nearby hospitals have been alerted.", false))
	case lifecycle.EventCarrierAssigned:
		out := []message{reporter(models.NotificationRescueUpdated,
			"An ambulance has been assigned",
			"An ambulance has been assigned to your rescue request.", false)}
		if c.AssignedCarrier != nil {
			out = append(out, message{
				recipient: *c.AssignedCarrier,
				kind:      models.NotificationRescueNew,
				title:     "New rescue assignment",
				body:      describe(c),
			})
		}
		return out
	case lifecycle.EventStatusAdvanced:
		return []message{reporter(models.NotificationRescueUpdated,
			"Rescue status updated",
			fmt.Sprintf("Your rescue request is now %s.", statusLabel(c.Status)), false)}
	case lifecycle.EventCompleted:
		return []message{reporter(models.NotificationRescueCompleted,
			"Rescue completed",
			"The animal you reported has been delivered to care. Thank you for reporting.", true)}
	case lifecycle.EventDepositRefunded:
		return []message{reporter(models.NotificationWalletRefund,
			"Deposit refunded",
			"Your rescue deposit has been returned to your wallet.", true)}
	case lifecycle.EventOverridden:
		return []message{reporter(models.NotificationRescueUpdated,
			"Rescue request updated",
			fmt.Sprintf("An administrator updated your rescue request. Current status: %s.", statusLabel(c.Status)), false)}
	}
	return nil
}

// nearby returns approved users of role within radius of loc. Users without
// a home location are included only when includeUnset is true.
func (d *Dispatcher) nearby(ctx context.Context, role models.Role, loc models.Location, radius float64, includeUnset bool) []string {
	approved := true
	users, err := d.store.Users().Find(ctx, databases.UserQuery{Role: role, Approved: &approved})
	if err != nil {
		zap.S().Errorw("failed to resolve notification recipients", "role", role, "error", err)
		return nil
	}
	var out []string
	for _, u := range users {
		home := u.Details.HomeLocation
		if !visibility.HasLocation(home) {
			if includeUnset {
				out = append(out, u.ID)
			}
			continue
		}
		if geo.Between(*home, loc) <= radius {
			out = append(out, u.ID)
		}
	}
	return out
}

func (d *Dispatcher) orgRadius() float64 {
	if d.cfg.OrgRadiusKm > 0 {
		return d.cfg.OrgRadiusKm
	}
	return visibility.DefaultOrgRadiusKm
}

func (d *Dispatcher) facilityRadius() float64 {
	if d.cfg.FacilityRadiusKm > 0 {
		return d.cfg.FacilityRadiusKm
	}
	return visibility.DefaultFacilityRadiusKm
}

func describe(c models.RescueCase) string {
	if c.Location.Address != "" {
		return fmt.Sprintf("%s (%s)", c.Description, c.Location.Address)
	}
	return c.Description
}

func statusLabel(s models.CaseStatus) string {
	switch s {
	case models.StatusEnRoute:
		return "en route"
	case models.StatusPickedUp:
		return "picked up"
	case models.StatusDelivered, models.StatusCompleted:
		return "completed"
	case models.StatusCarrierAssigned:
		return "assigned to an ambulance"
	}
	return string(s)
}
