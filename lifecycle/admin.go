package lifecycle

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/models"
)

// Override lets an admin set any known status and a note, bypassing the
// transition graph. It never moves money. A carrier taken out of transport
// by the override is made available again.
func (e *Engine) Override(ctx context.Context, caseID string, actor Actor, status *models.CaseStatus, note *string) (*models.RescueCase, error) {
	if actor.Role != models.RoleAdmin {
		return nil, models.Errorf(models.KindForbidden, "only admins can override a rescue")
	}
	if status != nil && !status.Valid() {
		return nil, models.Errorf(models.KindBadRequest, "unknown status %q", *status)
	}
	if status == nil && note == nil {
		return nil, models.Errorf(models.KindBadRequest, "nothing to override")
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		c, err := e.load(ctx, caseID)
		if err != nil {
			return nil, err
		}
		updated := c.Clone()
		if status != nil {
			updated.Status = *status
		}
		if note != nil {
			updated.AdminNote = *note
		}
		updated.UpdatedAt = e.now().UTC()

		err = e.store.Rescues().Replace(ctx, &updated)
		if errors.Is(err, databases.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		zap.S().Warnw("rescue case overridden by admin",
			"caseId", caseID,
			"admin", actor.ID,
			"from", c.Status,
			"to", updated.Status)
		if c.AssignedCarrier != nil && inTransport(c.Status) && !inTransport(updated.Status) {
			e.releaseCarrier(ctx, *c.AssignedCarrier, caseID)
		}
		e.emit(ctx, EventOverridden, &updated, actor.ID)
		return &updated, nil
	}
	return nil, errConcurrent(caseID)
}

// Delete removes a case. Ledger entries referencing it are kept.
func (e *Engine) Delete(ctx context.Context, caseID string, actor Actor) error {
	if actor.Role != models.RoleAdmin {
		return models.Errorf(models.KindForbidden, "only admins can delete a rescue")
	}
	if err := e.store.Rescues().Delete(ctx, caseID); err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			return models.Errorf(models.KindNotFound, "rescue request not found")
		}
		return err
	}
	zap.S().Warnw("rescue case deleted by admin", "caseId", caseID, "admin", actor.ID)
	return nil
}

// inTransport reports whether a case in status holds its carrier
func inTransport(status models.CaseStatus) bool {
	switch status {
	case models.StatusCarrierAssigned, models.StatusEnRoute, models.StatusPickedUp:
		return true
	}
	return false
}
