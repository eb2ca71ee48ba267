package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/models"
)

// refundDeposit returns the held deposit of a completed case to its
// reporter. The refund entry and the depositRefunded flag are written in
// one transaction, and the refund key makes repeats harmless. A nil case
// with a nil error means there was nothing to refund.
func (e *Engine) refundDeposit(ctx context.Context, caseID string) (*models.RescueCase, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var updated *models.RescueCase
		err := e.store.WithTransaction(ctx, func(ctx context.Context) error {
			c, err := e.load(ctx, caseID)
			if err != nil {
				return err
			}
			if c.Status != models.StatusCompleted || !c.DepositHeld || c.DepositReturned {
				return nil
			}

			_, err = e.ledger.Refund(ctx, ledger.Movement{
				Actor:       c.Reporter,
				Amount:      e.deposit,
				RelatedCase: &c.ID,
				Key:         ledger.RefundKey(c.ID),
				Description: fmt.Sprintf("deposit refund for completed rescue #%s", c.ID),
			})
			if errors.Is(err, models.ErrAlreadyProcessed) {
				zap.S().Infow("deposit refund already recorded", "caseId", c.ID)
			} else if err != nil {
				return err
			}

			next := c.Clone()
			next.DepositReturned = true
			next.UpdatedAt = e.now().UTC()
			if err := e.store.Rescues().Replace(ctx, &next); err != nil {
				return err
			}
			updated = &next
			return nil
		})
		if errors.Is(err, databases.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if updated != nil {
			zap.S().Infow("deposit refunded", "caseId", caseID, "reporter", updated.Reporter, "amount", e.deposit)
			e.emit(ctx, EventDepositRefunded, updated, SystemActor.ID)
		}
		return updated, nil
	}
	return nil, errConcurrent(caseID)
}

// ReconcileRefunds retries the deposit refund of every completed case whose
// deposit is still outstanding and returns how many were repaired
func (e *Engine) ReconcileRefunds(ctx context.Context, actor Actor) (int, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSystem {
		return 0, models.Errorf(models.KindForbidden, "only admins can reconcile refunds")
	}
	cases, err := e.store.Rescues().Find(ctx, databases.CaseQuery{
		Statuses:          []models.CaseStatus{models.StatusCompleted},
		RefundOutstanding: true,
	})
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, c := range cases {
		updated, err := e.refundDeposit(ctx, c.ID)
		if err != nil {
			zap.S().Errorw("refund reconciliation failed", "caseId", c.ID, "error", err)
			continue
		}
		if updated != nil {
			repaired++
		}
	}
	if len(cases) > 0 {
		zap.S().Infow("refund reconciliation finished", "outstanding", len(cases), "repaired", repaired)
	}
	return repaired, nil
}
