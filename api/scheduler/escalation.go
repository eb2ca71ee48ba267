package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/models"
)

// DefaultParallelism bounds concurrent escalations within one tick
const DefaultParallelism = 8

// Escalator performs the forced transition of one case
type Escalator interface {
	Escalate(ctx context.Context, caseID string, at time.Time) (*models.RescueCase, error)
}

// EscalationJob moves reported cases nobody accepted in time over to
// facilities. It keeps no state between runs.
type EscalationJob struct {
	Rescues     databases.RescueDatabase
	Engine      Escalator
	Deadline    time.Duration
	Parallelism int
}

// TickResult summarizes one run
type TickResult struct {
	Candidates int
	Escalated  int
	Skipped    int
	Failed     int
}

// Run escalates every reported case created at or before now minus the
// deadline. Cases that moved on in the meantime are skipped and errors on
// one case never stop the others.
func (j *EscalationJob) Run(ctx context.Context, now time.Time) (TickResult, error) {
	cutoff := now.Add(-j.Deadline)
	cases, err := j.Rescues.Find(ctx, databases.CaseQuery{
		Statuses:      []models.CaseStatus{models.StatusReported},
		CreatedBefore: &cutoff,
		Sort:          databases.SortCreatedAsc,
	})
	if err != nil {
		return TickResult{}, err
	}

	var escalated, skipped, failed int64
	limit := j.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, c := range cases {
		id := c.ID
		g.Go(func() error {
			_, err := j.Engine.Escalate(gctx, id, now)
			switch {
			case err == nil:
				atomic.AddInt64(&escalated, 1)
			case errors.Is(err, models.ErrInvalidTransition):
				atomic.AddInt64(&skipped, 1)
			default:
				atomic.AddInt64(&failed, 1)
				zap.S().Errorw("failed to escalate rescue case", "caseId", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := TickResult{
		Candidates: len(cases),
		Escalated:  int(escalated),
		Skipped:    int(skipped),
		Failed:     int(failed),
	}
	if res.Candidates > 0 {
		zap.S().Infow("escalation tick complete",
			"candidates", res.Candidates,
			"escalated", res.Escalated,
			"skipped", res.Skipped,
			"failed", res.Failed)
	}
	return res, nil
}
