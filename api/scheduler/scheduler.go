package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/logging"
)

// jobTimeout bounds a single run of any job
const jobTimeout = 2 * time.Minute

// Reconciler repairs refunds that failed after completion
type Reconciler interface {
	ReconcileRefunds(ctx context.Context, actor lifecycle.Actor) (int, error)
}

// Scheduler handles periodic background jobs of the rescue workflow. A
// single instance is expected to run per deployment.
type Scheduler struct {
	cron           *cron.Cron
	escalation     *EscalationJob
	reconciler     Reconciler
	escalationSpec string
	reconcileSpec  string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(escalation *EscalationJob, reconciler Reconciler, escalationSpec, reconcileSpec string) *Scheduler {
	logger := logging.CronLogger()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		escalation:     escalation,
		reconciler:     reconciler,
		escalationSpec: escalationSpec,
		reconcileSpec:  reconcileSpec,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.escalationSpec, s.escalate); err != nil {
		zap.S().Errorw("failed to register escalation job", "schedule", s.escalationSpec, "error", err)
	} else {
		zap.S().Infow("scheduled escalation job", "schedule", s.escalationSpec)
	}

	if s.reconciler != nil && s.reconcileSpec != "" {
		if _, err := s.cron.AddFunc(s.reconcileSpec, s.reconcile); err != nil {
			zap.S().Errorw("failed to register refund reconciliation job", "schedule", s.reconcileSpec, "error", err)
		} else {
			zap.S().Infow("scheduled refund reconciliation job", "schedule", s.reconcileSpec)
		}
	}

	s.cron.Start()
	zap.S().Info("rescue scheduler started")
}

// Stop gracefully stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("rescue scheduler stopped")
}

func (s *Scheduler) escalate() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.escalation.Run(ctx, time.Now().UTC()); err != nil {
		zap.S().Errorw("escalation tick failed", "error", err)
	}
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.reconciler.ReconcileRefunds(ctx, lifecycle.SystemActor); err != nil {
		zap.S().Errorw("refund reconciliation tick failed", "error", err)
	}
}
