package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"golang.org/x/sync/errgroup"
)

// Recovery phases, used as metric labels
const (
	phaseStranded  = "stranded"
	phaseAmbiguous = "ambiguous"
	phaseConfirmed = "confirmed"
)

const msgStranded = "[recovery] Task never authenticated before the restart."

// RecoveryReport counts what one recovery run did.
type RecoveryReport struct {
	// Failed tasks had no token checkpoint and were failed outright.
	Failed int
	// Ambiguous tasks had a token but no job id and were checked against
	// the vendor.
	Ambiguous int
	// Resumed tasks had a job id and went straight back to polling.
	Resumed int
	// Skipped tasks were already owned by a goroutine of this process.
	Skipped int
}

// Recover reconciles tasks a previous process left pending or running.
//
// Phase 1 fails every such task that never saved a token, releasing its
// attributed credential, in one store transaction. Phase 2 looks up each
// task that saved a token but no job id against the vendor concurrently,
// with each lookup bounded by the lookup timeout. Phase 3 resumes polling
// for every task that saved a job id, without any lookup.
//
// Tasks already owned by a goroutine of this runner are left alone, so
// running Recover again is harmless.
func (r *Runner) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	log := logger.FromContextOrDefault(ctx, r.logger)
	log.Info("starting crash recovery")

	failed, err := r.tasks.FailStranded(ctx, msgStranded)
	if err != nil {
		return report, fmt.Errorf("fail stranded tasks: %w", err)
	}
	report.Failed = len(failed)
	for _, t := range failed {
		r.metrics.recoveryOutcome(phaseStranded, string(domain.TaskStatusFailed))
		r.metrics.taskFinished(t.Mode, domain.TaskStatusFailed)
		log.Info("stranded task failed",
			slog.String("task_id", t.ID.String()),
			slog.Bool("had_account", t.AccountEmail != ""))
	}

	incomplete, err := r.tasks.ListIncomplete(ctx)
	if err != nil {
		return report, fmt.Errorf("list incomplete tasks: %w", err)
	}

	var ambiguous, confirmed []*domain.Task
	for _, t := range incomplete {
		switch {
		case r.isActive(t.ID):
			report.Skipped++
		case t.HasExternalID():
			confirmed = append(confirmed, t)
		case t.HasToken():
			ambiguous = append(ambiguous, t)
		default:
			// created after phase 1 by this process
			report.Skipped++
		}
	}

	report.Ambiguous = len(ambiguous)
	var g errgroup.Group
	for _, t := range ambiguous {
		g.Go(func() error {
			r.recoverAmbiguous(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	for _, t := range confirmed {
		if r.resume(t, phaseConfirmed, t.ExternalTaskID) {
			report.Resumed++
		} else {
			report.Skipped++
		}
	}

	log.Info("crash recovery complete",
		slog.Int("failed", report.Failed),
		slog.Int("ambiguous", report.Ambiguous),
		slog.Int("resumed", report.Resumed),
		slog.Int("skipped", report.Skipped))
	return report, nil
}

// recoveredExecution rebuilds the execution state of a task from its row.
func (r *Runner) recoveredExecution(ctx context.Context, t *domain.Task) *execution {
	e := r.newExecution(ctx, t)
	e.lease = r.pool.Resume(t)

	if exp, ok := studio.TokenExpiry(t.Token); ok && exp.Before(time.Now()) {
		e.log.Warn("saved session token has expired", slog.Time("expired_at", exp))
	}
	return e
}

// ensureRunning moves a pending task with checkpoints to running so that
// its terminal write is a legal transition.
func (e *execution) ensureRunning(ctx context.Context) error {
	if e.task.Status != domain.TaskStatusPending {
		return nil
	}
	if err := e.r.tasks.Transition(ctx, e.task.ID, domain.TaskStatusRunning, ""); err != nil {
		return err
	}
	e.task.Status = domain.TaskStatusRunning
	return nil
}

// recoverAmbiguous runs the phase 2 lookup for one task. An active vendor
// job found by the lookup is polled in a goroutine of its own.
func (r *Runner) recoverAmbiguous(ctx context.Context, t *domain.Task) {
	ctx = logger.WithLogger(ctx, r.logger.With(
		slog.String("task_id", t.ID.String()),
		slog.String("mode", string(t.Mode))))
	e := r.recoveredExecution(ctx, t)
	opCtx := context.WithoutCancel(ctx)

	if err := e.ensureRunning(opCtx); err != nil {
		e.log.Error("failed to mark recovered task running", slog.String("error", err.Error()))
		return
	}

	e.note(opCtx, "[recovery] Checking the vendor for a job submitted before the restart.")
	jobID, found := e.reconcile(r.ctx)
	switch {
	case found:
		r.metrics.recoveryOutcome(phaseAmbiguous, "found_active")
		r.resume(e.task, phaseAmbiguous, jobID)
	case e.task.Status.IsTerminal():
		r.metrics.recoveryOutcome(phaseAmbiguous, string(e.task.Status))
	}
}

// resume polls a recovered task's vendor job in a goroutine owned by the
// runner. It returns false when the task is already owned.
func (r *Runner) resume(t *domain.Task, phase, jobID string) bool {
	return r.spawn(t, func(ctx context.Context) {
		e := r.recoveredExecution(ctx, t)
		defer e.recoverPanic(ctx)
		opCtx := context.WithoutCancel(ctx)

		if err := e.ensureRunning(opCtx); err != nil {
			e.log.Error("failed to mark recovered task running", slog.String("error", err.Error()))
			return
		}
		e.note(opCtx, "[recovery] Resuming polling for job "+jobID)
		if phase == phaseConfirmed {
			r.metrics.recoveryOutcome(phase, "resumed")
		}
		e.follow(ctx, jobID, r.budget(t.Mode, true))
	})
}
