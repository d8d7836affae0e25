package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/lease"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"github.com/forgeline/genrelay/internal/redact"
	"github.com/forgeline/genrelay/internal/store"
)

// Task log messages
const (
	msgNoAccounts       = "No accounts available."
	msgAllLoginsFailed  = "All accounts failed to login."
	msgVendorFailed     = "Generation failed on the vendor side."
	msgPollingExhausted = "Timed out waiting for the vendor to finish."
	msgSubmitUnknown    = "Submission outcome unknown, checking the vendor for the job."
	msgNotSubmitted     = "No matching job found on the vendor, submission never completed."
)

// execution is the state one goroutine carries while it owns a task. The
// lease, when present, is settled exactly once by finish.
type execution struct {
	r     *Runner
	task  *domain.Task
	lease *lease.Lease
	log   *slog.Logger
}

func (r *Runner) newExecution(ctx context.Context, t *domain.Task) *execution {
	return &execution{
		r:    r,
		task: t,
		log:  logger.FromContextOrDefault(ctx, r.logger),
	}
}

// note appends a line to the task's own log. A failed append is logged and
// otherwise ignored.
func (e *execution) note(ctx context.Context, message string) {
	if err := e.r.tasks.AppendLog(ctx, e.task.ID, message); err != nil {
		e.log.Warn("failed to append task log",
			slog.String("message", message),
			slog.String("error", err.Error()))
	}
}

// finish writes a terminal status and settles the lease: released on every
// status but completed, where the success lease policy decides.
func (e *execution) finish(ctx context.Context, status domain.TaskStatus, result, message string) {
	if message != "" {
		e.note(ctx, message)
	}

	err := e.r.tasks.Transition(ctx, e.task.ID, status, result)
	switch {
	case err == nil:
		e.task.Status = status
		e.r.metrics.taskFinished(e.task.Mode, status)
		e.log.Info("task finished", slog.String("status", string(status)))
	case errors.Is(err, store.ErrInvalidTransition):
		e.log.Warn("task already left the running state",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	default:
		e.log.Error("failed to write terminal status",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}

	e.settle(ctx, status)
}

func (e *execution) settle(ctx context.Context, status domain.TaskStatus) {
	if e.lease == nil {
		return
	}
	if status == domain.TaskStatusCompleted && !e.r.cfg.ReleaseOnSuccess() {
		e.lease.Retain()
		return
	}
	if err := e.lease.Release(ctx); err != nil {
		e.log.Error("failed to release account",
			slog.String("account", redact.Email(e.lease.Email())),
			slog.String("error", err.Error()))
	}
}

// abort ends the task with status error after an unexpected failure.
func (e *execution) abort(ctx context.Context, err error) {
	e.log.Error("task aborted", slog.String("error", redact.Error(err)))
	e.finish(ctx, domain.TaskStatusError, "", "Internal error: "+redact.Error(err))
}

// recoverPanic converts a panic in the worker into status error.
func (e *execution) recoverPanic(ctx context.Context) {
	if rec := recover(); rec != nil {
		e.abort(context.WithoutCancel(ctx), fmt.Errorf("panic: %v", rec))
	}
}

// generate runs the image or video pipeline. ctx is the shutdown context:
// it interrupts polling, while the steps up to and including submission
// run to completion on a detached context.
func (e *execution) generate(ctx context.Context, strategy Strategy, p Params) {
	defer e.recoverPanic(ctx)
	opCtx := context.WithoutCancel(ctx)

	if err := e.r.tasks.Transition(opCtx, e.task.ID, domain.TaskStatusRunning, ""); err != nil {
		e.abort(opCtx, fmt.Errorf("start task: %w", err))
		return
	}
	e.task.Status = domain.TaskStatusRunning

	available, err := e.r.pool.Available(opCtx, e.task.TenantID)
	if err != nil {
		e.abort(opCtx, err)
		return
	}
	if available == 0 {
		e.finish(opCtx, domain.TaskStatusFailed, "", msgNoAccounts)
		return
	}

	// credentials leased by other tasks may come back while this one is
	// still trying, so the bound is the pool size rather than what is free
	total, err := e.r.pool.Total(opCtx, e.task.TenantID)
	if err != nil {
		e.abort(opCtx, err)
		return
	}

	token, err := e.login(opCtx, total)
	if err != nil {
		e.abort(opCtx, err)
		return
	}
	if token == "" {
		e.finish(opCtx, domain.TaskStatusFailed, "", msgAllLoginsFailed)
		return
	}

	req, err := strategy.Prepare(opCtx, e.r.session, token, p)
	if err != nil {
		e.finish(opCtx, domain.TaskStatusFailed, "", "Image upload failed: "+redact.Error(err))
		return
	}

	if err := e.r.tasks.SaveToken(opCtx, e.task.ID, token); err != nil {
		e.abort(opCtx, err)
		return
	}
	e.task.Token = token

	jobID, err := e.r.session.Submit(opCtx, token, req)
	var rejected *studio.RejectedError
	switch {
	case errors.As(err, &rejected):
		e.finish(opCtx, domain.TaskStatusFailed, "",
			fmt.Sprintf("Submit error: code %d: %s", rejected.Code, redact.String(rejected.Message)))
		return
	case err != nil:
		e.log.Warn("submission outcome unknown", slog.String("error", redact.Error(err)))
		e.note(opCtx, msgSubmitUnknown)
		e.reconcileAndFollow(ctx, e.r.budget(e.task.Mode, false))
		return
	}

	if err := e.r.tasks.SaveExternalID(opCtx, e.task.ID, jobID); err != nil {
		e.abort(opCtx, err)
		return
	}
	e.task.ExternalTaskID = jobID
	e.note(opCtx, "API Task ID: "+jobID)

	e.follow(ctx, jobID, e.r.budget(e.task.Mode, false))
}

// login leases credentials one at a time and authenticates with each until
// one succeeds, trying at most limit distinct credentials. A credential
// that fails to authenticate is released before the next is leased. It
// returns an empty token when no credential worked; err is reserved for
// store failures.
//
// The execution holds each lease from the moment it is acquired, so a panic
// or a failed release still leaves it to settle.
func (e *execution) login(ctx context.Context, limit int) (string, error) {
	var tried []string
	for len(tried) < limit {
		l, err := e.r.pool.Acquire(ctx, e.task.TenantID, e.task.ID, tried...)
		if errors.Is(err, lease.ErrNoneAvailable) {
			break
		}
		if err != nil {
			return "", err
		}
		e.lease = l
		tried = append(tried, l.Email())

		acc := l.Account()
		e.task.AccountEmail = acc.Email
		token, err := e.r.session.Authenticate(ctx, studio.Credential{Email: acc.Email, Secret: acc.Secret})
		if err == nil {
			return token, nil
		}

		e.log.Warn("login failed",
			slog.String("account", redact.Email(acc.Email)),
			slog.String("error", redact.Error(err)))
		e.note(ctx, "Login failed for "+redact.Email(acc.Email))
		if err := l.Release(ctx); err != nil {
			return "", err
		}
		e.lease = nil
	}
	return "", nil
}

// follow polls the task's vendor job to an outcome. On shutdown the task
// is left running and the lease untouched.
func (e *execution) follow(ctx context.Context, jobID string, budget config.PollConfig) {
	opCtx := context.WithoutCancel(ctx)
	res := e.r.poller.poll(ctx, e.task.Mode, e.task.Token, jobID, budget)

	switch res.outcome {
	case outcomeCompleted:
		e.finish(opCtx, domain.TaskStatusCompleted, res.resultURL, "")
	case outcomeFailed:
		e.finish(opCtx, domain.TaskStatusFailed, "", msgVendorFailed)
	case outcomeTimeout:
		e.finish(opCtx, domain.TaskStatusTimeout, "", msgPollingExhausted)
	case outcomeCancelled:
		e.log.Info("shutting down, task left running for recovery", slog.String("job_id", jobID))
	}
}

// reconcileAndFollow resolves a submission whose outcome is unknown and,
// when the vendor has an active job, polls it.
func (e *execution) reconcileAndFollow(ctx context.Context, budget config.PollConfig) {
	if jobID, ok := e.reconcile(ctx); ok {
		e.follow(ctx, jobID, budget)
	}
}

// reconcile looks up the session's recent jobs to decide what happened to
// a submission that has a token checkpoint but no job id:
//
//   - an active job is taken to be this task's; its id is saved and
//     returned with ok true so the caller can poll it
//   - otherwise a finished job with a result completes the task
//   - otherwise the submission is taken to have never happened and the task
//     fails
//
// A failed lookup counts as finding nothing, unless ctx was cancelled, in
// which case the task is left untouched.
func (e *execution) reconcile(ctx context.Context) (jobID string, ok bool) {
	opCtx := context.WithoutCancel(ctx)

	lookupCtx, cancel := context.WithTimeout(ctx, e.r.cfg.LookupTimeout)
	jobs, err := e.r.session.ListRecent(lookupCtx, e.task.Token, e.task.Mode)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			e.log.Info("shutting down, reconciliation deferred")
			return "", false
		}
		e.log.Warn("job lookup failed", slog.String("error", redact.Error(err)))
		jobs = nil
	}

	for _, job := range jobs {
		switch {
		case job.State.Active():
			if err := e.r.tasks.SaveExternalID(opCtx, e.task.ID, job.ID); err != nil {
				e.abort(opCtx, err)
				return "", false
			}
			e.task.ExternalTaskID = job.ID
			e.note(opCtx, "Found active job on the vendor: "+job.ID)
			return job.ID, true
		case job.State == studio.JobStateSuccess && job.ResultURL != "":
			e.note(opCtx, "Found completed job on the vendor: "+job.ID)
			e.finish(opCtx, domain.TaskStatusCompleted, job.ResultURL, "")
			return "", false
		}
	}

	e.finish(opCtx, domain.TaskStatusFailed, "", msgNotSubmitted)
	return "", false
}
