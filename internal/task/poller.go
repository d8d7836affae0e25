package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"github.com/forgeline/genrelay/internal/redact"
)

// outcome is how a polling run ended.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeTimeout
	// outcomeCancelled means the process is shutting down. The task is
	// left running for the next start to resume.
	outcomeCancelled
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeFailed:
		return "failed"
	case outcomeTimeout:
		return "timeout"
	case outcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

type pollResult struct {
	outcome   outcome
	resultURL string
}

// poller waits for one vendor job to finish.
type poller struct {
	session Session
	metrics *Metrics
}

// wait sleeps for d or until ctx is done. It reports false on cancellation.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// poll checks the session's recent jobs for jobID up to budget.Attempts
// times, waiting budget.Interval before each check. Listing errors and
// unfinished states count as an attempt and polling goes on. A SUCCESS
// without a result URL is treated as unfinished.
func (p *poller) poll(
	ctx context.Context,
	mode domain.TaskMode,
	token, jobID string,
	budget config.PollConfig,
) pollResult {
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= budget.Attempts; attempt++ {
		if !wait(ctx, budget.Interval) {
			return pollResult{outcome: outcomeCancelled}
		}

		p.metrics.pollAttempt(mode)
		jobs, err := p.session.ListRecent(ctx, token, mode)
		if err != nil {
			if ctx.Err() != nil {
				return pollResult{outcome: outcomeCancelled}
			}
			log.Debug("job listing failed, will retry",
				slog.Int("attempt", attempt),
				slog.String("error", redact.Error(err)))
			continue
		}

		job, ok := findJob(jobs, jobID)
		if !ok {
			continue
		}
		switch {
		case job.State == studio.JobStateSuccess && job.ResultURL != "":
			return pollResult{outcome: outcomeCompleted, resultURL: job.ResultURL}
		case job.State == studio.JobStateFail:
			return pollResult{outcome: outcomeFailed}
		}
	}
	return pollResult{outcome: outcomeTimeout}
}

func findJob(jobs []studio.Job, id string) (studio.Job, bool) {
	for _, j := range jobs {
		if j.ID == id {
			return j, true
		}
	}
	return studio.Job{}, false
}
