package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/lease"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the collaborators of a Runner.
type Deps struct {
	Tasks   store.TaskStore
	Pool    *lease.Pool
	Session Session
	// Speaker may be nil, in which case tts tasks fail.
	Speaker Speaker
	// Registerer receives the runner metrics; nil means the default registry.
	Registerer prometheus.Registerer
}

// handle is the arena entry of a task goroutine owned by this process.
type handle struct {
	mode    domain.TaskMode
	started time.Time
}

// Runner admits tasks and owns one goroutine per task it is executing.
// There is no worker pool: the admission ceiling is the only bound.
type Runner struct {
	tasks     store.TaskStore
	pool      *lease.Pool
	session   Session
	speaker   Speaker
	cfg       config.TaskConfig
	admission *Admission
	poller    *poller
	metrics   *Metrics
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	active  map[uuid.UUID]handle
	stopped bool
}

// NewRunner creates a Runner. Call Start before Create.
func NewRunner(deps Deps, cfg config.TaskConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	m := NewMetrics(deps.Registerer)
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		tasks:     deps.Tasks,
		pool:      deps.Pool,
		session:   deps.Session,
		speaker:   deps.Speaker,
		cfg:       cfg,
		admission: NewAdmission(deps.Tasks, cfg.MaxConcurrent),
		poller:    &poller{session: deps.Session, metrics: m},
		metrics:   m,
		logger:    logger.With(slog.String("component", "task_runner")),
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[uuid.UUID]handle),
	}
}

// Start runs startup recovery. Tasks resumed by recovery keep running in
// the background until they finish or Stop is called. Start must complete
// before the process accepts Create calls.
func (r *Runner) Start(ctx context.Context) (RecoveryReport, error) {
	report, err := r.Recover(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to recover tasks: %w", err)
	}
	return report, nil
}

// Stop cancels every polling wait and waits until all task goroutines have
// returned or ctx is done. Tasks that were still polling stay running in
// the store.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for task goroutines: %w", ctx.Err())
	}
}

// Create validates and admits a task, stores it as pending and starts
// executing it in the background.
func (r *Runner) Create(
	ctx context.Context,
	tenantID uuid.UUID,
	mode domain.TaskMode,
	p Params,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	if err := p.Validate(mode); err != nil {
		return nil, err
	}
	if r.isStopped() {
		return nil, ErrStopped
	}

	if err := r.admission.Check(ctx); err != nil {
		var capErr *CapacityError
		if errors.As(err, &capErr) {
			r.metrics.rejected.Inc()
			log.Warn("task rejected at capacity",
				slog.Int("active", capErr.Active),
				slog.Int("max", capErr.Max))
		}
		return nil, err
	}

	t, err := domain.NewTask(tenantID, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := r.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	r.metrics.taskCreated(mode)

	log.Info("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("mode", string(mode)))

	snapshot := *t
	started := r.spawn(t, func(ctx context.Context) {
		e := r.newExecution(ctx, t)
		if strategy, ok := StrategyFor(mode); ok {
			e.generate(ctx, strategy, p)
			return
		}
		e.speak(ctx, p)
	})
	if !started {
		// only possible when Stop raced with Create; the task stays pending
		// for the next start's recovery to fail it
		return nil, ErrStopped
	}
	return &snapshot, nil
}

// Get returns a task owned by the tenant.
func (r *Runner) Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	return r.tasks.Get(ctx, tenantID, id)
}

// List returns the tenant's tasks, newest first.
func (r *Runner) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	return r.tasks.ListByTenant(ctx, tenantID)
}

// RunningCount returns the number of pending and running tasks across all
// tenants, the figure admission compares with MaxConcurrent.
func (r *Runner) RunningCount(ctx context.Context) (int, error) {
	return r.admission.Active(ctx)
}

// MaxConcurrent returns the admission ceiling.
func (r *Runner) MaxConcurrent() int {
	return r.admission.Max()
}

// ActiveCount returns the number of task goroutines in this process.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Runner) isActive(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// spawn starts fn in a goroutine that owns t. It returns false when the
// runner is stopped or t is already owned by a goroutine.
func (r *Runner) spawn(t *domain.Task, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.active[t.ID]; ok {
		r.mu.Unlock()
		return false
	}
	r.active[t.ID] = handle{mode: t.Mode, started: time.Now()}
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.inflight.Inc()
	log := r.logger.With(
		slog.String("task_id", t.ID.String()),
		slog.String("tenant_id", t.TenantID.String()),
		slog.String("mode", string(t.Mode)))
	ctx := logger.WithLogger(r.ctx, log)

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.active, t.ID)
			r.mu.Unlock()
			r.metrics.inflight.Dec()
			r.wg.Done()
		}()
		fn(ctx)
	}()
	return true
}

// budget returns the polling budget of a mode. Recovered tasks get their
// own, longer budgets.
func (r *Runner) budget(mode domain.TaskMode, recovered bool) config.PollConfig {
	switch {
	case mode == domain.TaskModeVideo && recovered:
		return r.cfg.RecoveredVideoPoll
	case mode == domain.TaskModeVideo:
		return r.cfg.VideoPoll
	case recovered:
		return r.cfg.RecoveredImagePoll
	default:
		return r.cfg.ImagePoll
	}
}
