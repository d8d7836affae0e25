package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
)

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a task store on db.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, tenant_id, mode, status, COALESCE(result, ''), logs,
	COALESCE(external_task_id, ''), COALESCE(token, ''), COALESCE(account_email, ''),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t       domain.Task
		mode    string
		status  string
		rawLogs []byte
	)
	if err := row.Scan(&t.ID, &t.TenantID, &mode, &status, &t.Result, &rawLogs,
		&t.ExternalTaskID, &t.Token, &t.AccountEmail, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Mode = domain.TaskMode(mode)
	t.Status = domain.TaskStatus(status)
	t.Logs = []domain.LogEntry{}
	if len(rawLogs) > 0 {
		if err := json.Unmarshal(rawLogs, &t.Logs); err != nil {
			return nil, fmt.Errorf("%w: task logs: %v", domain.ErrInvalidFormat, err)
		}
	}
	return &t, nil
}

func logPatch(now time.Time, message string) ([]byte, error) {
	return json.Marshal([]domain.LogEntry{{Time: now, Message: message}})
}

func statusStrings(statuses []domain.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, tenant_id, mode, status, logs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '[]'::JSONB, $5, $6)`,
		task.ID, task.TenantID, task.Mode, task.Status, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}
	return nil
}

// Get implements store.TaskStore.Get
func (s *PostgresTaskStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

// ListByTenant implements store.TaskStore.ListByTenant
func (s *PostgresTaskStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, mode, status, COALESCE(result, ''), '[]'::JSONB,
			COALESCE(external_task_id, ''), COALESCE(token, ''), COALESCE(account_email, ''),
			created_at, updated_at
		FROM tasks
		WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, MapError(err)
	}
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, t)
	}
	return tasks, MapError(rows.Err())
}

// CountActive implements store.TaskStore.CountActive
func (s *PostgresTaskStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status IN ('pending', 'running')`).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// Transition implements store.TaskStore.Transition. The UPDATE only matches
// rows whose current status is a legal source for the target, so terminal
// rows are never rewritten even by a racing writer.
func (s *PostgresTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
	result string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	sources := domain.TransitionSources(status)
	if len(sources) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", store.ErrInvalidTransition, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2, result = COALESCE(NULLIF($3, ''), result), updated_at = $4
		WHERE id = $1 AND status = ANY($5)`,
		id, status, result, time.Now().UTC(), statusStrings(sources))
	if err != nil {
		return store.NewStoreError("task", "transition", "failed to update status", MapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		log.Debug("task status updated",
			slog.String("task_id", id.String()),
			slog.String("status", string(status)))
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return store.NewStoreError("task", "transition", "failed to read current status", MapError(err))
	}
	return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
}

// SaveToken implements store.TaskStore.SaveToken
func (s *PostgresTaskStore) SaveToken(ctx context.Context, id uuid.UUID, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET token = $2, updated_at = $3 WHERE id = $1`,
		id, token, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrTaskNotFound)
}

// SaveExternalID implements store.TaskStore.SaveExternalID
func (s *PostgresTaskStore) SaveExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET external_task_id = $2, updated_at = $3 WHERE id = $1 AND token IS NOT NULL`,
		id, externalID, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(res, store.ErrCheckpointOrder); err == nil {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrTaskNotFound
	}
	return store.ErrCheckpointOrder
}

// AppendLog implements store.TaskStore.AppendLog
func (s *PostgresTaskStore) AppendLog(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	patch, err := logPatch(now, message)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET logs = logs || $2::JSONB, updated_at = $3 WHERE id = $1`,
		id, string(patch), now)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrTaskNotFound)
}

// releaseStrandedAccountQuery releases the account a stranded task points
// at unless another unfinished task holds it. A task that failed to log in
// keeps the released account's email, and that account may since have been
// leased again.
const releaseStrandedAccountQuery = `
	UPDATE accounts SET leased = FALSE, leased_at = NULL
	WHERE tenant_id = $1 AND email = $2
		AND NOT EXISTS (
			SELECT 1 FROM tasks
			WHERE tenant_id = $1 AND account_email = $2
				AND status IN ('pending', 'running') AND id <> $3
		)`

// FailStranded implements store.TaskStore.FailStranded
func (s *PostgresTaskStore) FailStranded(ctx context.Context, message string) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	patch, err := logPatch(now, message)
	if err != nil {
		return nil, err
	}

	var failed []*domain.Task
	err = store.WithinTransaction(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE tasks
			SET status = 'failed', logs = logs || $1::JSONB, updated_at = $2
			WHERE status IN ('pending', 'running')
				AND token IS NULL
				AND external_task_id IS NULL
			RETURNING `+taskColumns, string(patch), now)
		if err != nil {
			return MapError(err)
		}
		failed, err = collectTasks(rows)
		if err != nil {
			return err
		}

		for _, t := range failed {
			if t.AccountEmail == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, releaseStrandedAccountQuery,
				t.TenantID, t.AccountEmail, t.ID); err != nil {
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to fail stranded tasks", slog.String("error", err.Error()))
		return nil, err
	}
	return failed, nil
}

// ListIncomplete implements store.TaskStore.ListIncomplete
func (s *PostgresTaskStore) ListIncomplete(ctx context.Context) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status IN ('pending', 'running')
		ORDER BY created_at`)
	if err != nil {
		return nil, MapError(err)
	}
	return collectTasks(rows)
}
