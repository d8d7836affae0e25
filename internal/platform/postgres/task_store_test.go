package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/postgres"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStore_Transition(t *testing.T) {
	id := uuid.New()

	t.Run("legal edge", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := postgres.NewPostgresTaskStore(db, nil)

		mock.ExpectExec("UPDATE tasks").
			WithArgs(id, domain.TaskStatusCompleted, "https://cdn.test/a.png", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Transition(context.Background(), id, domain.TaskStatusCompleted, "https://cdn.test/a.png"))
	})

	t.Run("terminal task is not rewritten", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := postgres.NewPostgresTaskStore(db, nil)

		mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM tasks").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

		err := s.Transition(context.Background(), id, domain.TaskStatusCompleted, "")
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("missing task", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := postgres.NewPostgresTaskStore(db, nil)

		mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM tasks").
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		err := s.Transition(context.Background(), id, domain.TaskStatusRunning, "")
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("driver error carries entity and operation", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := postgres.NewPostgresTaskStore(db, nil)

		mock.ExpectExec("UPDATE tasks").WillReturnError(errors.New("conn reset"))

		err := s.Transition(context.Background(), id, domain.TaskStatusRunning, "")
		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "task", storeErr.Entity)
		assert.Equal(t, "transition", storeErr.Operation)
		assert.NotErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("no edge into pending", func(t *testing.T) {
		db, _ := newMockDB(t)
		s := postgres.NewPostgresTaskStore(db, nil)

		err := s.Transition(context.Background(), id, domain.TaskStatusPending, "")
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})
}

func TestTaskStore_SaveExternalIDRequiresToken(t *testing.T) {
	id := uuid.New()
	db, mock := newMockDB(t)
	s := postgres.NewPostgresTaskStore(db, nil)

	mock.ExpectExec("token IS NOT NULL").
		WithArgs(id, "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.SaveExternalID(context.Background(), id, "job-1")
	assert.ErrorIs(t, err, store.ErrCheckpointOrder)
}

func TestTaskStore_FailStranded(t *testing.T) {
	tenantID := uuid.New()
	leasedTask := uuid.New()
	bareTask := uuid.New()
	now := time.Now().UTC()

	db, mock := newMockDB(t)
	s := postgres.NewPostgresTaskStore(db, nil)

	columns := []string{"id", "tenant_id", "mode", "status", "result", "logs",
		"external_task_id", "token", "account_email", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery("RETURNING").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(leasedTask.String(), tenantID.String(), "image", "failed", "", []byte(`[{"time":"2026-01-02T03:04:05Z","message":"stranded"}]`), "", "", "a@studio.test", now, now).
			AddRow(bareTask.String(), tenantID.String(), "video", "failed", "", []byte(`[]`), "", "", "", now, now))
	mock.ExpectExec("NOT EXISTS").
		WithArgs(tenantID, "a@studio.test", leasedTask).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	failed, err := s.FailStranded(context.Background(), "stranded")
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, leasedTask, failed[0].ID)
	assert.Equal(t, domain.TaskStatusFailed, failed[0].Status)
	require.Len(t, failed[0].Logs, 1)
	assert.Equal(t, "stranded", failed[0].Logs[0].Message)
	assert.Equal(t, domain.TaskModeVideo, failed[1].Mode)
}
