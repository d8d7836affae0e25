package task

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/lease"
	"github.com/forgeline/genrelay/internal/mocks"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func testConfig() config.TaskConfig {
	fast := config.PollConfig{Attempts: 5, Interval: time.Millisecond}
	return config.TaskConfig{
		MaxConcurrent:      10,
		SuccessLeasePolicy: config.LeasePolicyRetain,
		ImagePoll:          fast,
		VideoPoll:          fast,
		RecoveredImagePoll: fast,
		RecoveredVideoPoll: fast,
		LookupTimeout:      time.Second,
	}
}

type fixture struct {
	mem     *mocks.MemoryStore
	session *mocks.MockSession
	speaker *mocks.TestifyMockSpeaker
	pool    *lease.Pool
	runner  *Runner
	tenant  *domain.Tenant
	logs    *logger.LogBuffer
}

type fixtureOption func(*config.TaskConfig)

func newFixture(t *testing.T, emails []string, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mem := mocks.NewMemoryStore()
	tenant, err := domain.NewTenant("key-" + uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, mem.Tenants().Create(context.Background(), tenant))
	for _, e := range emails {
		require.NoError(t, mem.Accounts().Add(context.Background(),
			&domain.Account{TenantID: tenant.ID, Email: e, Secret: "pw-" + e}))
	}

	log, buf := logger.NewBufferLogger()
	reg := prometheus.NewRegistry()
	pool := lease.NewPool(mem.Accounts(), reg, log)
	session := &mocks.MockSession{}
	speaker := &mocks.TestifyMockSpeaker{}

	runner := NewRunner(Deps{
		Tasks:      mem.Tasks(),
		Pool:       pool,
		Session:    session,
		Speaker:    speaker,
		Registerer: reg,
	}, cfg, log)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, runner.Stop(ctx))
	})

	return &fixture{
		mem:     mem,
		session: session,
		speaker: speaker,
		pool:    pool,
		runner:  runner,
		tenant:  tenant,
		logs:    buf,
	}
}

// waitTerminal waits for the task to reach a terminal status and for its
// goroutine to exit.
func (f *fixture) waitTerminal(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	require.Eventually(t, func() bool {
		task := f.mem.Task(id)
		return task != nil && task.Status.IsTerminal() && !f.runner.isActive(id)
	}, 5*time.Second, time.Millisecond)
	return f.mem.Task(id)
}

// seed stores a task in the given state, as a crashed process would have
// left it. A non-empty account is attributed and marked leased.
func (f *fixture) seed(
	t *testing.T,
	mode domain.TaskMode,
	status domain.TaskStatus,
	account, token, externalID string,
) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(f.tenant.ID, mode)
	require.NoError(t, err)
	task.Status = status
	task.AccountEmail = account
	task.Token = token
	task.ExternalTaskID = externalID
	f.mem.SeedTask(task)
	if account != "" {
		f.mem.SetLeased(f.tenant.ID, account, true)
	}
	return task
}

func (f *fixture) leased(email string) bool {
	return f.mem.Account(f.tenant.ID, email).Leased
}

func logMessages(task *domain.Task) []string {
	out := make([]string, 0, len(task.Logs))
	for _, l := range task.Logs {
		out = append(out, l.Message)
	}
	return out
}

func listing(jobs ...studio.Job) func(context.Context, string, domain.TaskMode) ([]studio.Job, error) {
	return func(context.Context, string, domain.TaskMode) ([]studio.Job, error) {
		return jobs, nil
	}
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
