package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forgeline/genrelay/internal/api/middleware"
	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/lease"
	"github.com/forgeline/genrelay/internal/mocks"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAdminKey = "admin-secret"

type testServer struct {
	mem     *mocks.MemoryStore
	session *mocks.MockSession
	speaker *mocks.TestifyMockSpeaker
	runner  *task.Runner
	tenant  *domain.Tenant
	router  http.Handler
}

type serverOption func(*config.TaskConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	cfg := config.TaskConfig{
		MaxConcurrent:      10,
		SuccessLeasePolicy: config.LeasePolicyRetain,
		ImagePoll:          config.PollConfig{Attempts: 2, Interval: time.Millisecond},
		VideoPoll:          config.PollConfig{Attempts: 2, Interval: time.Millisecond},
		RecoveredImagePoll: config.PollConfig{Attempts: 2, Interval: time.Millisecond},
		RecoveredVideoPoll: config.PollConfig{Attempts: 2, Interval: time.Millisecond},
		LookupTimeout:      time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log, _ := logger.NewBufferLogger()
	reg := prometheus.NewRegistry()
	mem := mocks.NewMemoryStore()
	session := &mocks.MockSession{}
	speaker := &mocks.TestifyMockSpeaker{}
	speaker.On("Configured").Return(true).Maybe()
	speaker.On("Synthesize", mock.Anything, mock.Anything).Return("data:audio/mpeg;base64,AAAA", nil).Maybe()

	pool := lease.NewPool(mem.Accounts(), reg, log)
	runner := task.NewRunner(task.Deps{
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

	tenant, err := domain.NewTenant("tenant-key-1234567890")
	require.NoError(t, err)
	require.NoError(t, mem.Tenants().Create(context.Background(), tenant))

	resolver, err := middleware.NewTenantResolver(mem.Tenants(), 0)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)

	h := NewHandler(runner, pool, speaker, log)
	admin := NewAdminHandler(mem.Tenants(), pool, resolver, log)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware(log))
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(resolver).Authenticate)
		h.Register(r)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.NewAdminMiddleware(string(hash)).Authorize)
		admin.Register(r)
	})

	return &testServer{
		mem:     mem,
		session: session,
		speaker: speaker,
		runner:  runner,
		tenant:  tenant,
		router:  r,
	}
}

func (s *testServer) addAccounts(t *testing.T, emails ...string) {
	t.Helper()
	for _, e := range emails {
		require.NoError(t, s.mem.Accounts().Add(context.Background(),
			&domain.Account{TenantID: s.tenant.ID, Email: e, Secret: "pw"}))
	}
}

// do sends a request authenticated as the test tenant.
func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithHeaders(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + s.tenant.APIKey,
	})
}

func (s *testServer) doWithHeaders(
	t *testing.T,
	method, path, body string,
	headers map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
