package mocks

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the tenant, account and
// task stores. Every operation runs under one mutex, which gives the same
// atomicity the Postgres stores get from transactions.
//
// Hook, when set, is called with the operation name ("Lease",
// "Transition", "SaveToken", ...) before the operation runs. A non-nil
// return aborts the operation with that error, which tests use to inject
// store failures and simulated crashes.
type MemoryStore struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*domain.Tenant
	accounts map[uuid.UUID][]*domain.Account
	tasks    map[uuid.UUID]*domain.Task

	Hook func(op string) error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[uuid.UUID]*domain.Tenant),
		accounts: make(map[uuid.UUID][]*domain.Account),
		tasks:    make(map[uuid.UUID]*domain.Task),
	}
}

// Tenants returns the store.TenantStore view.
func (m *MemoryStore) Tenants() *MemoryTenantStore { return &MemoryTenantStore{m} }

// Accounts returns the store.AccountStore view.
func (m *MemoryStore) Accounts() *MemoryAccountStore { return &MemoryAccountStore{m} }

// Tasks returns the store.TaskStore view.
func (m *MemoryStore) Tasks() *MemoryTaskStore { return &MemoryTaskStore{m} }

func (m *MemoryStore) hook(op string) error {
	if m.Hook == nil {
		return nil
	}
	return m.Hook(op)
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	c.Logs = slices.Clone(t.Logs)
	return &c
}

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.LeasedAt != nil {
		at := *a.LeasedAt
		c.LeasedAt = &at
	}
	return &c
}

func (m *MemoryStore) findAccount(tenantID uuid.UUID, email string) *domain.Account {
	for _, a := range m.accounts[tenantID] {
		if a.Email == email {
			return a
		}
	}
	return nil
}

// heldByOther reports whether an unfinished task other than t is
// attributed t's account.
func (m *MemoryStore) heldByOther(t *domain.Task) bool {
	for _, other := range m.tasks {
		if other.ID != t.ID && other.TenantID == t.TenantID &&
			other.AccountEmail == t.AccountEmail && !other.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// SeedTask stores a task as-is, bypassing validation and the state machine.
// Tests use it to lay down the checkpoints a crashed process left behind.
func (m *MemoryStore) SeedTask(t *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = copyTask(t)
}

// SetLeased forces the leased flag of an account, for seeding crash state.
func (m *MemoryStore) SetLeased(tenantID uuid.UUID, email string, leased bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.findAccount(tenantID, email); a != nil {
		a.Leased = leased
	}
}

// Task returns a snapshot of a task regardless of tenant, or nil.
func (m *MemoryStore) Task(id uuid.UUID) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil
	}
	return copyTask(t)
}

// Account returns a snapshot of an account, or nil.
func (m *MemoryStore) Account(tenantID uuid.UUID, email string) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.findAccount(tenantID, email)
	if a == nil {
		return nil
	}
	return copyAccount(a)
}

// MemoryTenantStore implements store.TenantStore on a MemoryStore.
type MemoryTenantStore struct{ m *MemoryStore }

var _ store.TenantStore = (*MemoryTenantStore)(nil)

// Create implements store.TenantStore.Create
func (s *MemoryTenantStore) Create(_ context.Context, tenant *domain.Tenant) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("CreateTenant"); err != nil {
		return err
	}
	if err := tenant.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	for _, t := range s.m.tenants {
		if t.APIKey == tenant.APIKey {
			return store.ErrTenantExists
		}
	}
	c := *tenant
	s.m.tenants[tenant.ID] = &c
	return nil
}

// GetByAPIKey implements store.TenantStore.GetByAPIKey
func (s *MemoryTenantStore) GetByAPIKey(_ context.Context, apiKey string) (*domain.Tenant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("GetByAPIKey"); err != nil {
		return nil, err
	}
	for _, t := range s.m.tenants {
		if t.APIKey == apiKey {
			c := *t
			return &c, nil
		}
	}
	return nil, store.ErrTenantNotFound
}

// List implements store.TenantStore.List
func (s *MemoryTenantStore) List(_ context.Context) ([]*domain.Tenant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*domain.Tenant, 0, len(s.m.tenants))
	for _, t := range s.m.tenants {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete implements store.TenantStore.Delete
func (s *MemoryTenantStore) Delete(_ context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tenants[id]; !ok {
		return store.ErrTenantNotFound
	}
	delete(s.m.tenants, id)
	delete(s.m.accounts, id)
	for tid, t := range s.m.tasks {
		if t.TenantID == id {
			delete(s.m.tasks, tid)
		}
	}
	return nil
}

// MemoryAccountStore implements store.AccountStore on a MemoryStore.
type MemoryAccountStore struct{ m *MemoryStore }

var _ store.AccountStore = (*MemoryAccountStore)(nil)

// Add implements store.AccountStore.Add
func (s *MemoryAccountStore) Add(_ context.Context, account *domain.Account) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("AddAccount"); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if s.m.findAccount(account.TenantID, account.Email) != nil {
		return store.ErrAccountExists
	}
	c := copyAccount(account)
	c.Leased = false
	c.LeasedAt = nil
	s.m.accounts[account.TenantID] = append(s.m.accounts[account.TenantID], c)
	return nil
}

// List implements store.AccountStore.List
func (s *MemoryAccountStore) List(_ context.Context, tenantID uuid.UUID) ([]*domain.Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := []*domain.Account{}
	for _, a := range s.m.accounts[tenantID] {
		out = append(out, copyAccount(a))
	}
	return out, nil
}

// Delete implements store.AccountStore.Delete
func (s *MemoryAccountStore) Delete(_ context.Context, tenantID uuid.UUID, email string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	list := s.m.accounts[tenantID]
	for i, a := range list {
		if a.Email == email {
			s.m.accounts[tenantID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return store.ErrAccountNotFound
}

// Count implements store.AccountStore.Count
func (s *MemoryAccountStore) Count(_ context.Context, tenantID uuid.UUID) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("Count"); err != nil {
		return 0, err
	}
	return len(s.m.accounts[tenantID]), nil
}

// CountAvailable implements store.AccountStore.CountAvailable
func (s *MemoryAccountStore) CountAvailable(_ context.Context, tenantID uuid.UUID) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("CountAvailable"); err != nil {
		return 0, err
	}
	n := 0
	for _, a := range s.m.accounts[tenantID] {
		if !a.Leased {
			n++
		}
	}
	return n, nil
}

// Lease implements store.AccountStore.Lease
func (s *MemoryAccountStore) Lease(
	_ context.Context,
	tenantID, taskID uuid.UUID,
	exclude []string,
) (*domain.Account, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("Lease"); err != nil {
		return nil, err
	}

	task, ok := s.m.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	for _, a := range s.m.accounts[tenantID] {
		if a.Leased || slices.Contains(exclude, a.Email) {
			continue
		}
		now := time.Now().UTC()
		a.Leased = true
		a.LeasedAt = &now
		task.AccountEmail = a.Email
		task.UpdatedAt = now
		return copyAccount(a), nil
	}
	return nil, store.ErrNoAccountAvailable
}

// Release implements store.AccountStore.Release
func (s *MemoryAccountStore) Release(_ context.Context, tenantID uuid.UUID, email string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("Release"); err != nil {
		return err
	}
	if a := s.m.findAccount(tenantID, email); a != nil {
		a.Leased = false
		a.LeasedAt = nil
	}
	return nil
}

// ReleaseAll implements store.AccountStore.ReleaseAll
func (s *MemoryAccountStore) ReleaseAll(_ context.Context) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for _, list := range s.m.accounts {
		for _, a := range list {
			if a.Leased {
				a.Leased = false
				a.LeasedAt = nil
				n++
			}
		}
	}
	return n, nil
}

// MemoryTaskStore implements store.TaskStore on a MemoryStore.
type MemoryTaskStore struct{ m *MemoryStore }

var _ store.TaskStore = (*MemoryTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *MemoryTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("CreateTask"); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if _, ok := s.m.tasks[task.ID]; ok {
		return fmt.Errorf("%w: task", store.ErrDuplicate)
	}
	s.m.tasks[task.ID] = copyTask(task)
	return nil
}

// Get implements store.TaskStore.Get
func (s *MemoryTaskStore) Get(_ context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tasks[id]
	if !ok || t.TenantID != tenantID {
		return nil, store.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// ListByTenant implements store.TaskStore.ListByTenant
func (s *MemoryTaskStore) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range s.m.tasks {
		if t.TenantID == tenantID {
			c := copyTask(t)
			c.Logs = nil
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CountActive implements store.TaskStore.CountActive
func (s *MemoryTaskStore) CountActive(_ context.Context) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("CountActive"); err != nil {
		return 0, err
	}
	n := 0
	for _, t := range s.m.tasks {
		if !t.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

// Transition implements store.TaskStore.Transition
func (s *MemoryTaskStore) Transition(_ context.Context, id uuid.UUID, status domain.TaskStatus, result string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("Transition"); err != nil {
		return err
	}
	t, ok := s.m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if !domain.CanTransition(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, t.Status, status)
	}
	t.Status = status
	if result != "" {
		t.Result = result
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveToken implements store.TaskStore.SaveToken
func (s *MemoryTaskStore) SaveToken(_ context.Context, id uuid.UUID, token string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("SaveToken"); err != nil {
		return err
	}
	t, ok := s.m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.Token = token
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveExternalID implements store.TaskStore.SaveExternalID
func (s *MemoryTaskStore) SaveExternalID(_ context.Context, id uuid.UUID, externalID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("SaveExternalID"); err != nil {
		return err
	}
	t, ok := s.m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Token == "" {
		return store.ErrCheckpointOrder
	}
	t.ExternalTaskID = externalID
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendLog implements store.TaskStore.AppendLog
func (s *MemoryTaskStore) AppendLog(_ context.Context, id uuid.UUID, message string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("AppendLog"); err != nil {
		return err
	}
	t, ok := s.m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	now := time.Now().UTC()
	t.Logs = append(t.Logs, domain.LogEntry{Time: now, Message: message})
	t.UpdatedAt = now
	return nil
}

// FailStranded implements store.TaskStore.FailStranded
func (s *MemoryTaskStore) FailStranded(_ context.Context, message string) ([]*domain.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("FailStranded"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var failed []*domain.Task
	for _, t := range s.m.tasks {
		if t.Status.IsTerminal() || t.Token != "" || t.ExternalTaskID != "" {
			continue
		}
		t.Status = domain.TaskStatusFailed
		t.Logs = append(t.Logs, domain.LogEntry{Time: now, Message: message})
		t.UpdatedAt = now
		if t.AccountEmail != "" && !s.m.heldByOther(t) {
			if a := s.m.findAccount(t.TenantID, t.AccountEmail); a != nil {
				a.Leased = false
				a.LeasedAt = nil
			}
		}
		failed = append(failed, copyTask(t))
	}
	return failed, nil
}

// ListIncomplete implements store.TaskStore.ListIncomplete
func (s *MemoryTaskStore) ListIncomplete(_ context.Context) ([]*domain.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.hook("ListIncomplete"); err != nil {
		return nil, err
	}
	var out []*domain.Task
	for _, t := range s.m.tasks {
		if !t.Status.IsTerminal() {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
