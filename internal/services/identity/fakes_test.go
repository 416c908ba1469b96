package identity

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Gatekeep/internal/auth"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]user.User
	err    error
}

func newMemUsers() *memUsers { return &memUsers{byID: map[int64]user.User{}} }

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, x := range m.byID {
		if x.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) Update(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return user.ErrNotFound
	}
	for id, x := range m.byID {
		if id != u.ID && x.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) List(_ context.Context, limit, offset int) ([]user.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]user.User, 0, len(m.byID))
	for _, u := range m.byID {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memDetails struct {
	byUser map[int64]map[string]any
	err    error
}

func (d *memDetails) GetByUserID(_ context.Context, id int64) (*user.Detail, error) {
	if d.err != nil {
		return nil, d.err
	}
	attrs, ok := d.byUser[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &user.Detail{UserID: id, Attributes: attrs}, nil
}

// memTx only counts transaction boundaries.
type memTx struct {
	calls int
}

func (t *memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type memEvents struct {
	events []user.Event
	err    error
}

func (e *memEvents) Enqueue(_ context.Context, ev user.Event) error {
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, ev)
	return nil
}

type fixture struct {
	uc      *Usecase
	users   *memUsers
	details *memDetails
	events  *memEvents
	tx      *memTx
	tokens  *auth.TokenService
	now     time.Time
}

func newFixture(t *testing.T, role user.Role) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	hasher, err := auth.NewHasher(auth.HasherConfig{BcryptCost: 4})
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte("identity-test-secret"),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)

	f := &fixture{
		users:   newMemUsers(),
		details: &memDetails{byUser: map[int64]map[string]any{}},
		events:  &memEvents{},
		tx:      &memTx{},
		tokens:  tokens,
		now:     now,
	}
	clock := now
	f.uc = NewUsecase(Deps{
		Users:   f.users,
		Details: f.details,
		Tx:      f.tx,
		Events:  f.events,
		Hasher:  hasher,
		Tokens:  tokens,
	}, Config{
		RegisterRole: role,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return f
}
