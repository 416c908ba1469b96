package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/domain/outbox"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/obs/retry"
)

type memRepo struct {
	mu    sync.Mutex
	msgs  map[string]*outbox.Message
	picks map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{msgs: map[string]*outbox.Message{}, picks: map[string]int{}}
}

func (r *memRepo) Enqueue(_ context.Context, m outbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[m.IdempotencyKey]; !ok {
		m.Status = outbox.StatusCreated
		r.msgs[m.IdempotencyKey] = &m
	}
	return nil
}

func (r *memRepo) PickBatch(_ context.Context, batch int, _ time.Duration) ([]outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.Message
	for _, m := range r.msgs {
		if len(out) == batch {
			break
		}
		if m.Status == outbox.StatusCreated && !m.AvailableAt.After(time.Now()) {
			m.Status = outbox.StatusInProgress
			r.picks[m.IdempotencyKey]++
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.msgs[k].Status = outbox.StatusSuccess
	}
	return nil
}

func (r *memRepo) MarkFailure(_ context.Context, key string, f outbox.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[key]
	if !ok {
		return outbox.ErrNotFound
	}
	m.Attempts++
	m.LastError = f.Reason
	m.AvailableAt = time.Now().Add(f.RetryAfter)
	m.Status = outbox.StatusCreated
	if f.Terminal {
		m.Status = outbox.StatusFailed
	}
	return nil
}

func (r *memRepo) get(key string) (outbox.Message, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.msgs[key], r.picks[key]
}

func (r *memRepo) statuses() map[outbox.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[outbox.Status]int{}
	for _, m := range r.msgs {
		out[m.Status]++
	}
	return out
}

type memPublisher struct {
	mu     sync.Mutex
	events []user.Event
	fail   map[int64]bool
}

func (p *memPublisher) PublishUserEvent(_ context.Context, e user.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[e.UserID] {
		return assert.AnError
	}
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) published() []user.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]user.Event(nil), p.events...)
}

type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }

func TestSink_Enqueue(t *testing.T) {
	repo := newMemRepo()
	sink := NewSink(repo)

	require.NoError(t, sink.Enqueue(context.Background(), user.Event{Type: user.EventRegistered, UserID: 1}))
	require.NoError(t, sink.Enqueue(context.Background(), user.Event{Type: user.EventUpdated, UserID: 1}))
	require.Error(t, sink.Enqueue(context.Background(), user.Event{Type: "user.deleted", UserID: 1}))

	kinds := map[outbox.Kind]int{}
	for _, m := range repo.msgs {
		kinds[m.Kind]++
		assert.NotEmpty(t, m.IdempotencyKey)
	}
	assert.Equal(t, map[outbox.Kind]int{outbox.KindUserRegistered: 1, outbox.KindUserUpdated: 1}, kinds)
}

func TestRunner_RelaysEvents(t *testing.T) {
	repo := newMemRepo()
	sink := NewSink(repo)
	pub := &memPublisher{fail: map[int64]bool{3: true}}

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, sink.Enqueue(context.Background(), user.Event{
			Type: user.EventRegistered, UserID: id, Email: "u@x.io", Role: user.RoleCustomer,
		}))
	}

	pol := retry.Policy{Attempts: 2, Backoff: noWait{}}
	runner := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, pol), RunnerConfig{
		Workers: 2, BatchSize: 10, WaitTime: 10 * time.Millisecond, RetryBase: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return repo.statuses()[outbox.StatusSuccess] == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	assert.Len(t, pub.published(), 2)
	// the failed publish is parked until its backoff elapses
	assert.Equal(t, 1, repo.statuses()[outbox.StatusCreated])
	for _, m := range repo.msgs {
		if m.Status == outbox.StatusCreated {
			assert.Equal(t, 1, m.Attempts)
			assert.NotEmpty(t, m.LastError)
			assert.True(t, m.AvailableAt.After(time.Now().Add(30*time.Minute)))
		}
	}
}

// runFor drives r until cond holds, then stops it.
func runFor(t *testing.T, r *Runner, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunner_BadPayloadIsParked(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.Enqueue(context.Background(), outbox.Message{
		IdempotencyKey: "poison", Kind: outbox.KindUserUpdated, Data: []byte("{not json"),
	}))
	require.NoError(t, repo.Enqueue(context.Background(), outbox.Message{
		IdempotencyKey: "alien", Kind: outbox.Kind(42), Data: []byte(`{}`),
	}))

	runner := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(&memPublisher{}, retry.Policy{Attempts: 3, Backoff: noWait{}}),
		RunnerConfig{WaitTime: 5 * time.Millisecond, RetryBase: time.Millisecond, MaxAttempts: 5})

	runFor(t, runner, func() bool { return repo.statuses()[outbox.StatusFailed] == 2 })
	// a few more ticks: nothing terminal is handed out again
	time.Sleep(30 * time.Millisecond)

	for _, key := range []string{"poison", "alien"} {
		m, picks := repo.get(key)
		assert.Equal(t, outbox.StatusFailed, m.Status, key)
		assert.Equal(t, 1, m.Attempts, key)
		assert.Equal(t, 1, picks, key)
		assert.Contains(t, m.LastError, retry.ErrPermanent.Error(), key)
	}
}

func TestRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := newMemRepo()
	pub := &memPublisher{fail: map[int64]bool{9: true}}
	require.NoError(t, NewSink(repo).Enqueue(context.Background(), user.Event{Type: user.EventUpdated, UserID: 9}))

	runner := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, retry.Policy{Attempts: 1}),
		RunnerConfig{WaitTime: 2 * time.Millisecond, RetryBase: time.Millisecond, RetryMax: time.Millisecond, MaxAttempts: 3})

	runFor(t, runner, func() bool { return repo.statuses()[outbox.StatusFailed] == 1 })
	time.Sleep(20 * time.Millisecond)

	for key := range repo.msgs {
		m, picks := repo.get(key)
		assert.Equal(t, 3, m.Attempts)
		assert.Equal(t, 3, picks)
	}
	assert.Empty(t, pub.published())
}

func TestGlobalHandler_UnknownKind(t *testing.T) {
	h := MakeGlobalOutboxHandler(&memPublisher{}, retry.Policy{Attempts: 1})
	_, err := h(outbox.Kind(99))
	require.ErrorIs(t, err, retry.ErrPermanent)
}

func TestGlobalHandler_BadPayloadIsNotRetried(t *testing.T) {
	h, err := MakeGlobalOutboxHandler(&memPublisher{}, retry.PublishPolicy("test_bad_payload", nil))(outbox.KindUserUpdated)
	require.NoError(t, err)

	start := time.Now()
	err = h(context.Background(), []byte("{not json"))
	require.ErrorIs(t, err, retry.ErrPermanent)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
