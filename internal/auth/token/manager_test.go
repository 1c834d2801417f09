package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/coach-connect/internal/upstream"
	"github.com/pysugar/coach-connect/internal/userstore"
	"github.com/pysugar/coach-connect/internal/userstore/repofake"
)

type fakeRefresher struct {
	calls  atomic.Int32
	resp   *upstream.TokenResponse
	err    error
	gate   chan struct{}
	lastRT atomic.Value
	after  func()
}

func (f *fakeRefresher) Refresh(_ context.Context, rt string) (*upstream.TokenResponse, error) {
	f.calls.Add(1)
	f.lastRT.Store(rt)
	if f.gate != nil {
		<-f.gate
	}
	if f.after != nil {
		f.after()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

var now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T, stored *userstore.TokenSet, r *fakeRefresher) (*Manager, *repofake.Profiles, *repofake.Legacy) {
	t.Helper()
	profiles := repofake.NewProfiles()
	legacy := repofake.NewLegacy()
	store := userstore.New(profiles, legacy)
	if stored != nil {
		require.NoError(t, store.UpdateTokens(context.Background(), 1, stored))
	}
	profiles.TokenPuts = 0
	legacy.Upserts = 0

	m := NewManager(store, r, nil)
	m.now = func() time.Time { return now }
	return m, profiles, legacy
}

func TestEnsureFresh_UnexpiredSkipsRefresh(t *testing.T) {
	r := &fakeRefresher{}
	m, profiles, _ := setup(t, &userstore.TokenSet{AccessToken: "live", RefreshToken: "rt", ExpiresAt: now.Unix() + 60}, r)

	got, err := m.EnsureFresh(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "live", got.AccessToken)
	assert.Zero(t, r.calls.Load())
	assert.Zero(t, profiles.TokenPuts)
}

func TestEnsureFresh_ExpiredRefreshesOnceAndWritesBothShapes(t *testing.T) {
	r := &fakeRefresher{resp: &upstream.TokenResponse{Tokens: userstore.TokenSet{
		AccessToken: "new", RefreshToken: "rt2", ExpiresAt: now.Unix() + 21600,
	}}}
	m, profiles, legacy := setup(t, &userstore.TokenSet{AccessToken: "old", RefreshToken: "rt1", ExpiresAt: now.Unix(), Scope: "read"}, r)

	got, err := m.EnsureFresh(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "read", got.Scope, "scope falls back to the stored one")
	assert.EqualValues(t, 1, r.calls.Load())
	assert.Equal(t, "rt1", r.lastRT.Load())

	enhanced, err := profiles.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	flat, err := legacy.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "new", enhanced.AccessToken)
	assert.Equal(t, "new", flat.AccessToken)
	assert.Equal(t, "rt2", flat.RefreshToken)
	assert.Equal(t, enhanced.ExpiresAt, flat.ExpiresAt)
}

func TestEnsureFresh_NotFound(t *testing.T) {
	m, _, _ := setup(t, nil, &fakeRefresher{})
	_, err := m.EnsureFresh(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTokensNotFound)
}

func TestEnsureFresh_RefreshFailureNoStaleFallback(t *testing.T) {
	r := &fakeRefresher{err: &upstream.APIError{StatusCode: 400, Body: `{"message":"Bad Request"}`}}
	m, profiles, _ := setup(t, &userstore.TokenSet{AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Unix() - 1}, r)

	got, err := m.EnsureFresh(context.Background(), 1)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Zero(t, profiles.TokenPuts)
}

func TestEnsureFresh_StoreFailureAborts(t *testing.T) {
	r := &fakeRefresher{resp: &upstream.TokenResponse{Tokens: userstore.TokenSet{AccessToken: "new", ExpiresAt: now.Unix() + 10}}}
	m, profiles, _ := setup(t, &userstore.TokenSet{AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Unix() - 1}, r)

	m.store = failingWrites{TokenStore: m.store}
	_, err := m.EnsureFresh(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshFailed)
	assert.Zero(t, profiles.TokenPuts)
}

type failingWrites struct{ TokenStore }

func (failingWrites) UpdateTokens(context.Context, int64, *userstore.TokenSet) error {
	return errors.New("write failed")
}

func TestEnsureFresh_ConcurrentCallersShareRefresh(t *testing.T) {
	r := &fakeRefresher{
		gate: make(chan struct{}),
		resp: &upstream.TokenResponse{Tokens: userstore.TokenSet{AccessToken: "new", RefreshToken: "rt2", ExpiresAt: now.Unix() + 100}},
	}
	m, _, _ := setup(t, &userstore.TokenSet{AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Unix() - 1}, r)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.EnsureFresh(context.Background(), 1)
			if err == nil {
				results[i] = tok.AccessToken
			}
		}(i)
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	assert.LessOrEqual(t, r.calls.Load(), int32(callers))
	for _, got := range results {
		assert.Equal(t, "new", got)
	}
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{name: "invalid grant", err: assertErr("oauth2: cannot fetch token: 400 Bad Request {\"error\":\"invalid_grant\"}"), permanent: true},
		{name: "revoked", err: assertErr("token has been expired or revoked"), permanent: true},
		{name: "upstream 401", err: &upstream.APIError{StatusCode: 401}, permanent: true},
		{name: "upstream 503", err: &upstream.APIError{StatusCode: 503}, permanent: false},
		{name: "timeout", err: assertErr("context deadline exceeded"), permanent: false},
		{name: "temporary", err: assertErr("temporarily_unavailable"), permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermanentRefreshError(tt.err)
			if got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// ctxCheckingStore fails writes on a done context, as the SQL and Redis repos do.
type ctxCheckingStore struct {
	*userstore.Store
}

func (s ctxCheckingStore) UpdateTokens(ctx context.Context, userID int64, t *userstore.TokenSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.UpdateTokens(ctx, userID, t)
}

func TestEnsureFresh_CallerCancelDoesNotLoseRotatedToken(t *testing.T) {
	profiles := repofake.NewProfiles()
	legacy := repofake.NewLegacy()
	store := userstore.New(profiles, legacy)
	require.NoError(t, store.UpdateTokens(context.Background(), 1, &userstore.TokenSet{
		AccessToken: "old", RefreshToken: "rt1", ExpiresAt: now.Unix() - 1,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeRefresher{
		resp: &upstream.TokenResponse{Tokens: userstore.TokenSet{
			AccessToken: "new", RefreshToken: "rt2", ExpiresAt: now.Unix() + 21600,
		}},
		after: cancel,
	}

	m := NewManager(ctxCheckingStore{store}, r, nil, WithRefreshTimeout(5*time.Second))
	m.now = func() time.Time { return now }

	got, err := m.EnsureFresh(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "rt2", got.RefreshToken)

	enhanced, err := profiles.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "rt2", enhanced.RefreshToken)
	flat, err := legacy.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "rt2", flat.RefreshToken)
}

func TestEnsureFresh_RefreshIsBoundedByTimeout(t *testing.T) {
	r := &fakeRefresher{resp: &upstream.TokenResponse{Tokens: userstore.TokenSet{AccessToken: "new", ExpiresAt: now.Unix() + 60}}}
	profiles := repofake.NewProfiles()
	store := userstore.New(profiles, nil)
	require.NoError(t, store.UpdateTokens(context.Background(), 1, &userstore.TokenSet{AccessToken: "old", RefreshToken: "rt1", ExpiresAt: now.Unix()}))

	var deadline time.Time
	m := NewManager(deadlineStore{Store: store, seen: &deadline}, r, nil, WithRefreshTimeout(time.Minute))
	m.now = func() time.Time { return now }

	_, err := m.EnsureFresh(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

type deadlineStore struct {
	*userstore.Store
	seen *time.Time
}

func (s deadlineStore) UpdateTokens(ctx context.Context, userID int64, t *userstore.TokenSet) error {
	*s.seen, _ = ctx.Deadline()
	return s.Store.UpdateTokens(ctx, userID, t)
}
