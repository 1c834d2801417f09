package userstore_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/userstore"
	"github.com/pysugar/coach-connect/internal/userstore/repofake"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*userstore.Store, *repofake.Profiles, *repofake.Legacy) {
	t.Helper()
	profiles := repofake.NewProfiles()
	legacy := repofake.NewLegacy()
	s := userstore.New(profiles, legacy, userstore.WithClock(func() time.Time { return fixedNow }))
	return s, profiles, legacy
}

func tokens(access string) *userstore.TokenSet {
	return &userstore.TokenSet{AccessToken: access, RefreshToken: "r-" + access, ExpiresAt: fixedNow.Unix() + 3600, Scope: "read"}
}

func TestSaveProfileAndTokens_WritesBothShapes(t *testing.T) {
	ctx := context.Background()
	s, profiles, legacy := newStore(t)

	p, err := s.SaveProfileAndTokens(ctx, 42, userstore.Athlete{ID: 42, FirstName: "Ana"}, tokens("a1"), userstore.DefaultAppFields())
	require.NoError(t, err)
	assert.Equal(t, userstore.TierFree, p.SubscriptionTier)
	assert.Equal(t, "light", p.Settings["theme"])
	assert.Equal(t, fixedNow, p.CreatedAt)

	enhanced, err := profiles.GetTokens(ctx, 42)
	require.NoError(t, err)
	flat, err := legacy.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, enhanced.AccessToken, flat.AccessToken)
	assert.Equal(t, enhanced.RefreshToken, flat.RefreshToken)
	assert.Equal(t, enhanced.ExpiresAt, flat.ExpiresAt)
}

func TestSaveProfileAndTokens_PreservesAppFields(t *testing.T) {
	ctx := context.Background()
	s, profiles, _ := newStore(t)

	created := fixedNow.Add(-48 * time.Hour)
	require.NoError(t, profiles.PutProfile(ctx, &userstore.Profile{
		UserID:           7,
		Profile:          userstore.Athlete{ID: 7, City: "Old"},
		Preferences:      map[string]any{"units": "metric"},
		Settings:         map[string]any{"theme": "dark"},
		SubscriptionTier: userstore.TierPro,
		CreatedAt:        created,
	}))

	p, err := s.SaveProfileAndTokens(ctx, 7, userstore.Athlete{ID: 7, City: "New"}, tokens("a2"), userstore.DefaultAppFields())
	require.NoError(t, err)

	assert.Equal(t, "New", p.Profile.City)
	assert.Equal(t, userstore.TierPro, p.SubscriptionTier)
	assert.Equal(t, "dark", p.Settings["theme"])
	assert.Equal(t, "metric", p.Preferences["units"])
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, fixedNow, p.LastLogin)
}

func TestUpdateTokens_LegacyFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	profiles := repofake.NewProfiles()
	legacy := repofake.NewLegacy()
	legacy.Err = errors.New("disk full")
	m := metrics.New()
	s := userstore.New(profiles, legacy, userstore.WithMetrics(m))

	require.NoError(t, s.UpdateTokens(ctx, 1, tokens("fresh")))

	got, err := profiles.GetTokens(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	expected := `
# HELP coachconnect_legacy_sync_failures_total Legacy token row writes that failed after the authoritative write.
# TYPE coachconnect_legacy_sync_failures_total counter
coachconnect_legacy_sync_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "coachconnect_legacy_sync_failures_total"))
}

func TestUpdateTokens_AuthoritativeFailureIsReturned(t *testing.T) {
	s, profiles, legacy := newStore(t)
	profiles.Err = errors.New("unavailable")

	err := s.UpdateTokens(context.Background(), 1, tokens("x"))
	require.Error(t, err)
	assert.Zero(t, legacy.Upserts, "legacy row must not run ahead of the authoritative record")
}

func TestUpdateTokens_DoesNotTouchProfile(t *testing.T) {
	ctx := context.Background()
	s, profiles, _ := newStore(t)
	_, err := s.SaveProfileAndTokens(ctx, 3, userstore.Athlete{ID: 3, FirstName: "Kim"}, tokens("a"), userstore.DefaultAppFields())
	require.NoError(t, err)

	require.NoError(t, s.UpdateTokens(ctx, 3, tokens("b")))

	p, err := profiles.GetProfile(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Kim", p.Profile.FirstName)
}

func TestGetTokens_LegacyFallback(t *testing.T) {
	ctx := context.Background()
	s, _, legacy := newStore(t)

	_, err := s.GetTokens(ctx, 9)
	assert.ErrorIs(t, err, userstore.ErrNotFound)

	require.NoError(t, legacy.Upsert(ctx, 9, tokens("old")))
	got, err := s.GetTokens(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "old", got.AccessToken)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	s, profiles, _ := newStore(t)

	tier := userstore.TierPremium
	_, err := s.UpdateProfile(ctx, 5, userstore.ProfileUpdate{SubscriptionTier: &tier})
	assert.ErrorIs(t, err, userstore.ErrNotFound)
	_, err = profiles.GetProfile(ctx, 5)
	assert.ErrorIs(t, err, userstore.ErrNotFound, "missing user must not be created")

	_, err = s.SaveProfileAndTokens(ctx, 5, userstore.Athlete{ID: 5}, tokens("a"), userstore.DefaultAppFields())
	require.NoError(t, err)

	p, err := s.UpdateProfile(ctx, 5, userstore.ProfileUpdate{
		SubscriptionTier: &tier,
		Settings:         map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)
	assert.Equal(t, userstore.TierPremium, p.SubscriptionTier)
	assert.Equal(t, "dark", p.Settings["theme"])
	assert.NotNil(t, p.Preferences)

	bad := "platinum"
	_, err = s.UpdateProfile(ctx, 5, userstore.ProfileUpdate{SubscriptionTier: &bad})
	var verr *userstore.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s, _, legacy := newStore(t)

	_, err := s.SaveProfileAndTokens(ctx, 11, userstore.Athlete{ID: 11}, tokens("a"), userstore.DefaultAppFields())
	require.NoError(t, err)
	for _, name := range []string{"one", "two"} {
		_, err := s.CreateWorkout(ctx, 11, userstore.NewWorkout{Name: name})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteAll(ctx, 11))

	_, err = s.GetProfile(ctx, 11)
	assert.ErrorIs(t, err, userstore.ErrNotFound)
	_, err = s.GetTokens(ctx, 11)
	assert.ErrorIs(t, err, userstore.ErrNotFound)
	ws, err := s.ListWorkouts(ctx, 11)
	require.NoError(t, err)
	assert.Empty(t, ws)
	_, err = legacy.Get(ctx, 11)
	assert.ErrorIs(t, err, userstore.ErrNotFound)
}

func TestDeleteAll_ReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	s, _, legacy := newStore(t)
	require.NoError(t, legacy.Upsert(ctx, 12, tokens("a")))
	boom := errors.New("boom")
	legacy.Err = boom

	err := s.DeleteAll(ctx, 12)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCreateWorkout(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	w, err := s.CreateWorkout(ctx, 1, userstore.NewWorkout{Name: "Tempo Run", Difficulty: "hard", Duration: 1800})
	require.NoError(t, err)
	assert.NotEmpty(t, w.WorkoutID)
	assert.Equal(t, "hard", w.Difficulty)
	assert.Equal(t, 1800, w.Duration)

	w, err = s.CreateWorkout(ctx, 1, userstore.NewWorkout{Name: "Easy"})
	require.NoError(t, err)
	assert.Equal(t, userstore.DifficultyMedium, w.Difficulty)
	assert.Zero(t, w.Count)
	assert.Equal(t, fixedNow, w.WorkoutDate)

	tests := []struct {
		name string
		in   userstore.NewWorkout
	}{
		{"missing name", userstore.NewWorkout{}},
		{"bad difficulty", userstore.NewWorkout{Name: "x", Difficulty: "extreme"}},
		{"negative duration", userstore.NewWorkout{Name: "x", Duration: -1}},
		{"negative count", userstore.NewWorkout{Name: "x", Count: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateWorkout(ctx, 2, tt.in)
			var verr *userstore.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	ws, err := s.ListWorkouts(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, ws, "rejected workouts are not stored")
}

func TestListWorkouts_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	for i, name := range []string{"old", "newest", "middle"} {
		offsets := []time.Duration{-72 * time.Hour, 0, -24 * time.Hour}
		_, err := s.CreateWorkout(ctx, 4, userstore.NewWorkout{Name: name, WorkoutDate: fixedNow.Add(offsets[i])})
		require.NoError(t, err)
	}

	ws, err := s.ListWorkouts(ctx, 4)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	assert.Equal(t, "newest", ws[0].Name)
	assert.Equal(t, "middle", ws[1].Name)
	assert.Equal(t, "old", ws[2].Name)
}

func TestDeleteWorkout(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	w, err := s.CreateWorkout(ctx, 1, userstore.NewWorkout{Name: "Intervals"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteWorkout(ctx, 1, w.WorkoutID))
	assert.ErrorIs(t, s.DeleteWorkout(ctx, 1, w.WorkoutID), userstore.ErrNotFound)
}
