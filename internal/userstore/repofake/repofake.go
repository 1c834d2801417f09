// Package repofake provides in-memory userstore repositories for tests.
package repofake

import (
	"context"
	"sync"

	"github.com/pysugar/coach-connect/internal/userstore"
)

// Profiles is an in-memory userstore.ProfileRepo. Set Err to make every
// call fail.
type Profiles struct {
	mu       sync.Mutex
	profiles map[int64]userstore.Profile
	tokens   map[int64]userstore.TokenSet
	workouts map[int64]map[string]userstore.Workout

	Err       error
	TokenPuts int
}

func NewProfiles() *Profiles {
	return &Profiles{
		profiles: make(map[int64]userstore.Profile),
		tokens:   make(map[int64]userstore.TokenSet),
		workouts: make(map[int64]map[string]userstore.Workout),
	}
}

func (f *Profiles) GetProfile(_ context.Context, userID int64) (*userstore.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return &p, nil
}

func (f *Profiles) PutProfile(_ context.Context, p *userstore.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.profiles[p.UserID] = *p
	return nil
}

func (f *Profiles) DeleteProfile(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.profiles, userID)
	return nil
}

func (f *Profiles) GetTokens(_ context.Context, userID int64) (*userstore.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t, ok := f.tokens[userID]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return &t, nil
}

func (f *Profiles) PutTokens(_ context.Context, userID int64, t *userstore.TokenSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.tokens[userID] = *t
	f.TokenPuts++
	return nil
}

func (f *Profiles) DeleteTokens(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.tokens, userID)
	return nil
}

func (f *Profiles) PutWorkout(_ context.Context, w *userstore.Workout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if f.workouts[w.UserID] == nil {
		f.workouts[w.UserID] = make(map[string]userstore.Workout)
	}
	f.workouts[w.UserID][w.WorkoutID] = *w
	return nil
}

func (f *Profiles) ListWorkouts(_ context.Context, userID int64) ([]userstore.Workout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]userstore.Workout, 0, len(f.workouts[userID]))
	for _, w := range f.workouts[userID] {
		out = append(out, w)
	}
	return out, nil
}

func (f *Profiles) DeleteWorkout(_ context.Context, userID int64, workoutID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.workouts[userID][workoutID]; !ok {
		return userstore.ErrNotFound
	}
	delete(f.workouts[userID], workoutID)
	return nil
}

func (f *Profiles) DeleteWorkouts(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.workouts, userID)
	return nil
}

// Legacy is an in-memory userstore.LegacyTokenRepo.
type Legacy struct {
	mu   sync.Mutex
	rows map[int64]userstore.TokenSet

	Err     error
	Upserts int
}

func NewLegacy() *Legacy {
	return &Legacy{rows: make(map[int64]userstore.TokenSet)}
}

func (f *Legacy) Get(_ context.Context, userID int64) (*userstore.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t, ok := f.rows[userID]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return &t, nil
}

func (f *Legacy) Upsert(_ context.Context, userID int64, t *userstore.TokenSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.rows[userID] = userstore.TokenSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
	f.Upserts++
	return nil
}

func (f *Legacy) Delete(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.rows, userID)
	return nil
}
