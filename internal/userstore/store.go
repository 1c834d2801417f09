package userstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
)

// Store is the only writer of user tokens. Every token write goes to the
// enhanced repo first, then to the legacy row.
type Store struct {
	repo    ProfileRepo
	legacy  LegacyTokenRepo
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Store)

// WithMetrics records legacy sync failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a Store. legacy may be nil once the legacy table is retired.
func New(repo ProfileRepo, legacy LegacyTokenRepo, opts ...Option) *Store {
	s := &Store{repo: repo, legacy: legacy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetTokens reads the enhanced token record, falling back to the legacy row
// for users stored before the enhanced layout existed.
func (s *Store) GetTokens(ctx context.Context, userID int64) (*TokenSet, error) {
	t, err := s.repo.GetTokens(ctx, userID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get tokens: %w", err)
	}
	if s.legacy == nil {
		return nil, ErrNotFound
	}

	t, err = s.legacy.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get legacy tokens: %w", err)
	}
	logging.FromContext(ctx).Debug().Int64("user_id", userID).Msg("tokens served from legacy row")
	return t, nil
}

// SaveProfileAndTokens records a completed OAuth exchange. An existing
// profile keeps its app-local fields and creation time.
func (s *Store) SaveProfileAndTokens(ctx context.Context, userID int64, athlete Athlete, tokens *TokenSet, defaults AppDefaults) (*Profile, error) {
	now := s.now().UTC()

	p, err := s.repo.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		p = &Profile{
			UserID:           userID,
			Preferences:      defaults.Preferences,
			Settings:         defaults.Settings,
			SubscriptionTier: defaults.SubscriptionTier,
			CreatedAt:        now,
		}
	case err != nil:
		return nil, fmt.Errorf("load profile: %w", err)
	}
	p.Profile = athlete
	p.UpdatedAt = now
	p.LastLogin = now

	if err := s.repo.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("put profile: %w", err)
	}
	if err := s.repo.PutTokens(ctx, userID, tokens); err != nil {
		return nil, fmt.Errorf("put tokens: %w", err)
	}
	s.syncLegacy(ctx, userID, tokens)
	return p, nil
}

// UpdateTokens is the refresh-path write. The profile record is not touched.
func (s *Store) UpdateTokens(ctx context.Context, userID int64, tokens *TokenSet) error {
	if err := s.repo.PutTokens(ctx, userID, tokens); err != nil {
		return fmt.Errorf("put tokens: %w", err)
	}
	s.syncLegacy(ctx, userID, tokens)
	return nil
}

func (s *Store) syncLegacy(ctx context.Context, userID int64, tokens *TokenSet) {
	if s.legacy == nil {
		return
	}
	if err := s.legacy.Upsert(ctx, userID, tokens); err != nil {
		s.metrics.LegacySyncFailed()
		logging.FromContext(ctx).Warn().Err(err).
			Int64("user_id", userID).
			Str("access_token", logging.MaskToken(tokens.AccessToken)).
			Msg("legacy token sync failed")
	}
}

func (s *Store) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile applies the provided fields. Nothing is written when the
// profile does not exist.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (*Profile, error) {
	if upd.SubscriptionTier != nil && !ValidTier(*upd.SubscriptionTier) {
		return nil, &ValidationError{Message: "Invalid subscription tier"}
	}
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Preferences != nil {
		p.Preferences = upd.Preferences
	}
	if upd.Settings != nil {
		p.Settings = upd.Settings
	}
	if upd.SubscriptionTier != nil {
		p.SubscriptionTier = *upd.SubscriptionTier
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("put profile: %w", err)
	}
	return p, nil
}

// DeleteAll removes every record of the user. Each step runs even when an
// earlier one failed; the joined error lists what could not be removed.
func (s *Store) DeleteAll(ctx context.Context, userID int64) error {
	var errs []error
	if err := s.repo.DeleteProfile(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("delete profile: %w", err))
	}
	if err := s.repo.DeleteTokens(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("delete tokens: %w", err))
	}
	if err := s.repo.DeleteWorkouts(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("delete workouts: %w", err))
	}
	if s.legacy != nil {
		if err := s.legacy.Delete(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("delete legacy tokens: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewWorkout is the caller-supplied part of a workout. Zero values take the
// defaults: medium difficulty, zero duration and count, dated now.
type NewWorkout struct {
	Name        string
	Description string
	Duration    int
	Difficulty  string
	Count       int
	WorkoutDate time.Time
}

// ValidationError reports rejected caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (in NewWorkout) validate() error {
	if in.Name == "" {
		return &ValidationError{Message: "Name is required"}
	}
	if in.Difficulty != "" && !ValidDifficulty(in.Difficulty) {
		return &ValidationError{Message: "Difficulty must be one of: easy, medium, hard"}
	}
	if in.Duration < 0 {
		return &ValidationError{Message: "Duration must be a non-negative number"}
	}
	if in.Count < 0 {
		return &ValidationError{Message: "Count must be a non-negative number"}
	}
	return nil
}

func (s *Store) CreateWorkout(ctx context.Context, userID int64, in NewWorkout) (*Workout, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	w := &Workout{
		WorkoutID:   uuid.NewString(),
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Duration:    in.Duration,
		Difficulty:  in.Difficulty,
		Count:       in.Count,
		WorkoutDate: in.WorkoutDate,
		CreatedAt:   now,
	}
	if w.Difficulty == "" {
		w.Difficulty = DifficultyMedium
	}
	if w.WorkoutDate.IsZero() {
		w.WorkoutDate = now
	}
	if err := s.repo.PutWorkout(ctx, w); err != nil {
		return nil, fmt.Errorf("put workout: %w", err)
	}
	return w, nil
}

// ListWorkouts returns the user's workouts, newest workout date first.
func (s *Store) ListWorkouts(ctx context.Context, userID int64) ([]Workout, error) {
	ws, err := s.repo.ListWorkouts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	sort.SliceStable(ws, func(i, j int) bool {
		return ws[i].WorkoutDate.After(ws[j].WorkoutDate)
	})
	return ws, nil
}

func (s *Store) DeleteWorkout(ctx context.Context, userID int64, workoutID string) error {
	err := s.repo.DeleteWorkout(ctx, userID, workoutID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete workout: %w", err)
	}
	return err
}
