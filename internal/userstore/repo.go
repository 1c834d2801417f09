package userstore

import "context"

// ProfileRepo persists the enhanced composite-key records. It is the
// authoritative copy. Getters return ErrNotFound for missing records and
// deletes of missing records are not errors unless stated.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	PutProfile(ctx context.Context, p *Profile) error
	DeleteProfile(ctx context.Context, userID int64) error

	GetTokens(ctx context.Context, userID int64) (*TokenSet, error)
	PutTokens(ctx context.Context, userID int64, t *TokenSet) error
	DeleteTokens(ctx context.Context, userID int64) error

	PutWorkout(ctx context.Context, w *Workout) error
	ListWorkouts(ctx context.Context, userID int64) ([]Workout, error)
	// DeleteWorkout returns ErrNotFound when the workout does not exist.
	DeleteWorkout(ctx context.Context, userID int64, workoutID string) error
	DeleteWorkouts(ctx context.Context, userID int64) error
}

// LegacyTokenRepo persists the flat one-row-per-user token record kept for
// older readers.
type LegacyTokenRepo interface {
	Get(ctx context.Context, userID int64) (*TokenSet, error)
	Upsert(ctx context.Context, userID int64, t *TokenSet) error
	Delete(ctx context.Context, userID int64) error
}
