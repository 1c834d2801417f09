// Package userstore owns the per-user records: upstream tokens, the profile
// and custom workouts. It keeps the enhanced records and the legacy token row
// consistent on every write.
package userstore

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Record sort keys in the enhanced layout.
const (
	SortKeyProfile       = "PROFILE"
	SortKeyTokens        = "TOKENS"
	SortKeyWorkoutPrefix = "WORKOUT#"
)

// PartitionKey is the enhanced partition key for a user.
func PartitionKey(userID int64) string {
	return fmt.Sprintf("USER#%d", userID)
}

// WorkoutSortKey is the enhanced sort key for a workout.
func WorkoutSortKey(workoutID string) string {
	return SortKeyWorkoutPrefix + workoutID
}

// TokenSet is an upstream OAuth token pair. ExpiresAt is in epoch seconds.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Expired reports whether the access token is unusable at now.
func (t *TokenSet) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// Athlete is the upstream identity snapshot kept on the profile.
type Athlete struct {
	ID            int64  `json:"id"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"firstname,omitempty"`
	LastName      string `json:"lastname,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`
	Sex           string `json:"sex,omitempty"`
	Premium       bool   `json:"premium"`
	Summit        bool   `json:"summit"`
	Profile       string `json:"profile,omitempty"`
	ProfileMedium string `json:"profile_medium,omitempty"`
}

// Subscription tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierPro     = "pro"
)

// ValidTier reports whether tier is an accepted subscription tier.
func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierPremium, TierPro:
		return true
	}
	return false
}

type Profile struct {
	UserID           int64          `json:"user_id"`
	Profile          Athlete        `json:"profile"`
	Preferences      map[string]any `json:"preferences"`
	Settings         map[string]any `json:"settings"`
	SubscriptionTier string         `json:"subscription_tier"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	LastLogin        time.Time      `json:"last_login"`
}

// AppDefaults are the app-local profile fields for a first login.
type AppDefaults struct {
	Preferences      map[string]any
	Settings         map[string]any
	SubscriptionTier string
}

// DefaultAppFields returns the defaults for a newly created profile.
func DefaultAppFields() AppDefaults {
	return AppDefaults{
		Preferences:      map[string]any{},
		Settings:         map[string]any{"theme": "light", "notifications": true},
		SubscriptionTier: TierFree,
	}
}

// ProfileUpdate carries the whitelisted mutable profile fields. Nil fields
// are left untouched.
type ProfileUpdate struct {
	Preferences      map[string]any
	Settings         map[string]any
	SubscriptionTier *string
}

// Empty reports whether the update carries no field.
func (u ProfileUpdate) Empty() bool {
	return u.Preferences == nil && u.Settings == nil && u.SubscriptionTier == nil
}

// Workout difficulties.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Workout struct {
	WorkoutID   string    `json:"workout_id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	Difficulty  string    `json:"difficulty"`
	Count       int       `json:"count"`
	WorkoutDate time.Time `json:"workout_date"`
	CreatedAt   time.Time `json:"created_at"`
}
