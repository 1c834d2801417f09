// Package redisrepo stores the enhanced user records in Redis. Each user is
// one hash keyed by "<prefix>USER#<id>"; the hash field is the record's sort
// key and the value its JSON document.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pysugar/coach-connect/internal/userstore"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Repo implements userstore.ProfileRepo.
type Repo struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New connects to the Redis URL and verifies the connection.
func New(ctx context.Context, redisURL, keyPrefix string) (*Repo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, keyPrefix), nil
}

// NewWithClient wraps an existing client, e.g. one pointed at miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Repo {
	return &Repo{client: client, keyPrefix: keyPrefix}
}

func (r *Repo) Close() error {
	return r.client.Close()
}

func (r *Repo) key(userID int64) string {
	return r.keyPrefix + userstore.PartitionKey(userID)
}

func (r *Repo) get(ctx context.Context, userID int64, field string, dst any) error {
	raw, err := r.client.HGet(ctx, r.key(userID), field).Result()
	if errors.Is(err, redis.Nil) {
		return userstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis hget %s: %w", field, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	return nil
}

func (r *Repo) put(ctx context.Context, userID int64, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	if err := r.client.HSet(ctx, r.key(userID), field, data).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", field, err)
	}
	return nil
}

func (r *Repo) del(ctx context.Context, userID int64, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := r.client.HDel(ctx, r.key(userID), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel: %w", err)
	}
	return n, nil
}

func (r *Repo) GetProfile(ctx context.Context, userID int64) (*userstore.Profile, error) {
	var p userstore.Profile
	if err := r.get(ctx, userID, userstore.SortKeyProfile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) PutProfile(ctx context.Context, p *userstore.Profile) error {
	return r.put(ctx, p.UserID, userstore.SortKeyProfile, p)
}

func (r *Repo) DeleteProfile(ctx context.Context, userID int64) error {
	_, err := r.del(ctx, userID, userstore.SortKeyProfile)
	return err
}

func (r *Repo) GetTokens(ctx context.Context, userID int64) (*userstore.TokenSet, error) {
	var t userstore.TokenSet
	if err := r.get(ctx, userID, userstore.SortKeyTokens, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) PutTokens(ctx context.Context, userID int64, t *userstore.TokenSet) error {
	return r.put(ctx, userID, userstore.SortKeyTokens, t)
}

func (r *Repo) DeleteTokens(ctx context.Context, userID int64) error {
	_, err := r.del(ctx, userID, userstore.SortKeyTokens)
	return err
}

func (r *Repo) PutWorkout(ctx context.Context, w *userstore.Workout) error {
	return r.put(ctx, w.UserID, userstore.WorkoutSortKey(w.WorkoutID), w)
}

func (r *Repo) ListWorkouts(ctx context.Context, userID int64) ([]userstore.Workout, error) {
	all, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	workouts := make([]userstore.Workout, 0, len(all))
	for field, raw := range all {
		if !strings.HasPrefix(field, userstore.SortKeyWorkoutPrefix) {
			continue
		}
		var w userstore.Workout
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field, err)
		}
		workouts = append(workouts, w)
	}
	return workouts, nil
}

func (r *Repo) DeleteWorkout(ctx context.Context, userID int64, workoutID string) error {
	n, err := r.del(ctx, userID, userstore.WorkoutSortKey(workoutID))
	if err != nil {
		return err
	}
	if n == 0 {
		return userstore.ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteWorkouts(ctx context.Context, userID int64) error {
	fields, err := r.client.HKeys(ctx, r.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis hkeys: %w", err)
	}
	var workoutFields []string
	for _, f := range fields {
		if strings.HasPrefix(f, userstore.SortKeyWorkoutPrefix) {
			workoutFields = append(workoutFields, f)
		}
	}
	_, err = r.del(ctx, userID, workoutFields...)
	return err
}
