package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pysugar/coach-connect/internal/db/models"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// ProfileRepo stores the enhanced records in the composite-key
// user_profiles table.
type ProfileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) get(ctx context.Context, pk, sk string, dst any) error {
	var item models.ProfileItem
	err := r.db.WithContext(ctx).Where("pk = ? AND sk = ?", pk, sk).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return userstore.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(item.Data), dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", pk, sk, err)
	}
	return nil
}

func (r *ProfileRepo) put(ctx context.Context, pk, sk string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", pk, sk, err)
	}
	item := models.ProfileItem{PK: pk, SK: sk, Data: string(data)}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pk"}, {Name: "sk"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&item).Error
}

func (r *ProfileRepo) delete(ctx context.Context, pk, sk string) (int64, error) {
	res := r.db.WithContext(ctx).Where("pk = ? AND sk = ?", pk, sk).Delete(&models.ProfileItem{})
	return res.RowsAffected, res.Error
}

func (r *ProfileRepo) GetProfile(ctx context.Context, userID int64) (*userstore.Profile, error) {
	var p userstore.Profile
	if err := r.get(ctx, userstore.PartitionKey(userID), userstore.SortKeyProfile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) PutProfile(ctx context.Context, p *userstore.Profile) error {
	return r.put(ctx, userstore.PartitionKey(p.UserID), userstore.SortKeyProfile, p)
}

func (r *ProfileRepo) DeleteProfile(ctx context.Context, userID int64) error {
	_, err := r.delete(ctx, userstore.PartitionKey(userID), userstore.SortKeyProfile)
	return err
}

func (r *ProfileRepo) GetTokens(ctx context.Context, userID int64) (*userstore.TokenSet, error) {
	var t userstore.TokenSet
	if err := r.get(ctx, userstore.PartitionKey(userID), userstore.SortKeyTokens, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ProfileRepo) PutTokens(ctx context.Context, userID int64, t *userstore.TokenSet) error {
	return r.put(ctx, userstore.PartitionKey(userID), userstore.SortKeyTokens, t)
}

func (r *ProfileRepo) DeleteTokens(ctx context.Context, userID int64) error {
	_, err := r.delete(ctx, userstore.PartitionKey(userID), userstore.SortKeyTokens)
	return err
}

func (r *ProfileRepo) PutWorkout(ctx context.Context, w *userstore.Workout) error {
	return r.put(ctx, userstore.PartitionKey(w.UserID), userstore.WorkoutSortKey(w.WorkoutID), w)
}

func (r *ProfileRepo) ListWorkouts(ctx context.Context, userID int64) ([]userstore.Workout, error) {
	var items []models.ProfileItem
	err := r.db.WithContext(ctx).
		Where("pk = ? AND sk LIKE ?", userstore.PartitionKey(userID), userstore.SortKeyWorkoutPrefix+"%").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	workouts := make([]userstore.Workout, 0, len(items))
	for _, item := range items {
		var w userstore.Workout
		if err := json.Unmarshal([]byte(item.Data), &w); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", item.PK, item.SK, err)
		}
		workouts = append(workouts, w)
	}
	return workouts, nil
}

func (r *ProfileRepo) DeleteWorkout(ctx context.Context, userID int64, workoutID string) error {
	n, err := r.delete(ctx, userstore.PartitionKey(userID), userstore.WorkoutSortKey(workoutID))
	if err != nil {
		return err
	}
	if n == 0 {
		return userstore.ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) DeleteWorkouts(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("pk = ? AND sk LIKE ?", userstore.PartitionKey(userID), userstore.SortKeyWorkoutPrefix+"%").
		Delete(&models.ProfileItem{}).Error
}
