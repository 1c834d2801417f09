package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pysugar/coach-connect/internal/db/models"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// LegacyTokenRepo stores the flat user_tokens row.
type LegacyTokenRepo struct {
	db *gorm.DB
}

func NewLegacyTokenRepo(db *gorm.DB) *LegacyTokenRepo {
	return &LegacyTokenRepo{db: db}
}

func (r *LegacyTokenRepo) Get(ctx context.Context, userID int64) (*userstore.TokenSet, error) {
	var row models.UserToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &userstore.TokenSet{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

func (r *LegacyTokenRepo) Upsert(ctx context.Context, userID int64, t *userstore.TokenSet) error {
	row := models.UserToken{
		UserID:       userID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (r *LegacyTokenRepo) Delete(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.UserToken{}).Error
}
