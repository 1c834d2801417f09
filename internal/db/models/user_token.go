package models

// UserToken is the flat legacy token row, one per user.
type UserToken struct {
	UserID       int64  `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	AccessToken  string `gorm:"column:access_token;not null"`
	RefreshToken string `gorm:"column:refresh_token;not null"`
	ExpiresAt    int64  `gorm:"column:expires_at;not null"` // epoch seconds
}

func (UserToken) TableName() string { return "user_tokens" }
