package models

import "time"

// ProfileItem is one record of the composite-key user table. PK is
// "USER#<id>", SK is PROFILE, TOKENS or WORKOUT#<uuid>; Data holds the
// record as JSON.
type ProfileItem struct {
	PK        string `gorm:"column:pk;primaryKey;size:64"`
	SK        string `gorm:"column:sk;primaryKey;size:128"`
	Data      string `gorm:"column:data;type:text;not null"`
	UpdatedAt time.Time
}

func (ProfileItem) TableName() string { return "user_profiles" }
