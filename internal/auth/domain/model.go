// Package domain contains the credential store types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Principal is a login identity. It owns the password hash and nothing else;
// roles live on the roster.
type Principal struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	Email               string       `gorm:"type:varchar(320);not null;uniqueIndex" json:"email"`
	DisplayName         string       `gorm:"type:text;not null" json:"displayName"`
	PasswordHash        string       `gorm:"type:text;not null" json:"-"`
	Disabled            bool         `gorm:"not null;default:false" json:"disabled"`
	LastPasswordChanged *time.Time   `json:"lastPasswordChanged,omitempty"`
	CreatedAt           time.Time    `gorm:"not null;index" json:"createdAt"`
	UpdatedAt           time.Time    `gorm:"not null" json:"updatedAt"`
}

func (Principal) TableName() string { return "principals" }
