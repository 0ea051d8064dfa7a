package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeamMember Role = "team-member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeamMember
}

// AdminUser is the roster record of a principal allowed into the back office.
// ID is the principal id issued by the credential store.
type AdminUser struct {
	ID                 snowflake.ID  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Email              string        `gorm:"type:varchar(320);not null;index" json:"email"`
	DisplayName        string        `gorm:"type:text;not null" json:"displayName"`
	Role               Role          `gorm:"type:varchar(32);not null;index" json:"role"`
	AdminClass         string        `gorm:"type:varchar(64)" json:"adminClass,omitempty"`
	Position           string        `gorm:"type:text" json:"position,omitempty"`
	IsApproved         bool          `gorm:"not null;default:false" json:"isApproved"`
	TeamRegistrationID *snowflake.ID `gorm:"uniqueIndex" json:"teamRegistrationId,omitempty"`
	CreatedBy          string        `gorm:"type:varchar(64);not null" json:"createdBy"`
	CreatedByEmail     string        `gorm:"type:varchar(320)" json:"createdByEmail,omitempty"`
	PromotedBy         *string       `gorm:"type:varchar(64)" json:"promotedBy,omitempty"`
	PromotedByEmail    *string       `gorm:"type:varchar(320)" json:"promotedByEmail,omitempty"`
	PromotedAt         *time.Time    `json:"promotedAt,omitempty"`
	DemotedBy          *string       `gorm:"type:varchar(64)" json:"demotedBy,omitempty"`
	DemotedByEmail     *string       `gorm:"type:varchar(320)" json:"demotedByEmail,omitempty"`
	DemotedAt          *time.Time    `json:"demotedAt,omitempty"`
	LastLoginAt        *time.Time    `json:"lastLoginAt,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updatedAt"`
}

func (AdminUser) TableName() string { return "admin_users" }

// Actor is the authenticated caller, passed explicitly into every operation.
type Actor struct {
	ID    snowflake.ID
	Email string
	Role  Role
}

func ActorFromUser(user *AdminUser) Actor {
	return Actor{ID: user.ID, Email: user.Email, Role: user.Role}
}

func (a Actor) Audit() auditdomain.Actor {
	return auditdomain.Actor{
		Type:  auditdomain.ActorTypePrincipal,
		ID:    a.ID.String(),
		Email: a.Email,
	}
}
