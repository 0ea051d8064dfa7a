package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActorTypePrincipal = "principal"
	ActorTypeApplicant = "applicant"
	ActorTypeSystem    = "system"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ActorType  string            `gorm:"type:varchar(32);not null" json:"actorType"`
	ActorID    *string           `gorm:"type:varchar(64);index" json:"actorId,omitempty"`
	ActorEmail *string           `gorm:"type:varchar(320)" json:"actorEmail,omitempty"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(64);not null" json:"targetType"`
	TargetID   *string           `gorm:"type:varchar(64);index" json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	RequestID  *string           `gorm:"type:varchar(64)" json:"requestId,omitempty"`
	IPAddress  *string           `gorm:"type:varchar(64)" json:"ipAddress,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"userAgent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Actor identifies who performed an audited action.
type Actor struct {
	Type  string
	ID    string
	Email string
}

func SystemActor(name string) Actor {
	return Actor{Type: ActorTypeSystem, ID: name}
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	Offset     int
	Limit      int
}
