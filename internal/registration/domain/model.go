package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
)

const MaxNotesLength = 4000

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Registration is an applicant's submission. ActiveEmail mirrors Email while
// the record is pending or approved and is cleared on rejection; its unique
// index is what keeps two live applications from sharing an address.
type Registration struct {
	ID           snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FirstName    string       `gorm:"type:text;not null" json:"firstName"`
	LastName     string       `gorm:"type:text;not null" json:"lastName"`
	Email        string       `gorm:"type:varchar(320);not null;index" json:"email"`
	ActiveEmail  *string      `gorm:"type:varchar(320);uniqueIndex" json:"-"`
	Phone        string       `gorm:"type:varchar(64)" json:"phone,omitempty"`
	Position     string       `gorm:"type:text;not null" json:"position"`
	Experience   string       `gorm:"type:varchar(64);not null" json:"experience"`
	Skills       string       `gorm:"type:text;not null" json:"skills"`
	CoverLetter  string       `gorm:"type:text;not null" json:"coverLetter"`
	Availability string       `gorm:"type:text" json:"availability,omitempty"`
	PortfolioURL string       `gorm:"type:text" json:"portfolioUrl,omitempty"`
	LinkedInURL  string       `gorm:"column:linkedin_url;type:text" json:"linkedinUrl,omitempty"`
	GitHubURL    string       `gorm:"column:github_url;type:text" json:"githubUrl,omitempty"`
	Avatar       string       `gorm:"type:text" json:"avatar,omitempty"`
	Status       Status       `gorm:"type:varchar(16);not null;index" json:"status"`
	SubmittedAt  time.Time    `gorm:"not null;index" json:"submittedAt"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updatedAt"`
	ReviewedAt   *time.Time   `json:"reviewedAt,omitempty"`
	ReviewedBy   *string      `gorm:"type:varchar(320)" json:"reviewedBy,omitempty"`
	Notes        string       `gorm:"type:text" json:"notes,omitempty"`
}

func (Registration) TableName() string { return "team_registrations" }

func (r *Registration) FullName() string {
	return r.FirstName + " " + r.LastName
}

// NormalizeNotes trims reviewer notes and enforces MaxNotesLength.
func NormalizeNotes(raw string) (string, error) {
	notes := strings.TrimSpace(raw)
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return "", ErrNotesTooLong
	}
	return notes, nil
}
