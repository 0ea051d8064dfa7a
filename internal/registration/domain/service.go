package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Registration, error)
	Get(ctx context.Context, id snowflake.ID) (*Registration, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	UpdateNotes(ctx context.Context, actor rosterdomain.Actor, id snowflake.ID, notes string) (*Registration, error)
}

type SubmitRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Position     string `json:"position"`
	Experience   string `json:"experience"`
	Skills       string `json:"skills"`
	CoverLetter  string `json:"coverLetter"`
	Availability string `json:"availability"`
	PortfolioURL string `json:"portfolioUrl"`
	LinkedInURL  string `json:"linkedinUrl"`
	GitHubURL    string `json:"githubUrl"`
	Avatar       string `json:"avatar"`
}

type ListRequest struct {
	pagination.Pagination
	Status     string
	Position   string
	Experience string
	Search     string
	SortBy     string
	SortOrder  string
}

type ListResponse struct {
	Registrations []Registration
	PageInfo      pagination.PageInfo
}
