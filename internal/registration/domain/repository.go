package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type SortField string

const (
	SortSubmittedAt SortField = "submittedAt"
	SortName        SortField = "name"
	SortEmail       SortField = "email"
	SortStatus      SortField = "status"
)

type ListFilter struct {
	Status     Status
	Position   string
	Experience string
	Search     string
	SortBy     SortField
	SortDesc   bool
	Offset     int
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, reg *Registration) error
	FindByID(ctx context.Context, id snowflake.ID) (*Registration, error)
	List(ctx context.Context, filter ListFilter) ([]Registration, int64, error)

	// Transition moves the record from one status to another and applies
	// fields in the same conditional update. ErrStatusConflict means the row
	// exists but is no longer in status from.
	Transition(ctx context.Context, id snowflake.ID, from, to Status, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
}
