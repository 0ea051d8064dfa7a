package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agencydesk/internal/registration/domain"
	"github.com/smallbiznis/agencydesk/pkg/db"
	"gorm.io/gorm"
)

var sortColumns = map[domain.SortField]string{
	domain.SortSubmittedAt: "submitted_at",
	domain.SortName:        "first_name",
	domain.SortEmail:       "email",
	domain.SortStatus:      "status",
}

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, reg *domain.Registration) error {
	err := r.db.WithContext(ctx).Create(reg).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateEmail
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Registration, error) {
	var reg domain.Registration
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Registration, int64, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.Registration{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Position != "" {
		stmt = stmt.Where("LOWER(position) = ?", strings.ToLower(filter.Position))
	}
	if filter.Experience != "" {
		stmt = stmt.Where("experience = ?", filter.Experience)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[domain.SortSubmittedAt]
	}
	direction := " asc"
	if filter.SortDesc {
		direction = " desc"
	}
	stmt = stmt.Order(column + direction)
	if filter.SortBy == domain.SortName {
		stmt = stmt.Order("last_name" + direction)
	}
	stmt = stmt.Order("id" + direction).Offset(filter.Offset)
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var items []domain.Registration
	if err := stmt.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repo) Transition(ctx context.Context, id snowflake.ID, from, to domain.Status, fields map[string]any) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	tx := r.db.WithContext(ctx).Model(&domain.Registration{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		if db.IsDuplicateKeyErr(tx.Error) {
			return domain.ErrDuplicateEmail
		}
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrStatusConflict
}

func (r *repo) Delete(ctx context.Context, id snowflake.ID) error {
	tx := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Registration{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
