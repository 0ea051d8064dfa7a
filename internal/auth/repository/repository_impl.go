package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, principal *domain.Principal) error {
	err := r.db.WithContext(ctx).Create(principal).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrPrincipalExists
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Principal, error) {
	var principal domain.Principal
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&principal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &principal, nil
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	var principal domain.Principal
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&principal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &principal, nil
}

func (r *repo) ListCreatedBefore(ctx context.Context, before time.Time, afterID snowflake.ID, limit int) ([]domain.Principal, error) {
	var principals []domain.Principal
	stmt := r.db.WithContext(ctx).Where("created_at < ? AND id > ?", before, afterID).Order("id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&principals).Error; err != nil {
		return nil, err
	}
	return principals, nil
}

func (r *repo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.Principal{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id snowflake.ID) error {
	tx := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Principal{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}
