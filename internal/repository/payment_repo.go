package repository

import (
	"context"
	"errors"

	"billsplit/internal/apperror"
	"billsplit/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Save(ctx context.Context, in model.CreatePaymentInput) (*model.Payment, error) {
	payment, err := model.NewPayment(in)
	if err != nil {
		return nil, err
	}
	if err := conn(ctx, r.db).Create(payment).Error; err != nil {
		return nil, translateWriteError(err, "Creator not found", "Failed to save payment")
	}
	return payment, nil
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id int64) (*model.Payment, error) {
	var payment model.Payment
	err := conn(ctx, r.db).Preload("Creator").Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, apperror.Database("Failed to find payment by ID", err)
	}
	return &payment, nil
}

func (r *GormPaymentRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error) {
	var payment model.Payment
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, apperror.Database("Failed to lock payment", err)
	}
	return &payment, nil
}

func (r *GormPaymentRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	err := conn(ctx, r.db).
		Model(&model.Payment{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return apperror.Database("Failed to update payment status", err)
	}
	return nil
}

func (r *GormPaymentRepository) ListByCreatorID(ctx context.Context, creatorID int64) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := conn(ctx, r.db).
		Preload("Creator").
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, apperror.Database("Failed to list payments", err)
	}
	return payments, nil
}

func (r *GormPaymentRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Payment, error) {
	if len(ids) == 0 {
		return []*model.Payment{}, nil
	}
	var payments []*model.Payment
	err := conn(ctx, r.db).
		Preload("Creator").
		Where("id IN ?", ids).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, apperror.Database("Failed to list payments", err)
	}
	return payments, nil
}

func (r *GormPaymentRepository) Delete(ctx context.Context, id int64) error {
	result := conn(ctx, r.db).Where("id = ?", id).Delete(&model.Payment{})
	if result.Error != nil {
		return apperror.Database("Failed to delete payment", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
