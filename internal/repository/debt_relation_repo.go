package repository

import (
	"context"
	"errors"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"

	"gorm.io/gorm"
)

type GormDebtRelationRepository struct {
	db *gorm.DB
	tx *GormTransactor
}

func NewDebtRelationRepository(db *gorm.DB) *GormDebtRelationRepository {
	return &GormDebtRelationRepository{db: db, tx: NewGormTransactor(db)}
}

// SaveMany 在调用方的事务中批量写入；调用方没有事务时自行开启一个
func (r *GormDebtRelationRepository) SaveMany(ctx context.Context, inputs []model.CreateDebtRelationInput) ([]*model.DebtRelation, error) {
	if len(inputs) == 0 {
		return []*model.DebtRelation{}, nil
	}

	rows := make([]*model.DebtRelation, 0, len(inputs))
	for _, in := range inputs {
		row, err := model.NewDebtRelation(in)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return conn(ctx, r.db).Create(&rows).Error
	})
	if err != nil {
		return nil, translateWriteError(err, "Payment or debtor not found", "Failed to save debt relations")
	}
	return rows, nil
}

func (r *GormDebtRelationRepository) FetchByPaymentID(ctx context.Context, paymentID int64) ([]*model.DebtRelation, error) {
	var relations []*model.DebtRelation
	err := conn(ctx, r.db).
		Preload("Debtor").
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&relations).Error
	if err != nil {
		return nil, apperror.Database("Failed to fetch debt relations by payment ID", err)
	}
	return relations, nil
}

func (r *GormDebtRelationRepository) FetchByPaymentIDs(ctx context.Context, paymentIDs []int64) ([]*model.DebtRelation, error) {
	if len(paymentIDs) == 0 {
		return []*model.DebtRelation{}, nil
	}
	var relations []*model.DebtRelation
	err := conn(ctx, r.db).
		Preload("Debtor").
		Where("payment_id IN ?", paymentIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&relations).Error
	if err != nil {
		return nil, apperror.Database("Failed to fetch debt relations by payment IDs", err)
	}
	return relations, nil
}

func (r *GormDebtRelationRepository) FindByID(ctx context.Context, id int64) (*model.DebtRelation, error) {
	var relation model.DebtRelation
	err := conn(ctx, r.db).Where("id = ?", id).First(&relation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDebtRelationNotFound
		}
		return nil, apperror.Database("Failed to find debt relation by ID", err)
	}
	return &relation, nil
}

func (r *GormDebtRelationRepository) UpdateStatus(ctx context.Context, id int64, from, to string, paidAt *time.Time) error {
	result := conn(ctx, r.db).
		Model(&model.DebtRelation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":  to,
			"paid_at": paidAt,
		})
	if result.Error != nil {
		return apperror.Database("Failed to update debt relation status", result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *GormDebtRelationRepository) ListByDebtorID(ctx context.Context, debtorID int64) ([]*model.DebtRelation, error) {
	var relations []*model.DebtRelation
	err := conn(ctx, r.db).
		Preload("Payment").
		Preload("Payment.Creator").
		Where("debtor_id = ?", debtorID).
		Order("created_at DESC").
		Find(&relations).Error
	if err != nil {
		return nil, apperror.Database("Failed to list debt relations", err)
	}
	return relations, nil
}

func (r *GormDebtRelationRepository) ListAwaitingByDebtorID(ctx context.Context, debtorID int64) ([]*model.DebtRelation, error) {
	var relations []*model.DebtRelation
	err := conn(ctx, r.db).
		Preload("Payment").
		Preload("Payment.Creator").
		Where("debtor_id = ? AND status = ?", debtorID, model.StatusAwaiting).
		Order("created_at DESC").
		Find(&relations).Error
	if err != nil {
		return nil, apperror.Database("Failed to list awaiting debt relations", err)
	}
	return relations, nil
}

func (r *GormDebtRelationRepository) ListAwaitingByCreatorID(ctx context.Context, creatorID int64) ([]*model.DebtRelation, error) {
	var relations []*model.DebtRelation
	err := conn(ctx, r.db).
		Joins("JOIN payment ON payment.id = debt_relation.payment_id").
		Preload("Payment").
		Preload("Debtor").
		Where("payment.creator_id = ? AND debt_relation.status = ?", creatorID, model.StatusAwaiting).
		Order("debt_relation.created_at DESC").
		Find(&relations).Error
	if err != nil {
		return nil, apperror.Database("Failed to list awaiting debt relations", err)
	}
	return relations, nil
}

func (r *GormDebtRelationRepository) DeleteByPaymentID(ctx context.Context, paymentID int64) error {
	err := conn(ctx, r.db).Where("payment_id = ?", paymentID).Delete(&model.DebtRelation{}).Error
	if err != nil {
		return apperror.Database("Failed to delete debt relations", err)
	}
	return nil
}
