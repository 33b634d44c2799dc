package repository

import (
	"context"

	"billsplit/internal/model"

	"gorm.io/gorm"
)

type GormOutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	return conn(ctx, r.db).Create(msg).Error
}

func (r *GormOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := conn(ctx, r.db).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *GormOutboxRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return conn(ctx, r.db).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *GormOutboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	return conn(ctx, r.db).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *GormOutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	return conn(ctx, r.db).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusFailed).Error
}
