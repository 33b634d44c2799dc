package repository

import (
	"context"
	"errors"
	"time"

	"billsplit/internal/model"
)

var (
	ErrUserNotFound         = errors.New("用户不存在")
	ErrPaymentNotFound      = errors.New("支付记录不存在")
	ErrDebtRelationNotFound = errors.New("分摊记录不存在")
	ErrStatusConflict       = errors.New("状态已被修改")
)

// Transactor 在一个数据库事务中执行 fn。
// 事务通过 ctx 传递，仓储方法使用同一个 ctx 时自动加入该事务。
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type PaymentRepository interface {
	Save(ctx context.Context, in model.CreatePaymentInput) (*model.Payment, error)
	FindByID(ctx context.Context, id int64) (*model.Payment, error)
	// FindByIDForUpdate 在事务中锁定 Payment 行
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	ListByCreatorID(ctx context.Context, creatorID int64) ([]*model.Payment, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Payment, error)
	Delete(ctx context.Context, id int64) error
}

type DebtRelationRepository interface {
	// SaveMany 批量写入，空输入直接返回空结果且不开启事务
	SaveMany(ctx context.Context, inputs []model.CreateDebtRelationInput) ([]*model.DebtRelation, error)
	// FetchByPaymentID 按创建时间升序返回，附带 Debtor
	FetchByPaymentID(ctx context.Context, paymentID int64) ([]*model.DebtRelation, error)
	// FetchByPaymentIDs 一次查询多个支付的分摊，排序同 FetchByPaymentID
	FetchByPaymentIDs(ctx context.Context, paymentIDs []int64) ([]*model.DebtRelation, error)
	FindByID(ctx context.Context, id int64) (*model.DebtRelation, error)
	// UpdateStatus 仅当当前状态为 from 时更新，否则返回 ErrStatusConflict
	UpdateStatus(ctx context.Context, id int64, from, to string, paidAt *time.Time) error
	ListByDebtorID(ctx context.Context, debtorID int64) ([]*model.DebtRelation, error)
	ListAwaitingByDebtorID(ctx context.Context, debtorID int64) ([]*model.DebtRelation, error)
	ListAwaitingByCreatorID(ctx context.Context, creatorID int64) ([]*model.DebtRelation, error)
	DeleteByPaymentID(ctx context.Context, paymentID int64) error
}

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByAuthID(ctx context.Context, authID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, in model.CreateUserInput) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id int64) (*model.User, error)
	Delete(ctx context.Context, id int64) error
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}
