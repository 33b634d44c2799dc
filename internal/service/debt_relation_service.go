package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

// Locker 按 key 互斥，返回的 unlock 必须被调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

func paymentLockKey(paymentID int64) string {
	return fmt.Sprintf("billsplit:lock:payment:%d", paymentID)
}

type DebtRelationService struct {
	tx       repository.Transactor
	payments repository.PaymentRepository
	debts    repository.DebtRelationRepository
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time
}

// NewDebtRelationService locker 为 nil 时只依赖数据库行锁
func NewDebtRelationService(
	tx repository.Transactor,
	payments repository.PaymentRepository,
	debts repository.DebtRelationRepository,
	locker Locker,
	logger *slog.Logger,
) *DebtRelationService {
	if locker == nil {
		locker = noopLocker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DebtRelationService{
		tx:       tx,
		payments: payments,
		debts:    debts,
		locker:   locker,
		logger:   logger.With("component", "debt_relation_service"),
		now:      time.Now,
	}
}

type StatusUpdateResult struct {
	DebtRelation *model.DebtRelation `json:"debtRelation"`
	Payment      *model.Payment      `json:"payment"`
}

func (s *DebtRelationService) Complete(ctx context.Context, relationID, actorID int64, paidAt *time.Time) (*StatusUpdateResult, error) {
	return s.UpdateStatus(ctx, relationID, actorID, model.StatusCompleted, paidAt)
}

func (s *DebtRelationService) Rollback(ctx context.Context, relationID, actorID int64) (*StatusUpdateResult, error) {
	return s.UpdateStatus(ctx, relationID, actorID, model.StatusAwaiting, nil)
}

// UpdateStatus 变更分摊状态，并根据变更后的全部分摊重新计算支付状态。
// 同一支付下的状态变更通过分布式锁和 FOR UPDATE 行锁串行化。
func (s *DebtRelationService) UpdateStatus(ctx context.Context, relationID, actorID int64, target string, paidAt *time.Time) (*StatusUpdateResult, error) {
	if !model.IsValidStatus(target) {
		return nil, apperror.Validation("Unknown status: " + target)
	}

	rel, err := s.debts.FindByID(ctx, relationID)
	if err != nil {
		return nil, translateNotFound(err)
	}

	unlock, err := s.locker.Lock(ctx, paymentLockKey(rel.PaymentID))
	if err != nil {
		s.logger.Warn("获取支付锁失败", "payment_id", rel.PaymentID, "error", err)
		return nil, apperror.Conflict(apperror.CodeRequestInProgress, "Another update is in progress for this payment")
	}
	defer unlock()

	result := &StatusUpdateResult{}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		payment, err := s.payments.FindByIDForUpdate(ctx, rel.PaymentID)
		if err != nil {
			return err
		}
		// 持锁后重新读取，避免使用过期状态
		current, err := s.debts.FindByID(ctx, relationID)
		if err != nil {
			return err
		}

		if actorID != payment.CreatorID && actorID != current.DebtorID {
			return apperror.Forbidden(apperror.CodeNotDebtParticipant, "Only the payment creator or the debtor can update this debt relation")
		}
		if !model.CanTransitionTo(current.Status, target) {
			return apperror.Domainf(apperror.CodeInvalidStatusTransition,
				"Cannot transition debt relation from %s to %s", current.Status, target)
		}

		var newPaidAt *time.Time
		if target == model.StatusCompleted {
			t := s.now()
			if paidAt != nil {
				t = *paidAt
			}
			newPaidAt = &t
		}

		if err := s.debts.UpdateStatus(ctx, relationID, current.Status, target, newPaidAt); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperror.Domainf(apperror.CodeInvalidStatusTransition,
					"Cannot transition debt relation from %s to %s", current.Status, target)
			}
			return err
		}

		relations, err := s.debts.FetchByPaymentID(ctx, payment.ID)
		if err != nil {
			return err
		}
		status := model.DerivePaymentStatus(payment.Status, relations)
		if status != payment.Status {
			if err := s.payments.UpdateStatus(ctx, payment.ID, status); err != nil {
				return err
			}
			payment.Status = status
		}

		for _, r := range relations {
			if r.ID == relationID {
				result.DebtRelation = r
				break
			}
		}
		result.Payment = payment
		return nil
	})
	if err != nil {
		return nil, translateNotFound(err)
	}

	s.logger.Info("分摊状态变更成功",
		"debt_relation_id", relationID,
		"payment_id", result.Payment.ID,
		"status", target,
		"payment_status", result.Payment.Status)
	return result, nil
}

// ListAwaitingOwedBy 用户尚未偿还的分摊
func (s *DebtRelationService) ListAwaitingOwedBy(ctx context.Context, userID int64) ([]*model.DebtRelation, error) {
	return s.debts.ListAwaitingByDebtorID(ctx, userID)
}

// ListAwaitingOwedTo 别人在用户创建的支付上尚未偿还的分摊
func (s *DebtRelationService) ListAwaitingOwedTo(ctx context.Context, userID int64) ([]*model.DebtRelation, error) {
	return s.debts.ListAwaitingByCreatorID(ctx, userID)
}
