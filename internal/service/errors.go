package service

import (
	"errors"
	"sort"

	"billsplit/internal/apperror"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

// translateNotFound 把仓储层的哨兵错误转换为对外的 NotFound 错误，其余原样返回
func translateNotFound(err error) error {
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.NotFound(apperror.CodePaymentNotFound, "Payment not found")
	case errors.Is(err, repository.ErrDebtRelationNotFound):
		return apperror.NotFound(apperror.CodeDebtRelationNotFound, "Debt relation not found")
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.NotFound(apperror.CodeUserNotFound, "User not found")
	default:
		return err
	}
}

func sortPaymentsNewestFirst(payments []*model.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID > payments[j].ID
		}
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
}
