package model

import (
	"time"

	"billsplit/internal/apperror"
)

// DebtRelation 某个参与者在一笔 Payment 中应承担的份额
// 只随 Payment 一起创建，Payment 删除时级联删除
type DebtRelation struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SplitAmount int64      `gorm:"not null" json:"splitAmount"`
	Status      string     `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentID   int64      `gorm:"index;not null" json:"paymentId"`
	Payment     *Payment   `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"payment,omitempty"`
	DebtorID    int64      `gorm:"index;not null" json:"debtorId"`
	Debtor      *User      `gorm:"foreignKey:DebtorID" json:"debtor,omitempty"`
	PaidAt      *time.Time `json:"paidAt"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (DebtRelation) TableName() string {
	return "debt_relation"
}

type CreateDebtRelationInput struct {
	SplitAmount int64
	Status      string
	PaymentID   int64
	DebtorID    int64
}

// NewDebtRelation 校验并构造待写入的 DebtRelation，status 缺省为 AWAITING
func NewDebtRelation(in CreateDebtRelationInput) (*DebtRelation, error) {
	if in.SplitAmount <= 0 {
		return nil, apperror.Domain(apperror.CodeInvalidSplitAmount, "Split amount must be greater than 0")
	}
	if in.PaymentID <= 0 {
		return nil, apperror.Domain(apperror.CodeInvalidPaymentID, "Payment ID must be valid")
	}
	if in.DebtorID <= 0 {
		return nil, apperror.Domain(apperror.CodeInvalidDebtorID, "Debtor ID must be valid")
	}

	status := in.Status
	if status == "" {
		status = StatusAwaiting
	}
	if !IsValidStatus(status) {
		return nil, apperror.Validation("Unknown status: " + status)
	}

	return &DebtRelation{
		SplitAmount: in.SplitAmount,
		Status:      status,
		PaymentID:   in.PaymentID,
		DebtorID:    in.DebtorID,
	}, nil
}
