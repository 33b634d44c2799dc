package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"billsplit/internal/apperror"
)

const (
	MaxTitleLength = 100
	MaxNoteLength  = 1000
)

// Payment 一笔由创建者垫付、需要分摊的支出
// amount 只在创建时与各 DebtRelation 的 split_amount 之和相等，之后状态变化不修改金额
type Payment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"type:varchar(100);not null" json:"title"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Note      *string   `gorm:"type:varchar(1000)" json:"note"`
	Status    string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatorID int64     `gorm:"index;not null" json:"creatorId"`
	Creator   *User     `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	PaidAt    time.Time `gorm:"not null" json:"paidAt"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payment"
}

type CreatePaymentInput struct {
	Title     string
	Amount    int64
	Note      *string
	Status    string
	CreatorID int64
	PaidAt    *time.Time
}

// NewPayment 校验并构造待写入的 Payment
// status 缺省为 AWAITING，paid_at 缺省为当前时间
func NewPayment(in CreatePaymentInput) (*Payment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.Domain(apperror.CodeInvalidTitle, "Title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.Domain(apperror.CodeInvalidTitle, "Title must be at most 100 characters")
	}
	if in.Amount <= 0 {
		return nil, apperror.Domain(apperror.CodeInvalidAmount, "Amount must be greater than 0")
	}
	if in.CreatorID <= 0 {
		return nil, apperror.Domain(apperror.CodeInvalidCreatorID, "Creator ID must be valid")
	}

	note, err := normalizeNote(in.Note)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = StatusAwaiting
	}
	if !IsValidStatus(status) {
		return nil, apperror.Validation("Unknown status: " + status)
	}

	paidAt := time.Now()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}

	return &Payment{
		Title:     title,
		Amount:    in.Amount,
		Note:      note,
		Status:    status,
		CreatorID: in.CreatorID,
		PaidAt:    paidAt,
	}, nil
}

func normalizeNote(note *string) (*string, error) {
	if note == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxNoteLength {
		return nil, apperror.Domain(apperror.CodeInvalidNote, "Note must be at most 1000 characters")
	}
	return &trimmed, nil
}
