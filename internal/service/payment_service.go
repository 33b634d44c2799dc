package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"billsplit/internal/apperror"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

type PaymentService struct {
	tx       repository.Transactor
	payments repository.PaymentRepository
	debts    repository.DebtRelationRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

func NewPaymentService(
	tx repository.Transactor,
	payments repository.PaymentRepository,
	debts repository.DebtRelationRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		tx:       tx,
		payments: payments,
		debts:    debts,
		users:    users,
		logger:   logger.With("component", "payment_service"),
	}
}

type DebtDetail struct {
	DebtorID    int64 `json:"debtorId"`
	SplitAmount int64 `json:"splitAmount"`
}

type CreatePaymentRequest struct {
	Title       string       `json:"title"`
	Amount      int64        `json:"amount"`
	Note        *string      `json:"note"`
	DebtDetails []DebtDetail `json:"debtDetails"`
	PaidAt      *time.Time   `json:"paidAt"`
}

type CreatePaymentResult struct {
	Payment       *model.Payment        `json:"payment"`
	DebtRelations []*model.DebtRelation `json:"debtRelations"`
}

// PaymentDetail 单笔支付详情，未还金额和笔数在读取时计算
type PaymentDetail struct {
	Payment       *model.Payment        `json:"payment"`
	DebtRelations []*model.DebtRelation `json:"debt_relations"`
	UnpaidAmount  int64                 `json:"unpaidAmount"`
	UnpaidCount   int                   `json:"unpaidCount"`
}

type PaymentSummary struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Amount       int64     `json:"amount"`
	Note         *string   `json:"note"`
	Status       string    `json:"status"`
	CreatorID    int64     `json:"creatorId"`
	CreatorName  string    `json:"creatorName"`
	PaidAt       time.Time `json:"paidAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UnpaidAmount int64     `json:"unpaidAmount"`
	UnpaidCount  int       `json:"unpaidCount"`
}

type PaymentList struct {
	AwaitingPayments  []*PaymentSummary `json:"awaitingPayments"`
	CompletedPayments []*PaymentSummary `json:"completedPayments"`
}

func validateCreatePaymentRequest(req *CreatePaymentRequest, creatorID int64) error {
	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > model.MaxTitleLength {
		return apperror.Validation("title must be between 1 and 100 characters")
	}
	if req.Amount < 1 {
		return apperror.Validation("amount must be at least 1")
	}
	if req.Note != nil && utf8.RuneCountInString(strings.TrimSpace(*req.Note)) > model.MaxNoteLength {
		return apperror.Validation("note must be at most 1000 characters")
	}
	for i, d := range req.DebtDetails {
		if d.DebtorID < 1 {
			return apperror.Validation(fmt.Sprintf("debtDetails[%d].debtorId must be at least 1", i))
		}
		if d.SplitAmount < 1 {
			return apperror.Validation(fmt.Sprintf("debtDetails[%d].splitAmount must be at least 1", i))
		}
	}
	if creatorID < 1 {
		return apperror.Validation("creatorId must be at least 1")
	}
	return nil
}

// CreatePayment 创建支付并按明细拆分债务
// 校验顺序固定：明细非空、金额之和、债务人存在、创建者存在，全部通过后才写库
func (s *PaymentService) CreatePayment(ctx context.Context, req *CreatePaymentRequest, creatorID int64) (*CreatePaymentResult, error) {
	if err := validateCreatePaymentRequest(req, creatorID); err != nil {
		return nil, err
	}

	if len(req.DebtDetails) == 0 {
		return nil, apperror.Domain(apperror.CodeDebtDetailsRequired, "At least one debt detail is required")
	}

	total, overflow := sumSplitAmounts(req.DebtDetails)
	if overflow {
		return nil, apperror.Domainf(apperror.CodeSplitAmountMismatch,
			"Total split amount exceeds payment amount (%d)", req.Amount)
	}
	if total != req.Amount {
		return nil, apperror.Domainf(apperror.CodeSplitAmountMismatch,
			"Total split amount (%d) must equal payment amount (%d)", total, req.Amount)
	}

	// 重复的债务人只查询一次
	seen := make(map[int64]bool, len(req.DebtDetails))
	for _, d := range req.DebtDetails {
		if seen[d.DebtorID] {
			continue
		}
		seen[d.DebtorID] = true
		if _, err := s.users.FindByID(ctx, d.DebtorID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, apperror.Domainf(apperror.CodeDebtorNotFound, "Debtor with ID %d not found", d.DebtorID)
			}
			return nil, err
		}
	}

	if _, err := s.users.FindByID(ctx, creatorID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.Domain(apperror.CodeCreatorNotFound, "Creator not found")
		}
		return nil, err
	}

	result := &CreatePaymentResult{}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		payment, err := s.payments.Save(ctx, model.CreatePaymentInput{
			Title:     req.Title,
			Amount:    req.Amount,
			Note:      req.Note,
			Status:    model.StatusAwaiting,
			CreatorID: creatorID,
			PaidAt:    req.PaidAt,
		})
		if err != nil {
			return err
		}

		inputs := make([]model.CreateDebtRelationInput, 0, len(req.DebtDetails))
		for _, d := range req.DebtDetails {
			inputs = append(inputs, model.CreateDebtRelationInput{
				SplitAmount: d.SplitAmount,
				Status:      model.StatusAwaiting,
				PaymentID:   payment.ID,
				DebtorID:    d.DebtorID,
			})
		}
		relations, err := s.debts.SaveMany(ctx, inputs)
		if err != nil {
			return err
		}

		result.Payment = payment
		result.DebtRelations = relations
		return nil
	})
	if err != nil {
		s.logger.Error("创建支付失败", "creator_id", creatorID, "error", err)
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.Database("Failed to create payment", err)
	}

	s.logger.Info("创建支付成功",
		"payment_id", result.Payment.ID,
		"creator_id", creatorID,
		"amount", result.Payment.Amount,
		"debt_count", len(result.DebtRelations))
	return result, nil
}

// GetPaymentDetail 只有创建者和债务人可以查看
func (s *PaymentService) GetPaymentDetail(ctx context.Context, id, actorID int64) (*PaymentDetail, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err)
	}
	relations, err := s.debts.FetchByPaymentID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParticipant(payment, relations, actorID) {
		return nil, apperror.Forbidden(apperror.CodeNotPaymentParticipant, "Only the payment creator or its debtors can view this payment")
	}

	amount, count := model.Unpaid(relations)
	return &PaymentDetail{
		Payment:       payment,
		DebtRelations: relations,
		UnpaidAmount:  amount,
		UnpaidCount:   count,
	}, nil
}

// ListPayments 用户创建的和用户欠款的支付，按状态分组
func (s *PaymentService) ListPayments(ctx context.Context, userID int64) (*PaymentList, error) {
	created, err := s.payments.ListByCreatorID(ctx, userID)
	if err != nil {
		return nil, err
	}

	owed, err := s.debts.ListByDebtorID(ctx, userID)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]bool, len(created))
	for _, p := range created {
		known[p.ID] = true
	}
	var extraIDs []int64
	for _, r := range owed {
		if !known[r.PaymentID] {
			known[r.PaymentID] = true
			extraIDs = append(extraIDs, r.PaymentID)
		}
	}
	extra, err := s.payments.ListByIDs(ctx, extraIDs)
	if err != nil {
		return nil, err
	}

	all := append(created, extra...)
	sortPaymentsNewestFirst(all)

	list := &PaymentList{
		AwaitingPayments:  []*PaymentSummary{},
		CompletedPayments: []*PaymentSummary{},
	}
	ids := make([]int64, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	relations, err := s.debts.FetchByPaymentIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byPayment := make(map[int64][]*model.DebtRelation, len(all))
	for _, r := range relations {
		byPayment[r.PaymentID] = append(byPayment[r.PaymentID], r)
	}

	for _, p := range all {
		summary := newPaymentSummary(p, byPayment[p.ID])
		if p.Status == model.StatusCompleted {
			list.CompletedPayments = append(list.CompletedPayments, summary)
		} else {
			list.AwaitingPayments = append(list.AwaitingPayments, summary)
		}
	}
	return list, nil
}

// sumSplitAmounts 求和溢出 int64 时 overflow 为 true，回绕的和不能参与比较
func sumSplitAmounts(details []DebtDetail) (total int64, overflow bool) {
	for _, d := range details {
		if d.SplitAmount > math.MaxInt64-total {
			return 0, true
		}
		total += d.SplitAmount
	}
	return total, false
}

func isParticipant(payment *model.Payment, relations []*model.DebtRelation, userID int64) bool {
	if payment.CreatorID == userID {
		return true
	}
	for _, r := range relations {
		if r.DebtorID == userID {
			return true
		}
	}
	return false
}

func newPaymentSummary(p *model.Payment, relations []*model.DebtRelation) *PaymentSummary {
	amount, count := model.Unpaid(relations)
	summary := &PaymentSummary{
		ID:           p.ID,
		Title:        p.Title,
		Amount:       p.Amount,
		Note:         p.Note,
		Status:       p.Status,
		CreatorID:    p.CreatorID,
		PaidAt:       p.PaidAt,
		CreatedAt:    p.CreatedAt,
		UnpaidAmount: amount,
		UnpaidCount:  count,
	}
	if p.Creator != nil {
		summary.CreatorName = p.Creator.Nickname
	}
	return summary
}

// DeletePayment 仅创建者可删除，先删分摊再删支付
func (s *PaymentService) DeletePayment(ctx context.Context, id, actorID int64) error {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return translateNotFound(err)
	}
	if payment.CreatorID != actorID {
		return apperror.Forbidden(apperror.CodeNotPaymentCreator, "Only the creator can delete this payment")
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.debts.DeleteByPaymentID(ctx, id); err != nil {
			return err
		}
		return s.payments.Delete(ctx, id)
	})
	if err != nil {
		return translateNotFound(err)
	}

	s.logger.Info("删除支付成功", "payment_id", id, "actor_id", actorID)
	return nil
}
