// Package notify 支付创建后的通知，写入 outbox 后由后台任务投递
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"billsplit/internal/model"
	"billsplit/internal/repository"
	"billsplit/pkg/idgen"
)

// Notifier 失败不影响已创建的支付，调用方只记录日志
type Notifier interface {
	PaymentCreated(ctx context.Context, payment *model.Payment, relations []*model.DebtRelation) error
}

type OutboxNotifier struct {
	outbox repository.OutboxRepository
	users  repository.UserRepository
	topic  string
	appURL string
	logger *slog.Logger
}

func NewOutboxNotifier(outbox repository.OutboxRepository, users repository.UserRepository, topic, appURL string, logger *slog.Logger) *OutboxNotifier {
	return &OutboxNotifier{
		outbox: outbox,
		users:  users,
		topic:  topic,
		appURL: appURL,
		logger: logger.With("component", "notifier"),
	}
}

// PaymentCreated 每个债务人一封邮件，同一债务人的多笔分摊合并金额
func (n *OutboxNotifier) PaymentCreated(ctx context.Context, payment *model.Payment, relations []*model.DebtRelation) error {
	creator, err := n.users.FindByID(ctx, payment.CreatorID)
	if err != nil {
		return fmt.Errorf("查询创建者失败: %w", err)
	}

	totals := make(map[int64]int64, len(relations))
	var order []int64
	for _, r := range relations {
		if _, ok := totals[r.DebtorID]; !ok {
			order = append(order, r.DebtorID)
		}
		totals[r.DebtorID] += r.SplitAmount
	}

	for _, debtorID := range order {
		debtor, err := n.users.FindByID(ctx, debtorID)
		if err != nil {
			return fmt.Errorf("查询债务人失败: debtor_id=%d: %w", debtorID, err)
		}

		payload, err := json.Marshal(model.EmailPayload{
			To:      debtor.Email,
			Subject: "New bill from " + creator.Nickname,
			Text:    n.body(creator, payment, totals[debtorID]),
		})
		if err != nil {
			return err
		}

		msg := &model.OutboxMessage{
			MessageKey: idgen.NextString(),
			Topic:      n.topic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := n.outbox.Create(ctx, msg); err != nil {
			return fmt.Errorf("写入 outbox 失败: %w", err)
		}
	}

	n.logger.Info("支付通知已写入 outbox", "payment_id", payment.ID, "recipients", len(order))
	return nil
}

func (n *OutboxNotifier) body(creator *model.User, payment *model.Payment, amount int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have a new bill.\n\n")
	fmt.Fprintf(&b, "From: %s\n", creator.Nickname)
	fmt.Fprintf(&b, "Title: %s\n", payment.Title)
	fmt.Fprintf(&b, "Amount: %d\n", amount)
	if payment.Note != nil {
		fmt.Fprintf(&b, "Note: %s\n", *payment.Note)
	}
	if n.appURL != "" {
		fmt.Fprintf(&b, "\nDetails: %s/payments/%d\n", strings.TrimRight(n.appURL, "/"), payment.ID)
	}
	b.WriteString("\nThis message was sent automatically.\n")
	return b.String()
}
