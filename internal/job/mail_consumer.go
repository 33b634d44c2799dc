package job

import (
	"context"
	"encoding/json"
	"log/slog"

	"billsplit/internal/mail"
	"billsplit/internal/model"

	"github.com/IBM/sarama"
)

// MailConsumer 把通知消息转成邮件发送。
// 发送失败只记录日志，消息仍然确认，邮件投递尽力而为。
type MailConsumer struct {
	sender mail.Sender
	logger *slog.Logger
}

func NewMailConsumer(sender mail.Sender, logger *slog.Logger) *MailConsumer {
	return &MailConsumer{sender: sender, logger: logger.With("component", "MailConsumer")}
}

// Handle 符合 mq.MessageHandler
func (c *MailConsumer) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var payload model.EmailPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		c.logger.Error("消息格式错误，已丢弃", "offset", msg.Offset, "error", err)
		return nil
	}
	if payload.To == "" {
		c.logger.Warn("消息缺少收件人，已丢弃", "offset", msg.Offset)
		return nil
	}

	if err := c.sender.Send(ctx, payload); err != nil {
		c.logger.Error("邮件发送失败", "to", payload.To, "error", err)
	}
	return nil
}
