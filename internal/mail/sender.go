// Package mail 通知邮件的发送
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"billsplit/internal/config"
	"billsplit/internal/model"

	gomail "github.com/wneessen/go-mail"
)

type Sender interface {
	Send(ctx context.Context, payload model.EmailPayload) error
}

type SMTPSender struct {
	cfg    config.MailConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg config.MailConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger.With("component", "smtp_sender")}
}

func (s *SMTPSender) Send(ctx context.Context, payload model.EmailPayload) error {
	msg, err := buildMessage(s.cfg.From, payload)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	s.logger.Info("邮件发送成功", "to", payload.To)
	return nil
}

func buildMessage(from string, payload model.EmailPayload) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("无效的发件人: %w", err)
	}
	if err := msg.To(payload.To); err != nil {
		return nil, fmt.Errorf("无效的收件人: %w", err)
	}
	msg.Subject(payload.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, payload.Text)
	return msg, nil
}

// LogSender 未配置 SMTP 时只记录日志
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "log_sender")}
}

func (s *LogSender) Send(_ context.Context, payload model.EmailPayload) error {
	s.logger.Info("邮件未发送（SMTP 未启用）", "to", payload.To, "subject", payload.Subject)
	return nil
}
