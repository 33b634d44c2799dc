package job

import (
	"context"
	"log/slog"
	"time"

	"billsplit/internal/infrastructure/mq"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

// OutboxSender 定时把 PENDING 的 outbox 消息投递到 Kafka
type OutboxSender struct {
	outboxRepo    repository.OutboxRepository
	producer      mq.Producer
	logger        *slog.Logger
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(outboxRepo repository.OutboxRepository, producer mq.Producer, interval time.Duration, batchSize, maxRetryCount int, logger *slog.Logger) *OutboxSender {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSender{
		outboxRepo:    outboxRepo,
		producer:      producer,
		logger:        logger.With("component", "OutboxSender"),
		stopCh:        make(chan struct{}),
		interval:      interval,
		batchSize:     batchSize,
		maxRetryCount: maxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPendingMessages 处理一批待发送消息
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", "error", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.producer.SendMessage(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			s.logger.Error("更新消息状态失败", "id", msg.ID, "error", updateErr)
		} else {
			s.logger.Debug("消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		}
		return
	}

	s.logger.Warn("消息发送失败", "id", msg.ID, "retry_count", msg.RetryCount, "error", err)

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("增加重试次数失败", "id", msg.ID, "error", err)
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", "id", msg.ID, "error", err)
		} else {
			s.logger.Warn("消息超过最大重试次数，标记为失败", "id", msg.ID)
		}
	}
}
