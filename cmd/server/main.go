package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billsplit/internal/config"
	"billsplit/internal/handler"
	"billsplit/internal/idempotency"
	"billsplit/internal/identity"
	"billsplit/internal/infrastructure/cache"
	"billsplit/internal/infrastructure/database"
	"billsplit/internal/infrastructure/lock"
	"billsplit/internal/infrastructure/mq"
	"billsplit/internal/job"
	"billsplit/internal/logging"
	"billsplit/internal/mail"
	"billsplit/internal/notify"
	"billsplit/internal/repository"
	"billsplit/internal/service"
	"billsplit/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		fatal(logger, "初始化 ID 生成器失败", err)
	}

	db, err := database.NewMySQL(&cfg.MySQL, logging.ParseLevel(cfg.Log.Level), logger)
	if err != nil {
		fatal(logger, "连接 MySQL 失败", err)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tx := repository.NewGormTransactor(db)
	paymentRepo := repository.NewPaymentRepository(db)
	debtRepo := repository.NewDebtRelationRepository(db)
	userRepo := repository.NewUserRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// Redis 可选：未启用时锁只依赖数据库行锁，幂等记录保存在进程内
	var (
		locker    service.Locker
		idemStore idempotency.Store = idempotency.NewMemoryStore()
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(ctx, &cfg.Redis, logger)
		if err != nil {
			fatal(logger, "连接 Redis 失败", err)
		}
		defer redisClient.Close()

		locker = lock.NewRedisLocker(redisClient, cfg.Business.LockTTL, cfg.Business.LockRetryInterval, cfg.Business.LockMaxRetries)
		idemStore = idempotency.NewRedisStore(redisClient)
	}

	// Kafka 可选：未启用时不写通知
	var notifier notify.Notifier
	if cfg.Kafka.Enabled {
		producer, err := mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			fatal(logger, "初始化 Kafka 生产者失败", err)
		}
		defer producer.Close()

		notifier = notify.NewOutboxNotifier(outboxRepo, userRepo, cfg.Kafka.Topic.Notification, cfg.Mail.AppURL, logger)

		outboxSender := job.NewOutboxSender(outboxRepo, producer,
			cfg.Business.OutboxInterval, cfg.Business.OutboxBatchSize, cfg.Business.MaxRetryCount, logger)
		go outboxSender.Start(ctx)

		var sender mail.Sender = mail.NewLogSender(logger)
		if cfg.Mail.Enabled {
			sender = mail.NewSMTPSender(cfg.Mail, logger)
		}
		consumer, err := mq.NewConsumer(&cfg.Kafka, []string{cfg.Kafka.Topic.Notification}, job.NewMailConsumer(sender, logger).Handle, logger)
		if err != nil {
			fatal(logger, "初始化 Kafka 消费者失败", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("邮件消费者退出", "error", err)
			}
		}()
	} else {
		logger.Warn("Kafka 未启用，支付通知不会发送")
	}

	provider := identity.NewGoTrueClient(identity.GoTrueConfig{
		URL:       cfg.Auth.GoTrueURL,
		APIKey:    cfg.Auth.APIKey,
		JWTSecret: cfg.Auth.JWTSecret,
	})

	h := handler.NewHandler(handler.Options{
		UserService:         service.NewUserService(userRepo, provider, logger),
		PaymentService:      service.NewPaymentService(tx, paymentRepo, debtRepo, userRepo, logger),
		DebtRelationService: service.NewDebtRelationService(tx, paymentRepo, debtRepo, locker, logger),
		Notifier:            notifier,
		Idempotency:         idemStore,
		IdempotencyTTL:      cfg.Business.IdempotencyTTL,
		Logger:              logger,
	})

	// 设置路由
	router := handler.SetupRouter(h, &cfg.Server, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logger.Info("服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "服务启动失败", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭异常", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("服务已关闭")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
