package database

import (
	"fmt"
	"log/slog"
	"time"

	"billsplit/internal/config"
	"billsplit/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models 需要建表的全部模型，AutoMigrate 和测试共用
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Payment{},
		&model.DebtRelation{},
		&model.OutboxMessage{},
	}
}

// GormLogLevel SQL 日志只在 debug 级别输出
func GormLogLevel(level slog.Level) logger.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return logger.Info
	case level <= slog.LevelWarn:
		return logger.Warn
	default:
		return logger.Error
	}
}

// NewMySQL 建立连接池；配置了 auto_migrate 时同步表结构
func NewMySQL(cfg *config.MySQLConfig, level slog.Level, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(GormLogLevel(level)),
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, fmt.Errorf("自动迁移表结构失败: %w", err)
		}
		log.Info("表结构自动迁移完成")
	}

	log.Info("MySQL 连接成功", "host", cfg.Host, "database", cfg.Database)
	return db, nil
}
