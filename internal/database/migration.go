package database

import (
	"fmt"

	"github.com/wfunc/led-master/internal/logger"
	"github.com/wfunc/led-master/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 迁移表结构
func Migrate(db *gorm.DB) error {
	// 获取迁移锁，避免多个进程同时迁移同一个 SQLite 文件
	if dbPath := sqlitePath(db); dbPath != "" {
		CleanupStaleLocks(dbPath)
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	if err := db.AutoMigrate(&models.SerialLog{}); err != nil {
		return fmt.Errorf("迁移 serial_logs 失败: %w", err)
	}

	logger.Info("数据库迁移完成")
	return nil
}

// DropAllTables 删除所有表
func DropAllTables(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.SerialLog{})
}
