package database

import (
	"fmt"
	"os"
	"time"

	"github.com/wfunc/led-master/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockSuffix   = ".migration.lock"
	lockAttempts = 30
	lockStaleAge = 5 * time.Minute
)

// acquireMigrationLock 获取迁移锁
func acquireMigrationLock(dbPath string) (*os.File, error) {
	lockPath := dbPath + lockSuffix

	// 尝试创建锁文件（独占模式）
	for i := 0; i < lockAttempts; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			logger.GetModuleLogger("database").Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 检查锁文件是否过期
		if info, err := os.Stat(lockPath); err == nil {
			if time.Since(info.ModTime()) > lockStaleAge {
				logger.Warn("迁移锁文件过期，尝试删除", zap.String("lock", lockPath))
				os.Remove(lockPath)
				continue
			}
		}

		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("无法获取迁移锁，可能有其他进程正在执行迁移")
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
}

// sqlitePath 返回 SQLite 主库文件路径，非 SQLite 或内存库返回空
func sqlitePath(db *gorm.DB) string {
	if db == nil || db.Dialector.Name() != "sqlite" {
		return ""
	}
	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}

	row := sqlDB.QueryRow("PRAGMA database_list")
	var seq int
	var name, file string
	if err := row.Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}

// CleanupStaleLocks 清理过期的锁文件
func CleanupStaleLocks(dbPath string) {
	lockPath := dbPath + lockSuffix
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > 2*lockStaleAge {
		logger.Info("清理过期锁文件", zap.String("file", lockPath))
		os.Remove(lockPath)
	}
}
