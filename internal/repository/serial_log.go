package repository

import (
	"fmt"
	"time"

	"github.com/wfunc/led-master/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 允许的排序字段，避免拼接任意 SQL
var serialLogOrderColumns = map[string]string{
	"created_at DESC": "created_at DESC",
	"created_at ASC":  "created_at ASC",
	"id DESC":         "id DESC",
	"id ASC":          "id ASC",
}

// SerialLogRepository 串口日志仓库
type SerialLogRepository struct {
	db *gorm.DB
}

// NewSerialLogRepository 创建串口日志仓库
func NewSerialLogRepository(db *gorm.DB) *SerialLogRepository {
	return &SerialLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *SerialLogRepository) Create(log *models.SerialLog) error {
	return r.db.Create(log).Error
}

// CreateBatch 批量创建日志记录（忽略冲突）
func (r *SerialLogRepository) CreateBatch(logs []*models.SerialLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(logs, 100).Error
}

// GetByID 根据ID获取日志
func (r *SerialLogRepository) GetByID(id uint) (*models.SerialLog, error) {
	var log models.SerialLog
	if err := r.db.First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// GetBySessionID 根据会话ID获取日志
func (r *SerialLogRepository) GetBySessionID(sessionID string) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}

func (r *SerialLogRepository) filter(db *gorm.DB, query *models.SerialLogQuery) *gorm.DB {
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}
	if query.Port != "" {
		db = db.Where("port = ?", query.Port)
	}
	if query.Command != "" {
		db = db.Where("command = ?", query.Command)
	}
	if query.Contains != "" {
		db = db.Where("raw_data LIKE ?", "%"+query.Contains+"%")
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil {
		if *query.HasError {
			db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
		} else {
			db = db.Where("error_msg IS NULL OR error_msg = ''")
		}
	}
	return db
}

// Query 查询日志，返回当前页和总数
func (r *SerialLogRepository) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	if query == nil {
		query = &models.SerialLogQuery{}
	}
	db := r.filter(r.db.Model(&models.SerialLog{}), query)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy, ok := serialLogOrderColumns[query.OrderBy]
	if !ok {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy).Order("id DESC")

	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.SerialLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// GetLatest 获取最新的日志记录
func (r *SerialLogRepository) GetLatest(limit int, direction models.SerialDirection) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	db := r.db.Order("created_at DESC").Order("id DESC").Limit(limit)
	if direction != "" {
		db = db.Where("direction = ?", direction)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetStats 获取统计信息
func (r *SerialLogRepository) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	stats := &models.SerialLogStats{}
	scoped := func() *gorm.DB {
		db := r.db.Model(&models.SerialLog{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	if err := scoped().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("direction = ?", models.SerialDirectionSend).
		Count(&stats.TotalSend).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("direction = ?", models.SerialDirectionReceive).
		Count(&stats.TotalReceive).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("error_msg IS NOT NULL AND error_msg != ''").
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	var bytes struct {
		Total int64
	}
	if err := scoped().Select("COALESCE(SUM(bytes_count), 0) as total").
		Scan(&bytes).Error; err != nil {
		return nil, err
	}
	stats.TotalBytes = bytes.Total

	if stats.TotalCount > 0 {
		var first, last models.SerialLog
		if err := scoped().Order("created_at ASC").Order("id ASC").First(&first).Error; err != nil {
			return nil, err
		}
		if err := scoped().Order("created_at DESC").Order("id DESC").First(&last).Error; err != nil {
			return nil, err
		}
		stats.FirstAt = &first.CreatedAt
		stats.LastAt = &last.CreatedAt
	}

	return stats, nil
}

// DeleteOldLogs 删除旧日志
func (r *SerialLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Unscoped().Where("created_at < ?", beforeTime).Delete(&models.SerialLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *SerialLogRepository) CleanupLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldLogs(beforeTime)
}
