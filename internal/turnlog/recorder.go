package turnlog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recorder 保存每轮对话的审计记录
type Recorder interface {
	Record(ctx context.Context, turn Turn) error
	Recent(ctx context.Context, principal string, limit int) ([]ChatTurn, error)
}

// QueryObserver 接收数据库操作耗时，通常是 metrics.Collector
type QueryObserver interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// GormRecorder 通过 gorm 写 chat_turns 表
type GormRecorder struct {
	db       *gorm.DB
	name     string
	observer QueryObserver
	logger   *zap.Logger
}

// NewGormRecorder 创建基于 gorm 的记录器。表结构由 migration 包维护。
func NewGormRecorder(db *gorm.DB, name string, observer QueryObserver, logger *zap.Logger) *GormRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormRecorder{
		db:       db,
		name:     name,
		observer: observer,
		logger:   logger.With(zap.String("component", "turnlog")),
	}
}

// Record 插入一行
func (r *GormRecorder) Record(ctx context.Context, turn Turn) error {
	rec := row(turn)
	start := time.Now()
	err := r.db.WithContext(ctx).Create(&rec).Error
	r.observe("insert", start)
	if err != nil {
		r.logger.Warn("failed to record turn", zap.String("turn_id", turn.TurnID), zap.Error(err))
		return err
	}
	return nil
}

// Recent 按时间倒序返回最近的记录；principal 为空时不过滤
func (r *GormRecorder) Recent(ctx context.Context, principal string, limit int) ([]ChatTurn, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Model(&ChatTurn{})
	if principal != "" {
		q = q.Where("principal = ?", principal)
	}

	var turns []ChatTurn
	start := time.Now()
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&turns).Error
	r.observe("select", start)
	return turns, err
}

func (r *GormRecorder) observe(op string, start time.Time) {
	if r.observer != nil {
		r.observer.RecordDBQuery(r.name, op, time.Since(start))
	}
}

// NopRecorder 审计关闭时使用
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Turn) error { return nil }

func (NopRecorder) Recent(context.Context, string, int) ([]ChatTurn, error) { return nil, nil }
