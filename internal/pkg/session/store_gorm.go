// internal/pkg/session/store_gorm.go
package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SessionModel 是 easypoints_sessions 表的 GORM 模型。
type SessionModel struct {
	ID        string     `gorm:"primaryKey;size:64"`
	Payload   []byte     `gorm:"type:json;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (SessionModel) TableName() string { return "easypoints_sessions" }

// GormStore 把会话保存在 MySQL 中，适合需要跨 Redis 故障保留会话的部署。
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenMySQL 用 DSN 打开 MySQL 连接。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return db, nil
}

// NewGormStore 创建存储并自动迁移表结构。
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&SessionModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate easypoints_sessions")
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func (s *GormStore) Name() string { return "mysql" }

func (s *GormStore) Load(ctx context.Context, id string) ([]byte, error) {
	var m SessionModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", id)
	}
	if m.ExpiresAt != nil && s.now().After(*m.ExpiresAt) {
		return nil, ErrNotFound
	}
	return m.Payload, nil
}

func (s *GormStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	m := SessionModel{ID: id, Payload: data}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		m.ExpiresAt = &exp
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return errors.Wrapf(err, "save session %s", id)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&SessionModel{}, "id = ?", id).Error; err != nil {
		return errors.Wrapf(err, "delete session %s", id)
	}
	return nil
}

// PurgeExpired 删除已过期的会话，返回删除的行数。
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", s.now()).
		Delete(&SessionModel{})
	return res.RowsAffected, errors.Wrap(res.Error, "purge expired sessions")
}
