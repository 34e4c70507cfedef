// internal/pkg/session/manager.go
package session

import (
	"context"
	"errors"
	"time"

	"easypoints/internal/pkg/metrics"

	"github.com/google/uuid"
)

// ErrNotFound 会话不存在或已过期。
var ErrNotFound = errors.New("session not found")

// Store 保存序列化后的会话。
type Store interface {
	Name() string
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Manager 负责会话的整体读取与写回。
// 写回是整个 blob 覆盖，没有锁，并发的读改写以最后一次写入为准。
type Manager struct {
	Store   Store
	TTL     time.Duration
	Metrics *metrics.Metrics
}

// NewManager ttl 为会话在存储中的存活时间 (浏览器会话周期)。
func NewManager(store Store, ttl time.Duration, m *metrics.Metrics) *Manager {
	return &Manager{Store: store, TTL: ttl, Metrics: m}
}

// Create 创建并保存一个新的空会话。
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := New(uuid.NewString())
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load 读取会话，不存在时返回 ErrNotFound。
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	data, err := m.Store.Load(ctx, id)
	m.observe("load", err)
	if err != nil {
		return nil, err
	}
	return Decode(id, data)
}

// LoadOrNew 会话不存在时返回一个同 ID 的空会话。
func (m *Manager) LoadOrNew(ctx context.Context, id string) (*Session, error) {
	s, err := m.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return New(id), nil
	}
	return s, err
}

// Save 覆盖写回整个会话。
func (m *Manager) Save(ctx context.Context, s *Session) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	err = m.Store.Save(ctx, s.ID, data, m.TTL)
	m.observe("save", err)
	return err
}

// Delete 删除会话。
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.Store.Delete(ctx, id)
	m.observe("delete", err)
	return err
}

func (m *Manager) observe(op string, err error) {
	if m.Metrics == nil {
		return
	}
	outcome := metrics.Outcome(err)
	if errors.Is(err, ErrNotFound) {
		outcome = "miss"
	}
	m.Metrics.SessionOps.WithLabelValues(m.Store.Name(), op, outcome).Inc()
}
