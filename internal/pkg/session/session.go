// internal/pkg/session/session.go
package session

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

// Session 是一次浏览会话的缓存，整体序列化为一个 JSON 对象保存。
// 同一个 Session 值不是并发安全的，调用方在一次请求内独占使用。
type Session struct {
	ID     string
	values map[string]json.RawMessage
}

// New 创建一个空会话。
func New(id string) *Session {
	return &Session{ID: id, values: make(map[string]json.RawMessage)}
}

// Decode 从存储的 JSON blob 恢复会话。
func Decode(id string, data []byte) (*Session, error) {
	s := New(id)
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, errors.Wrapf(err, "decode session %s", id)
	}
	if s.values == nil {
		s.values = make(map[string]json.RawMessage)
	}
	return s, nil
}

// Encode 序列化整个会话。
func (s *Session) Encode() ([]byte, error) {
	return json.Marshal(s.values)
}

// Get 读取 key 并解码为 T。key 不存在或类型不匹配时返回零值和 false。
func Get[T any](s *Session, key string) (T, bool) {
	var v T
	raw, ok := s.values[key]
	if !ok || string(raw) == "null" {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		zlog.Warn().Err(err).Str("session", s.ID).Str("key", key).Msg("⚠️ session value has unexpected shape, ignoring")
		var zero T
		return zero, false
	}
	return v, true
}

// Set 编码 v 并写入 key。
func Set[T any](s *Session, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode session key %s", key)
	}
	s.values[key] = raw
	return nil
}

// Delete 删除 key，不存在时无操作。
func (s *Session) Delete(key string) {
	delete(s.values, key)
}

// Has 报告 key 是否存在。
func (s *Session) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Keys 按字典序返回所有 key。
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Touch 把 key 设置为时间戳标记。
func (s *Session) Touch(key string, now time.Time) {
	_ = Set(s, key, now.UTC())
}

// IsStale key 不存在、无法解析或比 ttl 更旧时返回 true。
func (s *Session) IsStale(key string, ttl time.Duration, now time.Time) bool {
	at, ok := Get[time.Time](s, key)
	if !ok {
		return true
	}
	return now.Sub(at) > ttl
}

// Snapshot 返回当前内容的副本，用于推送给订阅者。
func (s *Session) Snapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
