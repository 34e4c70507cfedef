package application

import (
	"context"
	"sync"

	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/service/points/domain"

	"github.com/pkg/errors"
)

const seenEventsLimit = 10000

// RedemptionAuditor 记录兑换事件的审计日志。kafka 至少投递一次，重复的事件 ID 会被忽略。
type RedemptionAuditor struct {
	metrics *metrics.Metrics

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewRedemptionAuditor(m *metrics.Metrics) *RedemptionAuditor {
	return &RedemptionAuditor{metrics: m, seen: make(map[string]struct{})}
}

func (a *RedemptionAuditor) HandleRedemption(ctx context.Context, event domain.RedemptionEvent) error {
	if event.ID == "" || event.SessionID == "" {
		return errors.Errorf("redemption event missing id or session: %+v", event)
	}
	if !a.markSeen(event.ID) {
		logger.Ctx(ctx).Debug().Str("event_id", event.ID).Msg("duplicate redemption event")
		return nil
	}

	if a.metrics != nil {
		a.metrics.Redemptions.WithLabelValues(event.Kind).Inc()
	}
	logger.Ctx(ctx).Info().
		Str("event_id", event.ID).
		Str("session_id", event.SessionID).
		Str("customer_id", event.CustomerID).
		Str("kind", event.Kind).
		Int64("points", event.Points).
		Time("occurred_at", event.OccurredAt).
		Msg("ℹ️ Redemption audited")
	return nil
}

// markSeen 超过上限后清空，只保证近期事件去重
func (a *RedemptionAuditor) markSeen(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[id]; ok {
		return false
	}
	if len(a.seen) >= seenEventsLimit {
		a.seen = make(map[string]struct{})
	}
	a.seen[id] = struct{}{}
	return true
}
