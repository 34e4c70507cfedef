// internal/service/points/domain/ports.go
package domain

import (
	"context"
	"net/url"
	"time"
)

// LoyaltyAPI 积分应用代理 (/apps/loyalty/*) 与平台购物车接口。
type LoyaltyAPI interface {
	// customerID 为空时返回店铺级规则
	OrderPointRule(ctx context.Context, customerID string) (*OrderPointRule, error)
	PointBalance(ctx context.Context, customerID string) (*PointBalance, error)
	OrderDetails(ctx context.Context, customerID string, orderIDs []string) (map[string]OrderPoints, error)
	Redeem(ctx context.Context, form url.Values) error
	Reset(ctx context.Context, form url.Values) error
	UpdateCustomer(ctx context.Context, form url.Values) error
	Cart(ctx context.Context, cartToken string) (*Cart, error)
}

// ExclusionRule 判断某个行项目是否不计积分。
type ExclusionRule interface {
	Excluded(node PointNode) (bool, error)
}

const (
	RedemptionKindRedeem = "redeem"
	RedemptionKindReset  = "reset"
	RedemptionKindFailed = "redeem_failed"
)

// RedemptionEvent 兑换 / 重置后发出的审计事件。
type RedemptionEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Kind       string    `json:"kind"`
	Points     int64     `json:"points"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher 发布兑换事件，失败不影响主流程。
type EventPublisher interface {
	PublishRedemption(ctx context.Context, event RedemptionEvent) error
}
