// internal/service/points/application/dto.go
package application

import (
	"easypoints/internal/service/points/domain"
)

// StorefrontContext 是主题每次请求都会带上的店铺 / 币种 / 顾客信息。
type StorefrontContext struct {
	Shop       *domain.ShopData `json:"shop"`
	Currency   domain.Currency  `json:"currency"`
	CustomerID string           `json:"customerId,omitempty"`
	Locale     string           `json:"locale,omitempty"`
	CartToken  string           `json:"cartToken,omitempty"`
}

// RefreshRequest 刷新会话缓存
type RefreshRequest struct {
	Context  StorefrontContext `json:"context"`
	OrderIDs []string          `json:"orderIds,omitempty"`
	Force    bool              `json:"force,omitempty"`
}

// SessionView 是会话缓存的渲染视图，刷新后通过 HTTP 响应和 websocket 返回给主题。
type SessionView struct {
	SessionID string                            `json:"sessionId"`
	Rule      *domain.PointRule                 `json:"rule,omitempty"`
	TierName  string                            `json:"tierName,omitempty"`
	Balance   *domain.BalanceView               `json:"balance,omitempty"`
	Discount  domain.DiscountState              `json:"discount"`
	Orders    map[string]domain.OrderPointsView `json:"orders,omitempty"`
}

// DocumentRequest 是 point-values / total-points 的输入。
type DocumentRequest struct {
	Context  StorefrontContext    `json:"context"`
	Document domain.Document      `json:"document"`
	Totals   domain.TotalOptions  `json:"totals"`
	Reset    *domain.PriceOptions `json:"reset,omitempty"`
}

type DocumentResponse struct {
	Document domain.Document `json:"document"`
}

// RedeemRequest 提交积分兑换。Subtotal / TotalPoints 用于返回抵扣后的小计。
type RedeemRequest struct {
	Context     StorefrontContext      `json:"context"`
	Input       domain.RedemptionInput `json:"input"`
	Subtotal    *int64                 `json:"subtotal,omitempty"`
	TotalPoints *domain.PointNode      `json:"totalPoints,omitempty"`
}

type RedeemResponse struct {
	Check domain.RedemptionCheck `json:"check"`
	View  domain.DiscountView    `json:"view"`
}

type ResetRequest struct {
	Context StorefrontContext `json:"context"`
}

// DiscountViewRequest 页面加载时渲染抵扣区块
type DiscountViewRequest struct {
	Context     StorefrontContext  `json:"context"`
	Input       domain.RedeemInput `json:"input"`
	Subtotal    *int64             `json:"subtotal,omitempty"`
	TotalPoints *domain.PointNode  `json:"totalPoints,omitempty"`
}

// TiersRequest Subtotal 不为空时同时返回购物车页重新计算的结果。
type TiersRequest struct {
	Context  StorefrontContext
	Subtotal *int64
}

type TiersResponse struct {
	View          domain.TierView           `json:"view"`
	Recalculation *domain.TierRecalculation `json:"recalculation,omitempty"`
}

// ExchangeRequest 积分兑换商品加入 / 移出购物车
type ExchangeRequest struct {
	Context  StorefrontContext           `json:"context"`
	Product  domain.PointExchangeProduct `json:"product"`
	Quantity int                         `json:"quantity"`
}

type ExchangeResponse struct {
	Balance domain.BalanceView `json:"balance"`
}

// NoteRequest 顾客资料更新，Fields 会以 customer[key] 的形式提交。
type NoteRequest struct {
	Fields map[string]string `json:"fields"`
}
