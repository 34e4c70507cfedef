// internal/service/points/domain/types.go
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// PointRule 是店铺(或顾客所在等级)的积分获取规则。
// 每 CurrencyValue 个货币单位获得 PointValue 积分。
type PointRule struct {
	Percentage    int `json:"percentage"`
	PointValue    int `json:"pointValue"`
	CurrencyValue int `json:"currencyValue"`
}

// Valid 当 CurrencyValue 可以作为除数时返回 true。
func (r PointRule) Valid() bool {
	return r.CurrencyValue > 0
}

// Ratio 返回每个货币单位对应的积分数 (pointValue / currencyValue)。
func (r PointRule) Ratio() float64 {
	if !r.Valid() {
		return 0
	}
	return float64(r.PointValue) / float64(r.CurrencyValue)
}

// TaxInfo 挂在每个行项目上的税务信息。
type TaxInfo struct {
	Included  bool    `json:"included"`
	Exempt    bool    `json:"exempt"`
	Rate      float64 `json:"rate"`
	Awardable bool    `json:"awardable"`
}

// BonusPointSpec 描述某个商品的额外积分规则。
// 同一 ProductID 可能被渲染多次，汇总时只取最大的 BonusPoints。
type BonusPointSpec struct {
	ProductID     string `json:"productId"`
	PointValue    int    `json:"pointValue"`
	CurrencyValue int    `json:"currencyValue"`
	BonusPoints   int64  `json:"bonusPoints"`
	Quantity      int    `json:"quantity"` // 默认 1，积分计算不使用
}

// Ratio 返回额外积分比例，CurrencyValue 非正时为 0。
func (b BonusPointSpec) Ratio() float64 {
	if b.CurrencyValue <= 0 {
		return 0
	}
	return float64(b.PointValue) / float64(b.CurrencyValue)
}

// Date 兼容服务端返回的 "2006-01-02" 与 RFC3339 两种日期格式，null 表示无期限。
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return &time.ParseError{Layout: time.DateOnly, Value: s}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339))
}

// Tier 是一个会员等级，RawAmount 为店铺基础货币下的消费门槛(未乘以倍率)。
type Tier struct {
	Name      string  `json:"name"`
	RawAmount float64 `json:"raw_amount"`
	Deadline  *Date   `json:"deadline"`
}

// RankAdvancementData 升级所需数据。
type RankAdvancementData struct {
	Tiers    []Tier `json:"tiers"`
	Deadline *Date  `json:"deadline,omitempty"`
}

// RankMaintenanceData 保级所需数据。
type RankMaintenanceData struct {
	RawAmount float64 `json:"raw_amount"`
	Deadline  *Date   `json:"deadline"`
}

// DiscountState 是当前会话中已经应用的积分抵扣。
type DiscountState struct {
	AppliedDiscount         int64  `json:"appliedDiscount"`
	AppliedDiscountCurrency string `json:"appliedDiscountCurrency,omitempty"`
}

// Active 有正数抵扣时为 true。
func (d DiscountState) Active() bool {
	return d.AppliedDiscount > 0
}

// ShopData 是主题渲染出的店铺级配置 (原 window.EasyPointsData.shop)。
type ShopData struct {
	Domain     string  `json:"domain"`
	Multiplier float64 `json:"multiplier"`
}

// PointExchangeProduct 可以用积分兑换的商品。
type PointExchangeProduct struct {
	ProductID string `json:"product_id"`
	PointCost int64  `json:"point_cost"`
}

// OrderPoints 单个订单的积分明细。
type OrderPoints struct {
	AwardablePoints int64 `json:"awardable_points"`
	PointsRedeemed  int64 `json:"points_redeemed"`
	PointsAwarded   int64 `json:"points_awarded"`
}

// PointBalance 是 point_balances 接口返回的余额。
type PointBalance struct {
	Balance        int64  `json:"balance"`
	ExpirationDate *Date  `json:"expiration_date"`
	CouponValue    *int64 `json:"coupon_value,omitempty"`
	CouponCurrency string `json:"coupon_currency,omitempty"`
}

// OrderPointRule 是 order_point_rule 接口的响应。
type OrderPointRule struct {
	Percentage          int                  `json:"percentage"`
	PointValue          int                  `json:"point_value"`
	CurrencyValue       int                  `json:"currency_value"`
	TierName            string               `json:"tier_name"`
	TierMaintenanceData *TierMaintenanceData `json:"tier_maintenance_data"`
}

// TierMaintenanceData 把保级与升级数据打包在一起返回。
type TierMaintenanceData struct {
	MaintenanceData *RankMaintenanceData `json:"maintenance_data"`
	AdvancementData *RankAdvancementData `json:"advancement_data"`
}

// Rule 把接口响应转换为积分规则。
func (r OrderPointRule) Rule() PointRule {
	return PointRule{
		Percentage:    r.Percentage,
		PointValue:    r.PointValue,
		CurrencyValue: r.CurrencyValue,
	}
}

// Cart 是平台 /cart.json 的快照，只保留需要的字段。
type Cart struct {
	TotalPrice int64      `json:"total_price"`
	Currency   string     `json:"currency"`
	Items      []CartItem `json:"items"`
}

// CartItem 购物车行项目。
type CartItem struct {
	ProductID  int64  `json:"product_id"`
	VariantID  int64  `json:"variant_id"`
	Quantity   int    `json:"quantity"`
	FinalPrice int64  `json:"final_price"`
	GiftCard   bool   `json:"gift_card"`
	Vendor     string `json:"vendor"`
	Type       string `json:"product_type"`
}
