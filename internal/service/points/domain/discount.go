package domain

import (
	"math"
	"strconv"
	"strings"
)

const (
	StateNoDiscount      = "no-discount"
	StateDiscountApplied = "discount-applied"
)

// DiscountNoDecimal 把积分抵扣换算为最小货币单位: round(discount * rate * multiplier)。
func DiscountNoDecimal(discount int64, c Currency, multiplier float64) int64 {
	return int64(math.Round(float64(discount) * c.GetRate() * multiplier))
}

// RedeemInput 是兑换输入框当前的状态。
type RedeemInput struct {
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

// DiscountInput 渲染抵扣区块所需的数据。
// Subtotal 为小计元素上的 data-loyal-total-price，TotalPoints 为 points-after-applied-discount 节点。
type DiscountInput struct {
	Discount    DiscountState
	Currency    Currency
	Input       RedeemInput
	Subtotal    *int64
	TotalPoints *PointNode
}

// AdjustedSubtotal 是抵扣后的小计克隆节点内容。
type AdjustedSubtotal struct {
	Cost                    int64  `json:"cost"`
	Formatted               string `json:"formatted"`
	PointsAfterDiscount     *int64 `json:"pointsAfterDiscount,omitempty"`
	PointsAfterDiscountText string `json:"pointsAfterDiscountText,omitempty"`
}

// DiscountView 是抵扣开关的渲染指令。InputValue 为 nil 时不修改输入框。
type DiscountView struct {
	State                  string            `json:"state"`
	AppliedDiscount        int64             `json:"appliedDiscount"`
	InputDisabled          bool              `json:"inputDisabled"`
	InputValue             *string           `json:"inputValue,omitempty"`
	ShowRedeem             bool              `json:"showRedeem"`
	ShowReset              bool              `json:"showReset"`
	ShowBanners            bool              `json:"showBanners"`
	ShowAdditionalCheckout bool              `json:"showAdditionalCheckout"`
	Subtotal               *AdjustedSubtotal `json:"subtotal,omitempty"`
}

// NoDiscountView 未抵扣状态。clearInput 为 true 时清空输入框 (reset 之后不回填旧值)。
func NoDiscountView(clearInput bool) DiscountView {
	v := DiscountView{
		State:                  StateNoDiscount,
		ShowRedeem:             true,
		ShowAdditionalCheckout: true,
	}
	if clearInput {
		empty := ""
		v.InputValue = &empty
	}
	return v
}

// BuildDiscountView 有抵扣时进入 discount-applied，否则为 no-discount。
func BuildDiscountView(in DiscountInput) DiscountView {
	discount := in.Discount.AppliedDiscount
	if discount <= 0 {
		return NoDiscountView(false)
	}

	v := DiscountView{
		State:           StateDiscountApplied,
		AppliedDiscount: discount,
		InputDisabled:   true,
		ShowReset:       true,
		ShowBanners:     true,
	}

	// 输入框被标记为 valid 或已经有未提交的正数时保持不动
	if !in.Input.Valid && notPositive(in.Input.Value) {
		s := strconv.FormatInt(discount, 10)
		v.InputValue = &s
	}

	if in.Subtotal != nil {
		v.Subtotal = adjustSubtotal(*in.Subtotal, discount, in.Currency, in.TotalPoints)
	}
	return v
}

// notPositive 空值或数值 <= 0 时为 true，无法解析的输入保持不动。
func notPositive(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	n, err := strconv.ParseFloat(s, 64)
	return err == nil && n <= 0
}

func adjustSubtotal(subtotal, discount int64, c Currency, totalPoints *PointNode) *AdjustedSubtotal {
	cost := subtotal - DiscountNoDecimal(discount, c, DefaultFormatOptions.Multiplier)
	if cost < 0 {
		return nil
	}

	adj := &AdjustedSubtotal{Cost: cost, Formatted: c.Format(float64(cost), FormatOptions{})}
	if totalPoints == nil {
		return adj
	}

	points := PointsAfterDiscount(subtotal, cost, totalPoints)
	adj.PointsAfterDiscount = &points
	adj.PointsAfterDiscountText = FormatBigNumber(points)
	return adj
}

// PointsAfterDiscount = max(0, ceil(taxed(cost) / taxed(subtotal) * 当前总积分))。
func PointsAfterDiscount(subtotal, cost int64, totalPoints *PointNode) int64 {
	current, ok := ParseDisplayedInt(totalPoints.Rendered, totalPoints.TextContent)
	if !ok {
		current = totalPoints.Points
	}
	subtotalTaxed := GetTaxedCost(subtotal, totalPoints.Tax)
	costTaxed := GetTaxedCost(cost, totalPoints.Tax)
	if subtotalTaxed <= 0 {
		return 0
	}
	p := math.Ceil(float64(costTaxed) / float64(subtotalTaxed) * float64(current))
	return max(0, int64(p))
}
