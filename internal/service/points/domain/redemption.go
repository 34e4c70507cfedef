package domain

import (
	"math"
	"net/url"
	"strconv"
)

// RedemptionInput 是兑换表单的原始字段。
// Points 来自输入框，Balance 来自页面上渲染的余额文本，Max 来自隐藏域 (最小货币单位)。
type RedemptionInput struct {
	Points  string `json:"points"`
	Balance string `json:"balance"`
	Max     string `json:"max"`
}

// RedemptionCheck 校验结果，Invalid 对应输入框上的 invalid 样式。
type RedemptionCheck struct {
	Valid   bool  `json:"valid"`
	Points  int64 `json:"points"`
	Invalid bool  `json:"invalid"`
}

// MaxRedeemablePoints = floor(max / multiplier)。
func MaxRedeemablePoints(maxCost int64, multiplier float64) int64 {
	if multiplier <= 0 {
		return 0
	}
	return int64(math.Floor(float64(maxCost) / multiplier))
}

// ValidateRedemption 当且仅当所有字段都是纯数字且 0 < points <= min(balance, floor(max/multiplier)) 时有效。
// 余额文本先去掉千分位等展示字符再校验。
func (e Engine) ValidateRedemption(in RedemptionInput) (RedemptionCheck, error) {
	mult, err := e.Multiplier()
	if err != nil {
		return RedemptionCheck{}, err
	}

	fields := []string{in.Points, StripNonDigits(in.Balance), in.Max}
	values := make([]int64, len(fields))
	for i, f := range fields {
		if !IsDigits(f) {
			return RedemptionCheck{Invalid: true}, nil
		}
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return RedemptionCheck{Invalid: true}, nil
		}
		values[i] = v
	}

	points, balance, maxCost := values[0], values[1], values[2]
	limit := min(balance, MaxRedeemablePoints(maxCost, mult))
	if points <= 0 || points > limit {
		return RedemptionCheck{Points: points, Invalid: true}, nil
	}
	return RedemptionCheck{Valid: true, Points: points}, nil
}

// RedemptionForm 是提交给 /apps/loyalty/redeem 的表单。
type RedemptionForm struct {
	Points        int64
	MaxRedeemable int64
	ProductIDs    []int64
	HTMLRedirect  bool
}

// BuildRedemptionForm 用购物车快照填充兑换表单，商品 ID 去重并保持购物车顺序。
func BuildRedemptionForm(cart Cart, points int64) RedemptionForm {
	form := RedemptionForm{
		Points:        points,
		MaxRedeemable: cart.TotalPrice,
		HTMLRedirect:  true,
	}
	seen := make(map[int64]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		form.ProductIDs = append(form.ProductIDs, item.ProductID)
	}
	return form
}

// Values 按 coupon[...] 命名编码成表单。
func (f RedemptionForm) Values() url.Values {
	v := url.Values{}
	v.Set("coupon[point_value]", strconv.FormatInt(f.Points, 10))
	v.Set("coupon[max_redeemable]", strconv.FormatInt(f.MaxRedeemable, 10))
	for _, id := range f.ProductIDs {
		v.Add("coupon[product_ids][]", strconv.FormatInt(id, 10))
	}
	if f.HTMLRedirect {
		v.Set("html_redirect", "true")
	}
	return v
}
