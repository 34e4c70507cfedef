package domain

import "strconv"

// OrderPointsView 单个订单的 awardable-points / points-redeemed / points-awarded 文本。
type OrderPointsView struct {
	AwardablePoints string `json:"awardablePoints"`
	PointsRedeemed  string `json:"pointsRedeemed"`
	PointsAwarded   string `json:"pointsAwarded"`
}

func RenderOrderPoints(orders map[string]OrderPoints) map[string]OrderPointsView {
	out := make(map[string]OrderPointsView, len(orders))
	for id, o := range orders {
		out[id] = OrderPointsView{
			AwardablePoints: FormatBigNumber(o.AwardablePoints),
			PointsRedeemed:  FormatBigNumber(o.PointsRedeemed),
			PointsAwarded:   FormatBigNumber(o.PointsAwarded),
		}
	}
	return out
}

// ExpirationView 积分过期日拆成年/月/日。
type ExpirationView struct {
	YY string `json:"yy"`
	MM string `json:"mm"`
	DD string `json:"dd"`
}

// BalanceView 余额区块，Expiration 为空时隐藏过期日容器。
type BalanceView struct {
	Balance    string          `json:"balance"`
	Expiration *ExpirationView `json:"expiration,omitempty"`
}

func RenderBalance(balance int64, expiration *Date) BalanceView {
	v := BalanceView{Balance: FormatBigNumber(balance)}
	if expiration == nil || expiration.IsZero() {
		return v
	}
	t := expiration.Time
	v.Expiration = &ExpirationView{
		YY: strconv.Itoa(t.Year()),
		MM: strconv.Itoa(int(t.Month())),
		DD: strconv.Itoa(t.Day()),
	}
	return v
}
