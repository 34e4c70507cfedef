// internal/service/points/domain/valuation.go
package domain

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Target 对应主题里的 data-loyal-target。
type Target string

const (
	TargetPointValue       Target = "point-value"
	TargetTotalPointsValue Target = "total-points-value"
	TargetPointExclusion   Target = "point-exclusion"
	TargetBalance          Target = "balance"
	TargetSubtotal         Target = "subtotal"
)

// ExclusionPolicy 决定 InsertTotalPoints 何时扣除不计积分的金额。
type ExclusionPolicy string

const (
	// ExclusionAlways 无论税是否计入积分都扣除 (默认)。
	ExclusionAlways ExclusionPolicy = "always"
	// ExclusionNonAwardableOnly 只有在重新汇总行项目金额时才扣除。
	ExclusionNonAwardableOnly ExclusionPolicy = "non-awardable-only"
)

// LineItem 是节点对应的购物车商品信息，供排除规则判断。
type LineItem struct {
	ProductID   string   `json:"productId"`
	VariantID   string   `json:"variantId,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"productType,omitempty"`
	GiftCard    bool     `json:"giftCard,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// PointNode 是一个需要计算积分的渲染节点。
// Rendered 相当于节点的 innerText，TextContent 是前端上报的 textContent。
type PointNode struct {
	ID            string          `json:"id"`
	Target        Target          `json:"target"`
	CurrencyCost  int64           `json:"currencyCost"`
	Quantity      int             `json:"quantity,omitempty"`
	Tax           *TaxInfo        `json:"tax,omitempty"`
	Bonus         *BonusPointSpec `json:"bonus,omitempty"`
	Item          *LineItem       `json:"item,omitempty"`
	RoundUp       bool            `json:"roundUp,omitempty"`
	CartSubtotal  bool            `json:"cartSubtotal,omitempty"`
	Blocked       bool            `json:"blocked,omitempty"`
	AfterDiscount bool            `json:"afterDiscount,omitempty"`
	Points        int64           `json:"points"`
	Rendered      string          `json:"rendered,omitempty"`
	TextContent   string          `json:"textContent,omitempty"`
}

func (n PointNode) qty() int64 {
	if n.Quantity <= 0 {
		return 1
	}
	return int64(n.Quantity)
}

// Document 按文档顺序排列的节点。顺序会影响结果: 后面的购物车小计节点能看到前面节点刚更新的额外积分。
type Document []PointNode

// Clone 深拷贝，Bonus 等指针字段不会与原文档共享。
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for i, n := range d {
		if n.Bonus != nil {
			b := *n.Bonus
			n.Bonus = &b
		}
		if n.Tax != nil {
			t := *n.Tax
			n.Tax = &t
		}
		out[i] = n
	}
	return out
}

// TotalOptions 是 InsertTotalPoints 的选项。
type TotalOptions struct {
	IgnoreExcluded bool `json:"ignoreExcluded"`
	IgnoreTax      bool `json:"ignoreTax"`
}

// PriceOptions 是 SetCurrencyCost / ResetTargets 的选项，Price 为空时使用节点当前金额。
type PriceOptions struct {
	Price      *int64  `json:"price,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	IgnoreTax  bool    `json:"ignoreTax,omitempty"`
}

// Engine 积分估值引擎，只做纯计算，不持有会话。
type Engine struct {
	Shop      *ShopData
	Currency  Currency
	Rule      PointRule
	Policy    ExclusionPolicy
	Exclusion ExclusionRule
}

// Multiplier = shop.multiplier * 汇率。
func (e Engine) Multiplier() (float64, error) {
	if e.Shop == nil || e.Shop.Multiplier <= 0 {
		return 0, ErrMissingLoyaltyData
	}
	return e.Shop.Multiplier * e.Currency.GetRate(), nil
}

// InsertPointValue 计算第 i 个节点的积分，返回新的文档。
func (e Engine) InsertPointValue(doc Document, i int) (Document, error) {
	mult, err := e.Multiplier()
	if err != nil {
		return doc, err
	}
	out := doc.Clone()
	if i < 0 || i >= len(out) {
		return out, nil
	}
	e.insertPointValue(out, i, mult)
	return out, nil
}

func (e Engine) insertPointValue(doc Document, i int, mult float64) {
	node := &doc[i]
	if !e.Rule.Valid() {
		log.Warn().Str("node", node.ID).Int("currency_value", e.Rule.CurrencyValue).Msg("[EasyPoints] point rule not loaded, rendering zero")
	}

	cost := float64(node.CurrencyCost) / mult
	points := cost * e.Rule.Ratio()

	if node.Bonus != nil {
		node.Bonus.BonusPoints = int64(math.Floor(cost * node.Bonus.Ratio()))
		points += float64(node.Bonus.BonusPoints)
	}

	if node.CartSubtotal {
		points += float64(TotalBonusPoints(doc))
	}

	if node.RoundUp {
		points = math.Ceil(points)
	} else {
		points = math.Floor(points)
	}

	node.Points = int64(points)
	node.Rendered = FormatBigNumber(node.Points)
}

// UpdatePointRule 按文档顺序重新计算所有未被屏蔽的 point-value 节点。
func (e Engine) UpdatePointRule(doc Document) (Document, error) {
	mult, err := e.Multiplier()
	if err != nil {
		return doc, err
	}
	out := doc.Clone()
	for i := range out {
		if out[i].Target == TargetPointValue && !out[i].Blocked {
			e.insertPointValue(out, i, mult)
		}
	}
	return out, nil
}

// TotalBonusPoints 按商品去重后汇总额外积分，同一商品取最大值。
func TotalBonusPoints(doc Document) int64 {
	byProduct := make(map[string]int64)
	for _, n := range doc {
		if n.Bonus == nil {
			continue
		}
		cur, ok := byProduct[n.Bonus.ProductID]
		if !ok || cur < n.Bonus.BonusPoints {
			byProduct[n.Bonus.ProductID] = n.Bonus.BonusPoints
		}
	}
	var total int64
	for _, p := range byProduct {
		total += p
	}
	return total
}

// ExcludedCost 汇总不计积分的金额: point-exclusion 节点，以及被排除规则命中的行项目。
func (e Engine) ExcludedCost(doc Document) int64 {
	var excluded int64
	for _, n := range doc {
		switch {
		case n.Target == TargetPointExclusion:
			excluded += n.CurrencyCost
		case n.Target == TargetPointValue && n.Item != nil && e.Exclusion != nil:
			hit, err := e.Exclusion.Excluded(n)
			if err != nil {
				log.Error().Err(err).Str("node", n.ID).Msg("[EasyPoints] exclusion rule failed, item kept")
				continue
			}
			if hit {
				excluded += n.CurrencyCost * n.qty()
			}
		}
	}
	return excluded
}

// SetCost 计算节点应写回的金额: price*multiplier，非正数为 0，否则按需计税。
// tax 为空时不做税务调整。
func SetCost(price int64, multiplier float64, ignoreTax bool, tax *TaxInfo) int64 {
	if multiplier == 0 {
		multiplier = 1
	}
	p := int64(math.Floor(float64(price) * multiplier))
	if p <= 0 {
		return 0
	}
	if tax != nil && !ignoreTax {
		return GetTaxedCost(p, tax)
	}
	return p
}

// SetCurrencyCost 把 SetCost 的结果写回节点。
func SetCurrencyCost(node *PointNode, opts PriceOptions) {
	price := node.CurrencyCost
	if opts.Price != nil {
		price = *opts.Price
	}
	node.CurrencyCost = SetCost(price, opts.Multiplier, opts.IgnoreTax, node.Tax)
}

// InsertTotalPoints 计算所有 total-points-value 节点。
func (e Engine) InsertTotalPoints(doc Document, opts TotalOptions) (Document, error) {
	mult, err := e.Multiplier()
	if err != nil {
		return doc, err
	}
	out := doc.Clone()

	for i := range out {
		if out[i].Target != TargetTotalPointsValue {
			continue
		}
		node := &out[i]

		tax := node.Tax
		if tax == nil {
			log.Error().Str("node", node.ID).Msg("[EasyPoints] Tax object not defined.")
			tax = &TaxInfo{}
		}
		trusted := tax.Awardable && tax.Included

		total := node.CurrencyCost
		if !trusted {
			total = 0
			for _, n := range out {
				if n.Target == TargetPointValue {
					total += n.CurrencyCost * n.qty()
				}
			}
		}

		if !opts.IgnoreExcluded && (e.Policy != ExclusionNonAwardableOnly || !trusted) {
			total -= e.ExcludedCost(out)
		}

		node.CurrencyCost = SetCost(total, 1, tax.Awardable || opts.IgnoreTax, node.Tax)
		e.insertPointValue(out, i, mult)

		totalPoints, ok := ParseDisplayedInt(node.Rendered, node.TextContent)
		if !ok {
			log.Warn().Str("node", node.ID).Msg("[EasyPoints] could not parse rendered total points")
			totalPoints = 0
		}
		totalPoints += TotalBonusPoints(out)

		node.Points = totalPoints
		node.Rendered = FormatBigNumber(totalPoints)
	}
	return out, nil
}

// ResetTargets 重新计算 point-value 节点的金额 (跳过抵扣后积分节点)，然后重新渲染积分。
func (e Engine) ResetTargets(doc Document, opts PriceOptions) (Document, error) {
	out := doc.Clone()
	for i := range out {
		if out[i].Target != TargetPointValue || out[i].AfterDiscount {
			continue
		}
		SetCurrencyCost(&out[i], opts)
	}
	return e.UpdatePointRule(out)
}
