package domain

import (
	"sort"
)

// NextTier 是下一个尚未达到的等级。
type NextTier struct {
	Name                        string  `json:"name"`
	AdvancementAmountRaw        float64 `json:"advancementAmountRaw"`
	AdvancementAmountMultiplied float64 `json:"advancementAmountMultiplied"`
}

// GetNextTier 按接口返回的顺序扫描，返回第一个 raw_amount*multiplier 仍高于 subtotal 的等级。
// 是首个命中而不是距离最近的等级，列表顺序会影响结果。
func GetNextTier(tiers []Tier, subtotal, multiplier float64) *NextTier {
	for _, t := range tiers {
		diff := t.RawAmount*multiplier - subtotal
		if diff > 0 {
			return &NextTier{
				Name:                        t.Name,
				AdvancementAmountRaw:        t.RawAmount,
				AdvancementAmountMultiplied: diff,
			}
		}
	}
	return nil
}

// GetMaxTier 返回 raw_amount 最高的等级，在副本上排序，不修改传入的切片。
func GetMaxTier(tiers []Tier) *Tier {
	if len(tiers) == 0 {
		return nil
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RawAmount > sorted[j].RawAmount
	})
	return &sorted[0]
}

// ResolveNextTier 在缺少等级数据时返回 ErrMissingTierData，与 "已经是最高等级" (nil, nil) 区分开。
func ResolveNextTier(adv *RankAdvancementData, subtotal, multiplier float64) (*NextTier, error) {
	if adv == nil {
		return nil, ErrMissingTierData
	}
	return GetNextTier(adv.Tiers, subtotal, multiplier), nil
}

// TierInput 渲染等级区块需要的数据。
type TierInput struct {
	TierName    string
	Maintenance *RankMaintenanceData
	Advancement *RankAdvancementData
	Multiplier  float64
	Currency    Currency
	Format      FormatOptions
	Locale      string
}

// TierView 是等级区块的渲染指令。
type TierView struct {
	TierName string `json:"tierName,omitempty"`

	HasMaintenance      bool   `json:"hasMaintenance"`
	MaintenanceAmount   string `json:"maintenanceAmount,omitempty"`
	MaintenanceDeadline string `json:"maintenanceDeadline,omitempty"`

	HasAdvancement      bool   `json:"hasAdvancement"`
	NextTierName        string `json:"nextTierName,omitempty"`
	AdvancementAmount   string `json:"advancementAmount,omitempty"`
	AdvancementDeadline string `json:"advancementDeadline,omitempty"`

	// ShowMaxRank / ShowNotMaxRank 控制 max-rank 与 not-max-rank 目标的显示。
	ShowMaxRank    bool `json:"showMaxRank"`
	ShowNotMaxRank bool `json:"showNotMaxRank"`
}

// BuildTierView 生成等级区块的渲染结果。
func BuildTierView(in TierInput) TierView {
	format := in.Format
	if format == (FormatOptions{}) {
		format = DefaultFormatOptions
	}

	v := TierView{TierName: in.TierName, ShowNotMaxRank: true}

	if in.Maintenance != nil {
		v.HasMaintenance = true
		v.MaintenanceAmount = in.Currency.Format(in.Maintenance.RawAmount, format)
		v.MaintenanceDeadline = FormatDeadline(in.Maintenance.Deadline, in.Locale)
	}

	if in.Advancement == nil {
		return v
	}
	v.HasAdvancement = true

	next := GetNextTier(in.Advancement.Tiers, 0, in.Multiplier)
	if next != nil {
		v.NextTierName = next.Name
		v.AdvancementAmount = in.Currency.Format(next.AdvancementAmountRaw, format)
		v.AdvancementDeadline = FormatDeadline(in.Advancement.Deadline, in.Locale)
		return v
	}

	v.ShowNotMaxRank = false
	if top := GetMaxTier(in.Advancement.Tiers); top != nil {
		v.NextTierName = top.Name
		v.ShowMaxRank = true
	}
	return v
}

// TierRecalculation 购物车页按抵扣后的小计重新计算的结果。
type TierRecalculation struct {
	NextTierName      string `json:"nextTierName,omitempty"`
	AdvancementAmount string `json:"advancementAmount,omitempty"`
	MaxRank           bool   `json:"maxRank"`
}

// Recalculate 用 subtotal - round(discount*rate*100) 计算下一个等级。
func Recalculate(adv *RankAdvancementData, subtotal int64, discount DiscountState, currency Currency, multiplier float64) (TierRecalculation, error) {
	adjusted := subtotal - DiscountNoDecimal(discount.AppliedDiscount, currency, DefaultFormatOptions.Multiplier)
	next, err := ResolveNextTier(adv, float64(adjusted), multiplier)
	if err != nil {
		return TierRecalculation{}, err
	}
	if next == nil {
		return TierRecalculation{MaxRank: true}, nil
	}
	return TierRecalculation{
		NextTierName:      next.Name,
		AdvancementAmount: currency.Format(next.AdvancementAmountMultiplied, FormatOptions{}),
	}, nil
}
