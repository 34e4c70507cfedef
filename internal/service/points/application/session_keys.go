package application

// 会话缓存中使用的 key，与主题脚本保持一致。
const (
	KeyPointRulePercentage    = "customerPointRulePercentage"
	KeyPointRulePointValue    = "customerPointRulePointValue"
	KeyPointRuleCurrencyValue = "customerPointRuleCurrencyValue"
	KeyTierName               = "tierName"
	KeyRankMaintenanceData    = "rankMaintenanceData"
	KeyRankAdvancementData    = "rankAdvancementData"
	KeyPointBalance           = "pointBalance"
	KeyBalanceExpirationDate  = "balanceExpirationDate"
	KeyAppliedDiscount        = "appliedDiscount"
	KeyAppliedDiscountCurr    = "appliedDiscountCurrency"
	KeyCustomerUpdatedAt      = "customerMetafieldUpdatedAt"
	KeyShopUpdatedAt          = "shopMetafieldUpdatedAt"
)
