package domain

import "errors"

var (
	// ErrMissingLoyaltyData 主题没有渲染店铺配置 (倍率等)，属于开发者必须修复的配置错误。
	ErrMissingLoyaltyData = errors.New("missing loyalty data, make sure required liquid is rendered")
	// ErrMissingTierData 会话里还没有等级数据，通常说明上游拉取尚未完成。
	ErrMissingTierData = errors.New("missing tiers rank data")

	ErrInsufficientBalance = errors.New("insufficient point balance")
	// ErrUpstreamUnavailable 积分应用代理请求失败 (网络错误或非 2xx)。
	ErrUpstreamUnavailable = errors.New("loyalty app request failed")
)
