package domain

// AddToCart 用积分兑换商品，返回扣除后的余额，余额不足时返回 ErrInsufficientBalance 且余额不变。
func AddToCart(balance int64, p PointExchangeProduct, quantity int) (int64, error) {
	if quantity <= 0 {
		quantity = 1
	}
	next := balance - p.PointCost*int64(quantity)
	if next < 0 {
		return balance, ErrInsufficientBalance
	}
	return next, nil
}

// RemoveFromCart 退回兑换商品占用的积分。
func RemoveFromCart(balance int64, p PointExchangeProduct, quantity int) int64 {
	if quantity <= 0 {
		quantity = 1
	}
	return balance + p.PointCost*int64(quantity)
}
