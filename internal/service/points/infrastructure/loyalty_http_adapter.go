// internal/service/points/infrastructure/loyalty_http_adapter.go
package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"easypoints/internal/pkg/httpclient"
	"easypoints/internal/service/points/domain"
)

const (
	orderPointRulePath = "/apps/loyalty/order_point_rule"
	pointBalancesPath  = "/apps/loyalty/point_balances/"
	customersPath      = "/apps/loyalty/customers"
	redeemPath         = "/apps/loyalty/redeem"
	resetPath          = "/apps/loyalty/reset"
	cartPath           = "/cart.json"
)

// LoyaltyHTTPAdapter 实现了 domain.LoyaltyAPI，访问积分应用代理和店铺购物车。
type LoyaltyHTTPAdapter struct {
	client        *httpclient.Client
	baseURL       string
	storefrontURL string
}

// NewLoyaltyHTTPAdapter storefrontURL 为空时 /cart.json 与代理使用同一个域名。
func NewLoyaltyHTTPAdapter(client *httpclient.Client, baseURL, storefrontURL string) *LoyaltyHTTPAdapter {
	baseURL = strings.TrimRight(baseURL, "/")
	storefrontURL = strings.TrimRight(storefrontURL, "/")
	if storefrontURL == "" {
		storefrontURL = baseURL
	}
	return &LoyaltyHTTPAdapter{client: client, baseURL: baseURL, storefrontURL: storefrontURL}
}

// OrderPointRule customerID 为空时返回店铺级规则。
func (a *LoyaltyHTTPAdapter) OrderPointRule(ctx context.Context, customerID string) (*domain.OrderPointRule, error) {
	route := a.baseURL + orderPointRulePath
	if customerID != "" {
		route += "/" + url.PathEscape(customerID)
	}
	var rule domain.OrderPointRule
	if err := a.client.GetJSON(ctx, route, nil, &rule); err != nil {
		return nil, upstream("order_point_rule", err)
	}
	return &rule, nil
}

func (a *LoyaltyHTTPAdapter) PointBalance(ctx context.Context, customerID string) (*domain.PointBalance, error) {
	var balance domain.PointBalance
	if err := a.client.GetJSON(ctx, a.baseURL+pointBalancesPath+url.PathEscape(customerID), nil, &balance); err != nil {
		return nil, upstream("point_balances", err)
	}
	return &balance, nil
}

// OrderDetails order_ids 以逗号拼接成一个参数。
func (a *LoyaltyHTTPAdapter) OrderDetails(ctx context.Context, customerID string, orderIDs []string) (map[string]domain.OrderPoints, error) {
	params := url.Values{}
	params.Set("order_ids", strings.Join(orderIDs, ","))
	route := fmt.Sprintf("%s%s/%s/orders?%s", a.baseURL, customersPath, url.PathEscape(customerID), params.Encode())

	var resp struct {
		Orders map[string]domain.OrderPoints `json:"orders"`
	}
	if err := a.client.GetJSON(ctx, route, nil, &resp); err != nil {
		return nil, upstream("customer_orders", err)
	}
	return resp.Orders, nil
}

func (a *LoyaltyHTTPAdapter) Redeem(ctx context.Context, form url.Values) error {
	if err := a.client.PostForm(ctx, a.baseURL+redeemPath, form); err != nil {
		return upstream("redeem", err)
	}
	return nil
}

func (a *LoyaltyHTTPAdapter) Reset(ctx context.Context, form url.Values) error {
	if err := a.client.PostForm(ctx, a.baseURL+resetPath, form); err != nil {
		return upstream("reset", err)
	}
	return nil
}

func (a *LoyaltyHTTPAdapter) UpdateCustomer(ctx context.Context, form url.Values) error {
	if err := a.client.PostForm(ctx, a.baseURL+customersPath, form); err != nil {
		return upstream("customers", err)
	}
	return nil
}

// Cart 读取 /cart.json，cartToken 通过 cart cookie 传递。
func (a *LoyaltyHTTPAdapter) Cart(ctx context.Context, cartToken string) (*domain.Cart, error) {
	header := http.Header{}
	if cartToken != "" {
		header.Set("Cookie", (&http.Cookie{Name: "cart", Value: cartToken}).String())
	}
	var cart domain.Cart
	if err := a.client.GetJSON(ctx, a.storefrontURL+cartPath, header, &cart); err != nil {
		return nil, upstream("cart", err)
	}
	return &cart, nil
}

func upstream(endpoint string, err error) error {
	return fmt.Errorf("%s: %w: %w", endpoint, domain.ErrUpstreamUnavailable, err)
}
