// internal/service/points/application/refresh.go
package application

import (
	"context"
	"net/url"
	"time"

	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/pkg/session"
	"easypoints/internal/service/points/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Refresh 从积分应用拉取规则、余额和订单明细并写回会话。
// 三个请求并发执行，单个失败只记录日志，对应的缓存保持原值。
func (s *PointsService) Refresh(ctx context.Context, sessionID string, req *RefreshRequest) (*SessionView, error) {
	ctx, span := s.tracer.Start(ctx, "app.Refresh", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("customer.id", req.Context.CustomerID),
		attribute.Bool("refresh.force", req.Force),
	))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}

	var shopDomain string
	if req.Context.Shop != nil {
		shopDomain = req.Context.Shop.Domain
	}
	custID := req.Context.CustomerID
	now := s.now()

	fetchRule := shopDomain != "" && (req.Force ||
		(custID != "" && sess.IsStale(KeyCustomerUpdatedAt, s.opts.StaleAfter, now)) ||
		sess.IsStale(KeyShopUpdatedAt, s.opts.StaleAfter, now))
	fetchBalance := custID != ""
	fetchOrders := len(req.OrderIDs) > 0 && custID != "" && shopDomain != ""
	span.SetAttributes(
		attribute.Bool("refresh.point_rule", fetchRule),
		attribute.Bool("refresh.balance", fetchBalance),
		attribute.Bool("refresh.orders", fetchOrders),
	)

	var (
		rule    *domain.OrderPointRule
		balance *domain.PointBalance
		orders  map[string]domain.OrderPoints
		g       errgroup.Group
	)
	if fetchRule {
		g.Go(func() error {
			r, err := s.loyalty.OrderPointRule(ctx, custID)
			s.observeUpstream("order_point_rule", err)
			if err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("🛑 Failed to fetch point rule, keeping cached value")
				return nil
			}
			rule = r
			return nil
		})
	}
	if fetchBalance {
		g.Go(func() error {
			b, err := s.loyalty.PointBalance(ctx, custID)
			s.observeUpstream("point_balances", err)
			if err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("🛑 Failed to fetch point balance, keeping cached value")
				return nil
			}
			balance = b
			return nil
		})
	}
	if fetchOrders {
		g.Go(func() error {
			o, err := s.loyalty.OrderDetails(ctx, custID, req.OrderIDs)
			s.observeUpstream("customer_orders", err)
			if err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("🛑 Failed to fetch order details")
				return nil
			}
			orders = o
			return nil
		})
	}
	_ = g.Wait()

	changed := false
	if rule != nil {
		if err := applyPointRule(sess, rule, custID, now); err != nil {
			recordError(span, err, "Failed to cache point rule")
			return nil, err
		}
		changed = true
	}
	if balance != nil {
		if err := applyBalance(sess, balance); err != nil {
			recordError(span, err, "Failed to cache balance")
			return nil, err
		}
		changed = true
	}

	if changed {
		if err := s.sessions.Save(ctx, sess); err != nil {
			recordError(span, err, "Failed to save session")
			return nil, err
		}
		s.notify(ctx, sess)
		span.AddEvent("Session refreshed")
	}
	return s.buildView(sess, orders), nil
}

// applyPointRule 缓存积分规则与等级数据，并更新对应的时间戳标记。
// 游客只更新 shop 标记；顾客同时更新 customer 与 shop 标记。
func applyPointRule(sess *session.Session, r *domain.OrderPointRule, custID string, now time.Time) error {
	if err := session.Set(sess, KeyPointRulePercentage, r.Percentage); err != nil {
		return err
	}
	if err := session.Set(sess, KeyPointRulePointValue, r.PointValue); err != nil {
		return err
	}
	if err := session.Set(sess, KeyPointRuleCurrencyValue, r.CurrencyValue); err != nil {
		return err
	}
	if err := session.Set(sess, KeyTierName, r.TierName); err != nil {
		return err
	}

	if r.TierMaintenanceData != nil {
		if err := setOrDelete(sess, KeyRankMaintenanceData, r.TierMaintenanceData.MaintenanceData); err != nil {
			return err
		}
		if err := setOrDelete(sess, KeyRankAdvancementData, r.TierMaintenanceData.AdvancementData); err != nil {
			return err
		}
	}

	if custID != "" {
		sess.Touch(KeyCustomerUpdatedAt, now)
	}
	sess.Touch(KeyShopUpdatedAt, now)
	return nil
}

// applyBalance 缓存余额。服务端没有优惠券金额时清除会话中的抵扣。
func applyBalance(sess *session.Session, b *domain.PointBalance) error {
	if err := session.Set(sess, KeyPointBalance, b.Balance); err != nil {
		return err
	}
	if err := setOrDelete(sess, KeyBalanceExpirationDate, b.ExpirationDate); err != nil {
		return err
	}

	if b.CouponValue == nil || *b.CouponValue <= 0 {
		sess.Delete(KeyAppliedDiscount)
		sess.Delete(KeyAppliedDiscountCurr)
		return nil
	}
	if err := session.Set(sess, KeyAppliedDiscount, *b.CouponValue); err != nil {
		return err
	}
	if b.CouponCurrency != "" {
		return session.Set(sess, KeyAppliedDiscountCurr, b.CouponCurrency)
	}
	return nil
}

func setOrDelete[T any](sess *session.Session, key string, v *T) error {
	if v == nil {
		sess.Delete(key)
		return nil
	}
	return session.Set(sess, key, *v)
}

func resetForm() url.Values {
	return url.Values{"html_redirect": {"true"}}
}

func noteForm(customerID string, fields map[string]string) url.Values {
	form := url.Values{}
	for k, v := range fields {
		form.Set("customer["+k+"]", v)
	}
	form.Set("customer[id]", customerID)
	return form
}

func (s *PointsService) observeUpstream(endpoint string, err error) {
	if s.metrics != nil {
		s.metrics.UpstreamRequests.WithLabelValues(endpoint, metrics.Outcome(err)).Inc()
	}
}
