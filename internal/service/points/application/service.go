// internal/service/points/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/pkg/session"
	"easypoints/internal/service/points/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notifier 把会话的最新视图推送给订阅者 (websocket)。
type Notifier interface {
	Notify(ctx context.Context, sessionID string, view *SessionView)
}

// Options 是 PointsService 的行为配置。
type Options struct {
	StaleAfter time.Duration
	Policy     domain.ExclusionPolicy
	Locale     string
}

// PointsService 编排积分相关的用例: 读取会话缓存，调用领域引擎，必要时访问积分应用并写回会话。
type PointsService struct {
	loyalty   domain.LoyaltyAPI
	sessions  *session.Manager
	publisher domain.EventPublisher
	notifier  Notifier
	exclusion domain.ExclusionRule
	opts      Options
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewPointsService publisher / notifier / exclusion / m 都可以为 nil。
func NewPointsService(loyalty domain.LoyaltyAPI, sessions *session.Manager, publisher domain.EventPublisher, notifier Notifier, exclusion domain.ExclusionRule, opts Options, tracer trace.Tracer, m *metrics.Metrics) *PointsService {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.Policy == "" {
		opts.Policy = domain.ExclusionAlways
	}
	return &PointsService{
		loyalty: loyalty, sessions: sessions,
		publisher: publisher, notifier: notifier, exclusion: exclusion,
		opts: opts, tracer: tracer, metrics: m,
		now: time.Now,
	}
}

// CreateSession 创建一个空的浏览会话。
func (s *PointsService) CreateSession(ctx context.Context) (*SessionView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateSession")
	defer span.End()

	sess, err := s.sessions.Create(ctx)
	if err != nil {
		recordError(span, err, "Failed to create session")
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))
	return s.buildView(sess, nil), nil
}

// Snapshot 返回会话的当前视图，会话不存在时返回 session.ErrNotFound。
func (s *PointsService) Snapshot(ctx context.Context, sessionID string) (*SessionView, error) {
	ctx, span := s.tracer.Start(ctx, "app.Snapshot", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	return s.buildView(sess, nil), nil
}

// PointValues 重新渲染文档中的 point-value 节点。Reset 不为空时先按新的价格重算节点金额。
func (s *PointsService) PointValues(ctx context.Context, sessionID string, req *DocumentRequest) (*DocumentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.PointValues", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("document.nodes", len(req.Document)),
	))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	engine := s.engine(sess, req.Context)

	var doc domain.Document
	if req.Reset != nil {
		doc, err = engine.ResetTargets(req.Document, *req.Reset)
	} else {
		doc, err = engine.UpdatePointRule(req.Document)
	}
	s.observeEngine("point_values", err)
	if err != nil {
		recordError(span, err, "Point valuation failed")
		return nil, err
	}
	return &DocumentResponse{Document: doc}, nil
}

// TotalPoints 渲染 total-points-value 节点。
func (s *PointsService) TotalPoints(ctx context.Context, sessionID string, req *DocumentRequest) (*DocumentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.TotalPoints", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("totals.ignore_excluded", req.Totals.IgnoreExcluded),
		attribute.Bool("totals.ignore_tax", req.Totals.IgnoreTax),
	))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}

	doc, err := s.engine(sess, req.Context).InsertTotalPoints(req.Document, req.Totals)
	s.observeEngine("total_points", err)
	if err != nil {
		recordError(span, err, "Total points failed")
		return nil, err
	}
	return &DocumentResponse{Document: doc}, nil
}

// Redeem 校验兑换积分，成功后提交 /redeem 并进入 discount-applied 状态。
// 校验失败时清除已应用的抵扣，返回 Invalid 的校验结果而不是错误。
func (s *PointsService) Redeem(ctx context.Context, sessionID string, req *RedeemRequest) (*RedeemResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.Redeem", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("customer.id", req.Context.CustomerID),
	))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	engine := s.engine(sess, req.Context)

	input := req.Input
	input.Points = domain.StripNonDigits(input.Points)
	check, err := engine.ValidateRedemption(input)
	s.observeEngine("validate_redemption", err)
	if err != nil {
		recordError(span, err, "Redemption validation failed")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("redemption.valid", check.Valid), attribute.Int64("redemption.points", check.Points))

	if !check.Valid {
		if err := s.clearDiscount(ctx, sess); err != nil {
			recordError(span, err, "Failed to save session")
			return nil, err
		}
		s.countRedemption(domain.RedemptionKindFailed)
		s.publish(ctx, sess.ID, req.Context.CustomerID, domain.RedemptionKindFailed, check.Points)
		logger.Ctx(ctx).Info().Int64("points", check.Points).Msg("Redemption rejected by validation")
		return &RedeemResponse{Check: check, View: domain.NoDiscountView(false)}, nil
	}

	cart, err := s.loyalty.Cart(ctx, req.Context.CartToken)
	if err != nil {
		recordError(span, err, "Failed to fetch cart")
		logger.Ctx(ctx).Error().Err(err).Msg("🛑 Failed to fetch cart for redemption form")
		return nil, s.failRedemption(ctx, sess, req.Context.CustomerID, check.Points, err)
	}
	form := domain.BuildRedemptionForm(*cart, check.Points)
	if err := s.loyalty.Redeem(ctx, form.Values()); err != nil {
		recordError(span, err, "Redeem request failed")
		logger.Ctx(ctx).Error().Err(err).Msg("🛑 Redeem request failed, discount cleared")
		return nil, s.failRedemption(ctx, sess, req.Context.CustomerID, check.Points, err)
	}

	discount := domain.DiscountState{AppliedDiscount: check.Points, AppliedDiscountCurrency: req.Context.Currency.Code}
	if err := s.saveDiscount(ctx, sess, discount); err != nil {
		recordError(span, err, "Failed to save session")
		return nil, err
	}
	s.countRedemption(domain.RedemptionKindRedeem)
	s.publish(ctx, sess.ID, req.Context.CustomerID, domain.RedemptionKindRedeem, check.Points)
	s.notify(ctx, sess)

	view := domain.BuildDiscountView(domain.DiscountInput{
		Discount:    discount,
		Currency:    req.Context.Currency,
		Input:       domain.RedeemInput{Value: input.Points, Valid: true},
		Subtotal:    req.Subtotal,
		TotalPoints: req.TotalPoints,
	})
	span.AddEvent("Points redeemed")
	logger.Ctx(ctx).Info().Int64("points", check.Points).Msg("✅ Points redeemed")
	return &RedeemResponse{Check: check, View: view}, nil
}

// Reset 提交 /reset 并清除已应用的抵扣、清空输入框。上游失败只记录日志。
func (s *PointsService) Reset(ctx context.Context, sessionID string, req *ResetRequest) (*domain.DiscountView, error) {
	ctx, span := s.tracer.Start(ctx, "app.Reset", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	previous := s.discountState(sess)

	// 上游 /reset 失败不影响本地状态切换
	if err := s.loyalty.Reset(ctx, resetForm()); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Msg("⚠️ Reset request failed, clearing discount locally")
	}

	if err := s.clearDiscount(ctx, sess); err != nil {
		recordError(span, err, "Failed to save session")
		return nil, err
	}
	s.countRedemption(domain.RedemptionKindReset)
	s.publish(ctx, sess.ID, req.Context.CustomerID, domain.RedemptionKindReset, previous.AppliedDiscount)
	s.notify(ctx, sess)

	view := domain.NoDiscountView(true)
	return &view, nil
}

// clearDiscount 删除会话中的抵扣并保存。
func (s *PointsService) clearDiscount(ctx context.Context, sess *session.Session) error {
	sess.Delete(KeyAppliedDiscount)
	sess.Delete(KeyAppliedDiscountCurr)
	return s.sessions.Save(ctx, sess)
}

// failRedemption 上游兑换失败后回到无抵扣状态，返回原始错误。
func (s *PointsService) failRedemption(ctx context.Context, sess *session.Session, customerID string, points int64, cause error) error {
	if err := s.clearDiscount(ctx, sess); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("🛑 Failed to clear discount after redemption failure")
		return cause
	}
	s.countRedemption(domain.RedemptionKindFailed)
	s.publish(ctx, sess.ID, customerID, domain.RedemptionKindFailed, points)
	s.notify(ctx, sess)
	return cause
}

// DiscountView 按会话中的抵扣渲染抵扣区块，不访问上游。
func (s *PointsService) DiscountView(ctx context.Context, sessionID string, req *DiscountViewRequest) (*domain.DiscountView, error) {
	ctx, span := s.tracer.Start(ctx, "app.DiscountView", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	view := domain.BuildDiscountView(domain.DiscountInput{
		Discount:    s.discountState(sess),
		Currency:    req.Context.Currency,
		Input:       req.Input,
		Subtotal:    req.Subtotal,
		TotalPoints: req.TotalPoints,
	})
	span.SetAttributes(attribute.String("discount.state", view.State))
	return &view, nil
}

// Tiers 渲染等级区块。Subtotal 不为空时按抵扣后的小计重新计算下一个等级，缺少等级数据时只记录日志。
func (s *PointsService) Tiers(ctx context.Context, sessionID string, req *TiersRequest) (*TiersResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.Tiers", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	mult, err := s.engine(sess, req.Context).Multiplier()
	if err != nil {
		recordError(span, err, "Missing shop data")
		return nil, err
	}

	tierName, _ := session.Get[string](sess, KeyTierName)
	in := domain.TierInput{
		TierName:   tierName,
		Multiplier: mult,
		Currency:   req.Context.Currency,
		Locale:     s.locale(req.Context),
	}
	if m, ok := session.Get[domain.RankMaintenanceData](sess, KeyRankMaintenanceData); ok {
		in.Maintenance = &m
	}
	if a, ok := session.Get[domain.RankAdvancementData](sess, KeyRankAdvancementData); ok {
		in.Advancement = &a
	}

	resp := &TiersResponse{View: domain.BuildTierView(in)}
	s.observeEngine("tiers", nil)

	if req.Subtotal != nil {
		rec, err := domain.Recalculate(in.Advancement, *req.Subtotal, s.discountState(sess), req.Context.Currency, mult)
		switch {
		case errors.Is(err, domain.ErrMissingTierData):
			logger.Ctx(ctx).Warn().Err(err).Msg("⚠️ Skipping tier recalculation")
		case err != nil:
			recordError(span, err, "Tier recalculation failed")
			return nil, err
		default:
			resp.Recalculation = &rec
		}
	}
	return resp, nil
}

// ExchangeAdd 积分兑换商品加入购物车，余额不足时返回 domain.ErrInsufficientBalance。
func (s *PointsService) ExchangeAdd(ctx context.Context, sessionID string, req *ExchangeRequest) (*ExchangeResponse, error) {
	return s.exchange(ctx, "app.ExchangeAdd", sessionID, req, func(balance int64) (int64, error) {
		return domain.AddToCart(balance, req.Product, req.Quantity)
	})
}

// ExchangeRemove 从购物车移除积分兑换商品，退回积分。
func (s *PointsService) ExchangeRemove(ctx context.Context, sessionID string, req *ExchangeRequest) (*ExchangeResponse, error) {
	return s.exchange(ctx, "app.ExchangeRemove", sessionID, req, func(balance int64) (int64, error) {
		return domain.RemoveFromCart(balance, req.Product, req.Quantity), nil
	})
}

func (s *PointsService) exchange(ctx context.Context, name, sessionID string, req *ExchangeRequest, apply func(int64) (int64, error)) (*ExchangeResponse, error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("product.id", req.Product.ProductID),
		attribute.Int("product.quantity", req.Quantity),
	))
	defer span.End()

	sess, err := s.sessions.LoadOrNew(ctx, sessionID)
	if err != nil {
		recordError(span, err, "Failed to load session")
		return nil, err
	}
	balance, _ := session.Get[int64](sess, KeyPointBalance)
	expiration := s.expiration(sess)

	// 不是积分兑换商品时不影响余额
	if req.Product.ProductID == "" {
		return &ExchangeResponse{Balance: domain.RenderBalance(balance, expiration)}, nil
	}

	next, err := apply(balance)
	if err != nil {
		recordError(span, err, "Exchange refused")
		return nil, err
	}
	if err := session.Set(sess, KeyPointBalance, next); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		recordError(span, err, "Failed to save session")
		return nil, err
	}
	s.notify(ctx, sess)
	span.SetAttributes(attribute.Int64("balance.before", balance), attribute.Int64("balance.after", next))
	return &ExchangeResponse{Balance: domain.RenderBalance(next, expiration)}, nil
}

// UpdateNote 把顾客资料表单原样转发给 /apps/loyalty/customers。
func (s *PointsService) UpdateNote(ctx context.Context, customerID string, req *NoteRequest) error {
	ctx, span := s.tracer.Start(ctx, "app.UpdateNote", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	if err := s.loyalty.UpdateCustomer(ctx, noteForm(customerID, req.Fields)); err != nil {
		recordError(span, err, "Customer update failed")
		return err
	}
	logger.Ctx(ctx).Info().Str("customer_id", customerID).Msg("✅ Customer note updated")
	return nil
}

// engine 用会话中的积分规则和请求里的店铺 / 币种组装领域引擎。
func (s *PointsService) engine(sess *session.Session, sc StorefrontContext) domain.Engine {
	rule, _ := s.pointRule(sess)
	return domain.Engine{
		Shop:      sc.Shop,
		Currency:  sc.Currency,
		Rule:      rule,
		Policy:    s.opts.Policy,
		Exclusion: s.exclusion,
	}
}

func (s *PointsService) pointRule(sess *session.Session) (domain.PointRule, bool) {
	cv, ok := session.Get[int](sess, KeyPointRuleCurrencyValue)
	if !ok {
		return domain.PointRule{}, false
	}
	pv, _ := session.Get[int](sess, KeyPointRulePointValue)
	pct, _ := session.Get[int](sess, KeyPointRulePercentage)
	return domain.PointRule{Percentage: pct, PointValue: pv, CurrencyValue: cv}, true
}

func (s *PointsService) discountState(sess *session.Session) domain.DiscountState {
	d, _ := session.Get[int64](sess, KeyAppliedDiscount)
	c, _ := session.Get[string](sess, KeyAppliedDiscountCurr)
	return domain.DiscountState{AppliedDiscount: d, AppliedDiscountCurrency: c}
}

func (s *PointsService) expiration(sess *session.Session) *domain.Date {
	if d, ok := session.Get[domain.Date](sess, KeyBalanceExpirationDate); ok {
		return &d
	}
	return nil
}

func (s *PointsService) saveDiscount(ctx context.Context, sess *session.Session, d domain.DiscountState) error {
	if err := session.Set(sess, KeyAppliedDiscount, d.AppliedDiscount); err != nil {
		return err
	}
	if d.AppliedDiscountCurrency != "" {
		if err := session.Set(sess, KeyAppliedDiscountCurr, d.AppliedDiscountCurrency); err != nil {
			return err
		}
	}
	return s.sessions.Save(ctx, sess)
}

func (s *PointsService) locale(sc StorefrontContext) string {
	if sc.Locale != "" {
		return sc.Locale
	}
	return s.opts.Locale
}

func (s *PointsService) buildView(sess *session.Session, orders map[string]domain.OrderPoints) *SessionView {
	v := &SessionView{SessionID: sess.ID, Discount: s.discountState(sess)}
	if rule, ok := s.pointRule(sess); ok {
		v.Rule = &rule
	}
	v.TierName, _ = session.Get[string](sess, KeyTierName)
	if bal, ok := session.Get[int64](sess, KeyPointBalance); ok {
		bv := domain.RenderBalance(bal, s.expiration(sess))
		v.Balance = &bv
	}
	if len(orders) > 0 {
		v.Orders = domain.RenderOrderPoints(orders)
	}
	return v
}

func (s *PointsService) notify(ctx context.Context, sess *session.Session) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, sess.ID, s.buildView(sess, nil))
}

// publish 发布审计事件，失败只记录日志。
func (s *PointsService) publish(ctx context.Context, sessionID, customerID, kind string, points int64) {
	if s.publisher == nil {
		return
	}
	event := domain.RedemptionEvent{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		CustomerID: customerID,
		Kind:       kind,
		Points:     points,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.PublishRedemption(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("⚠️ Failed to publish redemption event")
	}
}

func (s *PointsService) observeEngine(op string, err error) {
	if s.metrics != nil {
		s.metrics.EngineRuns.WithLabelValues(op, metrics.Outcome(err)).Inc()
	}
}

func (s *PointsService) countRedemption(kind string) {
	if s.metrics != nil {
		s.metrics.Redemptions.WithLabelValues(kind).Inc()
	}
}

func recordError(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}
