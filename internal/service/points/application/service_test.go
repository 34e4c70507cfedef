package application

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"easypoints/internal/pkg/session"
	"easypoints/internal/service/points/domain"

	"go.opentelemetry.io/otel/trace/noop"
)

type fakeLoyalty struct {
	mu sync.Mutex

	rule       *domain.OrderPointRule
	ruleErr    error
	balance    *domain.PointBalance
	balanceErr error
	orders     map[string]domain.OrderPoints
	cart       *domain.Cart
	redeemErr  error
	resetErr   error

	ruleCalls    int
	ruleCustomer string
	redeemed     []url.Values
	resets       int
	customerForm url.Values
}

func (f *fakeLoyalty) OrderPointRule(_ context.Context, customerID string) (*domain.OrderPointRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleCalls++
	f.ruleCustomer = customerID
	return f.rule, f.ruleErr
}

func (f *fakeLoyalty) PointBalance(context.Context, string) (*domain.PointBalance, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLoyalty) OrderDetails(context.Context, string, []string) (map[string]domain.OrderPoints, error) {
	return f.orders, nil
}

func (f *fakeLoyalty) Redeem(_ context.Context, form url.Values) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeemed = append(f.redeemed, form)
	return f.redeemErr
}

func (f *fakeLoyalty) Reset(context.Context, url.Values) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeLoyalty) UpdateCustomer(_ context.Context, form url.Values) error {
	f.customerForm = form
	return nil
}

func (f *fakeLoyalty) Cart(context.Context, string) (*domain.Cart, error) {
	if f.cart == nil {
		return nil, domain.ErrUpstreamUnavailable
	}
	return f.cart, nil
}

type recordingPublisher struct {
	events []domain.RedemptionEvent
}

func (p *recordingPublisher) PublishRedemption(_ context.Context, e domain.RedemptionEvent) error {
	p.events = append(p.events, e)
	return nil
}

type recordingNotifier struct {
	views []*SessionView
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, v *SessionView) {
	n.views = append(n.views, v)
}

type fixture struct {
	svc       *PointsService
	loyalty   *fakeLoyalty
	sessions  *session.Manager
	publisher *recordingPublisher
	notifier  *recordingNotifier
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		loyalty: &fakeLoyalty{
			rule: &domain.OrderPointRule{
				Percentage: 1, PointValue: 1, CurrencyValue: 100, TierName: "Silver",
				TierMaintenanceData: &domain.TierMaintenanceData{
					AdvancementData: &domain.RankAdvancementData{Tiers: []domain.Tier{{Name: "Gold", RawAmount: 50}}},
				},
			},
			cart: &domain.Cart{TotalPrice: 500000, Items: []domain.CartItem{{ProductID: 1}, {ProductID: 1}, {ProductID: 2}}},
		},
		sessions:  session.NewManager(session.NewMemoryStore(), time.Hour, nil),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewPointsService(f.loyalty, f.sessions, f.publisher, f.notifier, nil, Options{}, noop.NewTracerProvider().Tracer("test"), nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func storefront(customerID string) StorefrontContext {
	return StorefrontContext{
		Shop:       &domain.ShopData{Domain: "example.myshopify.com", Multiplier: 100},
		Currency:   domain.Currency{Rate: 1, Code: "JPY"},
		CustomerID: customerID,
	}
}

func (f *fixture) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := f.sessions.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRefreshCachesPointRuleForGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)

	view, err := f.svc.Refresh(ctx, s.ID, &RefreshRequest{Context: storefront("")})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if view.Rule == nil || view.Rule.CurrencyValue != 100 || view.TierName != "Silver" {
		t.Errorf("view = %+v", view)
	}
	if f.loyalty.ruleCustomer != "" {
		t.Errorf("guest should fetch the shop rule, got customer %q", f.loyalty.ruleCustomer)
	}

	loaded, _ := f.sessions.Load(ctx, s.ID)
	if loaded.IsStale(KeyShopUpdatedAt, 5*time.Minute, f.now) {
		t.Error("shop marker should be fresh after refresh")
	}
	if loaded.Has(KeyCustomerUpdatedAt) {
		t.Error("guest refresh must not set the customer marker")
	}
	if !loaded.Has(KeyRankAdvancementData) {
		t.Error("advancement data not cached")
	}
	if len(f.notifier.views) != 1 {
		t.Errorf("notifications = %d, want 1", len(f.notifier.views))
	}
}

func TestRefreshHonoursStalenessWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	req := &RefreshRequest{Context: storefront("")}

	_, _ = f.svc.Refresh(ctx, s.ID, req)
	f.now = f.now.Add(4 * time.Minute)
	_, _ = f.svc.Refresh(ctx, s.ID, req)
	if f.loyalty.ruleCalls != 1 {
		t.Errorf("ruleCalls = %d, want 1 within the staleness window", f.loyalty.ruleCalls)
	}

	req.Force = true
	_, _ = f.svc.Refresh(ctx, s.ID, req)
	if f.loyalty.ruleCalls != 2 {
		t.Errorf("ruleCalls = %d, want 2 after force", f.loyalty.ruleCalls)
	}

	req.Force = false
	f.now = f.now.Add(6 * time.Minute)
	_, _ = f.svc.Refresh(ctx, s.ID, req)
	if f.loyalty.ruleCalls != 3 {
		t.Errorf("ruleCalls = %d, want 3 after the window", f.loyalty.ruleCalls)
	}
}

func TestRefreshWithoutShopDomainSkipsPointRule(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	sc := storefront("")
	sc.Shop = nil

	if _, err := f.svc.Refresh(context.Background(), s.ID, &RefreshRequest{Context: sc, Force: true}); err != nil {
		t.Fatal(err)
	}
	if f.loyalty.ruleCalls != 0 {
		t.Errorf("ruleCalls = %d, want 0", f.loyalty.ruleCalls)
	}
}

func TestRefreshFailureKeepsCachedValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	_, _ = f.svc.Refresh(ctx, s.ID, &RefreshRequest{Context: storefront("")})

	f.loyalty.ruleErr = domain.ErrUpstreamUnavailable
	view, err := f.svc.Refresh(ctx, s.ID, &RefreshRequest{Context: storefront(""), Force: true})
	if err != nil {
		t.Fatalf("Refresh() error = %v, want failures to be logged only", err)
	}
	if view.Rule == nil || view.Rule.CurrencyValue != 100 {
		t.Errorf("cached rule lost: %+v", view.Rule)
	}
}

func TestRefreshCustomerBalanceAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	_ = session.Set(s, KeyAppliedDiscount, int64(300))
	_ = f.sessions.Save(ctx, s)

	f.loyalty.balance = &domain.PointBalance{Balance: 12345}
	f.loyalty.orders = map[string]domain.OrderPoints{"1001": {AwardablePoints: 1200, PointsRedeemed: 0, PointsAwarded: 1200}}

	view, err := f.svc.Refresh(ctx, s.ID, &RefreshRequest{Context: storefront("42"), OrderIDs: []string{"1001"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.loyalty.ruleCustomer != "42" {
		t.Errorf("rule fetched for %q, want customer 42", f.loyalty.ruleCustomer)
	}
	if view.Balance == nil || view.Balance.Balance != "12,345" || view.Balance.Expiration != nil {
		t.Errorf("balance = %+v", view.Balance)
	}
	if view.Orders["1001"].AwardablePoints != "1,200" {
		t.Errorf("orders = %+v", view.Orders)
	}
	if view.Discount.AppliedDiscount != 0 {
		t.Errorf("balance without coupon should clear the discount, got %d", view.Discount.AppliedDiscount)
	}

	loaded, _ := f.sessions.Load(ctx, s.ID)
	if loaded.IsStale(KeyCustomerUpdatedAt, 5*time.Minute, f.now) {
		t.Error("customer marker should be fresh")
	}

	f.now = f.now.Add(time.Minute)
	_, _ = f.svc.Refresh(ctx, s.ID, &RefreshRequest{Context: storefront("42")})
	if f.loyalty.ruleCalls != 1 {
		t.Errorf("ruleCalls = %d, want cached rule reused for the customer", f.loyalty.ruleCalls)
	}
}

func seedRule(t *testing.T, f *fixture, s *session.Session) {
	t.Helper()
	_ = session.Set(s, KeyPointRulePercentage, 1)
	_ = session.Set(s, KeyPointRulePointValue, 1)
	_ = session.Set(s, KeyPointRuleCurrencyValue, 100)
	_ = session.Set(s, KeyPointBalance, int64(1000))
	if err := f.sessions.Save(context.Background(), s); err != nil {
		t.Fatal(err)
	}
}

func TestPointValuesUsesCachedRule(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	seedRule(t, f, s)

	resp, err := f.svc.PointValues(context.Background(), s.ID, &DocumentRequest{
		Context:  storefront(""),
		Document: domain.Document{{ID: "a", Target: domain.TargetPointValue, CurrencyCost: 1000000}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// 1,000,000 / 100 = 10,000 yen, 1 point per 100 yen
	if got := resp.Document[0].Rendered; got != "100" {
		t.Errorf("rendered = %q, want 100", got)
	}
}

func TestPointValuesMissingShop(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	sc := storefront("")
	sc.Shop = nil

	_, err := f.svc.PointValues(context.Background(), s.ID, &DocumentRequest{Context: sc})
	if !errors.Is(err, domain.ErrMissingLoyaltyData) {
		t.Errorf("error = %v, want ErrMissingLoyaltyData", err)
	}
}

func TestRedeemAppliesDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	seedRule(t, f, s)
	subtotal := int64(500000)

	resp, err := f.svc.Redeem(ctx, s.ID, &RedeemRequest{
		Context:  storefront("42"),
		Input:    domain.RedemptionInput{Points: "1,000", Balance: "1,000", Max: "500000"},
		Subtotal: &subtotal,
	})
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if !resp.Check.Valid || resp.Check.Points != 1000 {
		t.Errorf("check = %+v", resp.Check)
	}
	if resp.View.State != domain.StateDiscountApplied || resp.View.Subtotal == nil || resp.View.Subtotal.Cost != 400000 {
		t.Errorf("view = %+v", resp.View)
	}

	if len(f.loyalty.redeemed) != 1 {
		t.Fatalf("redeem calls = %d", len(f.loyalty.redeemed))
	}
	form := f.loyalty.redeemed[0]
	if form.Get("coupon[point_value]") != "1000" || form.Get("coupon[max_redeemable]") != "500000" {
		t.Errorf("form = %v", form)
	}
	if ids := form["coupon[product_ids][]"]; len(ids) != 2 {
		t.Errorf("product ids = %v, want deduplicated", ids)
	}

	loaded, _ := f.sessions.Load(ctx, s.ID)
	if d, _ := session.Get[int64](loaded, KeyAppliedDiscount); d != 1000 {
		t.Errorf("appliedDiscount = %d", d)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Kind != domain.RedemptionKindRedeem {
		t.Errorf("events = %+v", f.publisher.events)
	}
}

func TestRedeemInvalidClearsDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	seedRule(t, f, s)
	_ = session.Set(s, KeyAppliedDiscount, int64(200))
	_ = f.sessions.Save(ctx, s)

	resp, err := f.svc.Redeem(ctx, s.ID, &RedeemRequest{
		Context: storefront("42"),
		Input:   domain.RedemptionInput{Points: "5000", Balance: "1,000", Max: "500000"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Check.Valid || !resp.Check.Invalid || resp.View.State != domain.StateNoDiscount {
		t.Errorf("resp = %+v", resp)
	}
	if len(f.loyalty.redeemed) != 0 {
		t.Error("invalid redemption must not reach the loyalty app")
	}
	loaded, _ := f.sessions.Load(ctx, s.ID)
	if loaded.Has(KeyAppliedDiscount) {
		t.Error("appliedDiscount should be cleared")
	}
	if f.publisher.events[0].Kind != domain.RedemptionKindFailed {
		t.Errorf("event kind = %q", f.publisher.events[0].Kind)
	}
}

func TestRedeemUpstreamFailureClearsDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	seedRule(t, f, s)
	_ = session.Set(s, KeyAppliedDiscount, int64(200))
	_ = session.Set(s, KeyAppliedDiscountCurr, "JPY")
	_ = f.sessions.Save(ctx, s)
	f.loyalty.redeemErr = domain.ErrUpstreamUnavailable

	_, err := f.svc.Redeem(ctx, s.ID, &RedeemRequest{
		Context: storefront("42"),
		Input:   domain.RedemptionInput{Points: "100", Balance: "1000", Max: "500000"},
	})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("error = %v", err)
	}
	loaded, _ := f.sessions.Load(ctx, s.ID)
	if loaded.Has(KeyAppliedDiscount) || loaded.Has(KeyAppliedDiscountCurr) {
		t.Error("previous discount should be cleared when /redeem fails")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Kind != domain.RedemptionKindFailed {
		t.Errorf("events = %+v", f.publisher.events)
	}
}

func TestResetUpstreamFailureStillClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	_ = session.Set(s, KeyAppliedDiscount, int64(200))
	_ = f.sessions.Save(ctx, s)
	f.loyalty.resetErr = domain.ErrUpstreamUnavailable

	view, err := f.svc.Reset(ctx, s.ID, &ResetRequest{Context: storefront("42")})
	if err != nil {
		t.Fatalf("Reset returned %v", err)
	}
	if view.State != domain.StateNoDiscount || view.InputValue == nil || *view.InputValue != "" {
		t.Errorf("view = %+v", view)
	}
	loaded, _ := f.sessions.Load(ctx, s.ID)
	if loaded.Has(KeyAppliedDiscount) {
		t.Error("appliedDiscount should be removed even when /reset fails")
	}
}

func TestResetClearsDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	_ = session.Set(s, KeyAppliedDiscount, int64(200))
	_ = f.sessions.Save(ctx, s)

	view, err := f.svc.Reset(ctx, s.ID, &ResetRequest{Context: storefront("42")})
	if err != nil {
		t.Fatal(err)
	}
	if view.State != domain.StateNoDiscount || view.InputValue == nil || *view.InputValue != "" {
		t.Errorf("view = %+v", view)
	}
	if f.loyalty.resets != 1 {
		t.Errorf("resets = %d", f.loyalty.resets)
	}
	if e := f.publisher.events[0]; e.Kind != domain.RedemptionKindReset || e.Points != 200 {
		t.Errorf("event = %+v", e)
	}
	loaded, _ := f.sessions.Load(ctx, s.ID)
	if loaded.Has(KeyAppliedDiscount) {
		t.Error("appliedDiscount should be removed")
	}
}

func TestDiscountViewPrefill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	_ = session.Set(s, KeyAppliedDiscount, int64(300))
	_ = f.sessions.Save(ctx, s)

	view, err := f.svc.DiscountView(ctx, s.ID, &DiscountViewRequest{Context: storefront("42")})
	if err != nil {
		t.Fatal(err)
	}
	if view.InputValue == nil || *view.InputValue != "300" || !view.InputDisabled {
		t.Errorf("view = %+v", view)
	}
}

func TestTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	_, _ = f.svc.Refresh(ctx, s.ID, &RefreshRequest{Context: storefront("")})

	subtotal := int64(3000)
	resp, err := f.svc.Tiers(ctx, s.ID, &TiersRequest{Context: storefront(""), Subtotal: &subtotal})
	if err != nil {
		t.Fatal(err)
	}
	if resp.View.NextTierName != "Gold" || resp.View.TierName != "Silver" {
		t.Errorf("view = %+v", resp.View)
	}
	if resp.Recalculation == nil || resp.Recalculation.NextTierName != "Gold" {
		t.Errorf("recalculation = %+v", resp.Recalculation)
	}
}

func TestTiersWithoutTierDataSkipsRecalculation(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	subtotal := int64(3000)

	resp, err := f.svc.Tiers(context.Background(), s.ID, &TiersRequest{Context: storefront(""), Subtotal: &subtotal})
	if err != nil {
		t.Fatalf("Tiers() error = %v", err)
	}
	if resp.Recalculation != nil || resp.View.HasAdvancement {
		t.Errorf("resp = %+v", resp)
	}
}

func TestExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)
	seedRule(t, f, s)
	product := domain.PointExchangeProduct{ProductID: "p1", PointCost: 300}

	resp, err := f.svc.ExchangeAdd(ctx, s.ID, &ExchangeRequest{Product: product, Quantity: 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Balance.Balance != "100" {
		t.Errorf("balance = %q, want 100", resp.Balance.Balance)
	}

	if _, err := f.svc.ExchangeAdd(ctx, s.ID, &ExchangeRequest{Product: product, Quantity: 1}); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("error = %v, want ErrInsufficientBalance", err)
	}

	resp, err = f.svc.ExchangeRemove(ctx, s.ID, &ExchangeRequest{Product: product, Quantity: 1})
	if err != nil || resp.Balance.Balance != "400" {
		t.Errorf("remove = %+v, %v", resp, err)
	}

	resp, err = f.svc.ExchangeAdd(ctx, s.ID, &ExchangeRequest{Quantity: 1})
	if err != nil || resp.Balance.Balance != "400" {
		t.Errorf("non exchange product = %+v, %v", resp, err)
	}
}

func TestUpdateNote(t *testing.T) {
	f := newFixture(t)
	err := f.svc.UpdateNote(context.Background(), "42", &NoteRequest{Fields: map[string]string{"easypoints_birthday": "1990-01-01"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.loyalty.customerForm.Get("customer[easypoints_birthday]"); got != "1990-01-01" {
		t.Errorf("form = %v", f.loyalty.customerForm)
	}
	if got := f.loyalty.customerForm.Get("customer[id]"); got != "42" {
		t.Errorf("customer[id] = %q", got)
	}
}

func TestSnapshotUnknownSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Snapshot(context.Background(), "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("error = %v, want session.ErrNotFound", err)
	}
}
