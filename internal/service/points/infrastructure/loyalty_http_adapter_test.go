package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"easypoints/internal/pkg/httpclient"
	"easypoints/internal/service/points/domain"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestAdapter(t *testing.T, handler http.Handler) *LoyaltyHTTPAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := httpclient.NewClient(noop.NewTracerProvider().Tracer("test"), 2*time.Second)
	return NewLoyaltyHTTPAdapter(client, srv.URL+"/", "")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Error(err)
	}
}

func TestOrderPointRule(t *testing.T) {
	var paths []string
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{
			"percentage": 1, "point_value": 1, "currency_value": 100, "tier_name": "Gold",
			"tier_maintenance_data": {
				"maintenance_data": {"raw_amount": 30, "deadline": "2026-12-31"},
				"advancement_data": {"tiers": [{"name": "Platinum", "raw_amount": 100}]}
			}
		}`))
	}
	mux.HandleFunc("GET /apps/loyalty/order_point_rule", handler)
	mux.HandleFunc("GET /apps/loyalty/order_point_rule/{id}", handler)
	a := newTestAdapter(t, mux)

	rule, err := a.OrderPointRule(context.Background(), "")
	if err != nil {
		t.Fatalf("OrderPointRule() error = %v", err)
	}
	if rule.Rule().CurrencyValue != 100 || rule.TierName != "Gold" {
		t.Errorf("rule = %+v", rule)
	}
	md := rule.TierMaintenanceData.MaintenanceData
	if md == nil || md.Deadline == nil || md.Deadline.Year() != 2026 {
		t.Errorf("maintenance = %+v", md)
	}

	if _, err := a.OrderPointRule(context.Background(), "42"); err != nil {
		t.Fatal(err)
	}
	want := []string{"/apps/loyalty/order_point_rule", "/apps/loyalty/order_point_rule/42"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestPointBalanceAndOrders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apps/loyalty/point_balances/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"balance": 1500, "expiration_date": null}`))
	})
	mux.HandleFunc("GET /apps/loyalty/customers/{id}/orders", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order_ids"); got != "1001,1002" {
			t.Errorf("order_ids = %q", got)
		}
		w.Write([]byte(`{"orders": {"1001": {"awardable_points": 10, "points_redeemed": 2, "points_awarded": 8}}}`))
	})
	a := newTestAdapter(t, mux)

	bal, err := a.PointBalance(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Balance != 1500 || bal.ExpirationDate != nil || bal.CouponValue != nil {
		t.Errorf("balance = %+v", bal)
	}

	orders, err := a.OrderDetails(context.Background(), "42", []string{"1001", "1002"})
	if err != nil {
		t.Fatal(err)
	}
	if orders["1001"].PointsAwarded != 8 {
		t.Errorf("orders = %+v", orders)
	}
}

func TestPostForms(t *testing.T) {
	got := map[string]url.Values{}
	mux := http.NewServeMux()
	for _, p := range []string{"/apps/loyalty/redeem", "/apps/loyalty/reset", "/apps/loyalty/customers"} {
		mux.HandleFunc("POST "+p, func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Error(err)
			}
			got[r.URL.Path] = r.PostForm
		})
	}
	a := newTestAdapter(t, mux)
	ctx := context.Background()

	form := domain.BuildRedemptionForm(domain.Cart{TotalPrice: 9000, Items: []domain.CartItem{{ProductID: 7}}}, 50).Values()
	if err := a.Redeem(ctx, form); err != nil {
		t.Fatal(err)
	}
	if err := a.Reset(ctx, url.Values{"html_redirect": {"true"}}); err != nil {
		t.Fatal(err)
	}
	if err := a.UpdateCustomer(ctx, url.Values{"customer[id]": {"42"}}); err != nil {
		t.Fatal(err)
	}

	if v := got["/apps/loyalty/redeem"]; v.Get("coupon[point_value]") != "50" || v.Get("coupon[product_ids][]") != "7" {
		t.Errorf("redeem form = %v", v)
	}
	if got["/apps/loyalty/reset"].Get("html_redirect") != "true" {
		t.Errorf("reset form = %v", got["/apps/loyalty/reset"])
	}
	if got["/apps/loyalty/customers"].Get("customer[id]") != "42" {
		t.Errorf("customers form = %v", got["/apps/loyalty/customers"])
	}
}

func TestCartSendsCartCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart.json", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("cart")
		if err != nil || c.Value != "tok123" {
			t.Errorf("cart cookie = %v, %v", c, err)
		}
		writeJSON(t, w, domain.Cart{TotalPrice: 1200, Currency: "JPY", Items: []domain.CartItem{{ProductID: 1, Quantity: 2}}})
	})
	a := newTestAdapter(t, mux)

	cart, err := a.Cart(context.Background(), "tok123")
	if err != nil {
		t.Fatal(err)
	}
	if cart.TotalPrice != 1200 || len(cart.Items) != 1 {
		t.Errorf("cart = %+v", cart)
	}
}

func TestUpstreamErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	a := newTestAdapter(t, mux)

	_, err := a.PointBalance(context.Background(), "42")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status error = %v", err)
	}
	if err := a.Redeem(context.Background(), url.Values{}); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("redeem error = %v", err)
	}
}

func TestRedemptionEventCodec(t *testing.T) {
	event := domain.RedemptionEvent{ID: "e1", SessionID: "s1", Kind: domain.RedemptionKindRedeem, Points: 100,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	key, value, err := EncodeRedemptionEvent(event)
	if err != nil {
		t.Fatal(err)
	}
	if string(key) != "s1" {
		t.Errorf("key = %q", key)
	}
	back, err := DecodeRedemptionEvent(kafkaMessage(value))
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != event.ID || back.Kind != event.Kind || back.Points != 100 || !back.OccurredAt.Equal(event.OccurredAt) {
		t.Errorf("decoded = %+v, want %+v", back, event)
	}
	if _, err := DecodeRedemptionEvent(kafkaMessage([]byte("{"))); err == nil {
		t.Error("expected decode error")
	}
}

func kafkaMessage(value []byte) kafka.Message {
	return kafka.Message{Topic: "easypoints.redemptions", Value: value}
}
