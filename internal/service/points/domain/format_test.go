package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFormatBigNumber(t *testing.T) {
	tests := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		123456:     "123,456",
		1234567:    "1,234,567",
		-9876543:   "-9,876,543",
		1000000000: "1,000,000,000",
	}
	for in, want := range tests {
		if got := FormatBigNumber(in); got != want {
			t.Errorf("FormatBigNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDisplayedInt(t *testing.T) {
	tests := []struct {
		inner, text string
		want        int64
		ok          bool
	}{
		{"1,234 pt", "", 1234, true},
		{"", "5,678", 5678, true},
		{"pts", "12", 12, true},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDisplayedInt(tt.inner, tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDisplayedInt(%q, %q) = %d, %v; want %d, %v", tt.inner, tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsDigits(t *testing.T) {
	for s, want := range map[string]bool{"123": true, "": false, "1 2": false, "١٢": false, "12.0": false} {
		if got := IsDigits(s); got != want {
			t.Errorf("IsDigits(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var tier Tier
	if err := json.Unmarshal([]byte(`{"name":"Gold","raw_amount":100,"deadline":"2026-12-31"}`), &tier); err != nil {
		t.Fatal(err)
	}
	if tier.Deadline == nil || !tier.Deadline.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("deadline = %v", tier.Deadline)
	}

	var m RankMaintenanceData
	if err := json.Unmarshal([]byte(`{"raw_amount":5,"deadline":null}`), &m); err != nil {
		t.Fatal(err)
	}
	if FormatDeadline(m.Deadline, "en") != "N/A" {
		t.Errorf("null deadline = %q", FormatDeadline(m.Deadline, "en"))
	}

	var bad Tier
	if err := json.Unmarshal([]byte(`{"deadline":"tomorrow"}`), &bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestRenderBalanceAndOrders(t *testing.T) {
	exp := &Date{Time: time.Date(2027, 1, 5, 0, 0, 0, 0, time.UTC)}
	v := RenderBalance(12345, exp)
	if v.Balance != "12,345" || v.Expiration == nil || *v.Expiration != (ExpirationView{YY: "2027", MM: "1", DD: "5"}) {
		t.Errorf("RenderBalance() = %+v", v)
	}
	if RenderBalance(0, nil).Expiration != nil {
		t.Error("expiration should be hidden without a date")
	}

	orders := RenderOrderPoints(map[string]OrderPoints{"1001": {AwardablePoints: 1200, PointsRedeemed: 0, PointsAwarded: 35}})
	if orders["1001"] != (OrderPointsView{AwardablePoints: "1,200", PointsRedeemed: "0", PointsAwarded: "35"}) {
		t.Errorf("RenderOrderPoints() = %+v", orders)
	}
}
