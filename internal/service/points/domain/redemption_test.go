package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidateRedemption(t *testing.T) {
	e := testEngine(PointRule{PointValue: 1, CurrencyValue: 1})

	tests := []struct {
		name  string
		in    RedemptionInput
		valid bool
	}{
		{"zero points", RedemptionInput{Points: "0", Balance: "1000", Max: "200000"}, false},
		{"points equal balance", RedemptionInput{Points: "1000", Balance: "1,000", Max: "200000"}, true},
		{"points above balance", RedemptionInput{Points: "1001", Balance: "1000", Max: "200000"}, false},
		{"capped by max", RedemptionInput{Points: "600", Balance: "1000", Max: "50000"}, false},
		{"at max", RedemptionInput{Points: "500", Balance: "1000", Max: "50099"}, true},
		{"non numeric points", RedemptionInput{Points: "10a", Balance: "1000", Max: "200000"}, false},
		{"negative points", RedemptionInput{Points: "-5", Balance: "1000", Max: "200000"}, false},
		{"empty points", RedemptionInput{Points: "", Balance: "1000", Max: "200000"}, false},
		{"malformed max", RedemptionInput{Points: "10", Balance: "1000", Max: "2000.5"}, false},
		{"missing balance", RedemptionInput{Points: "10", Balance: "-", Max: "200000"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ValidateRedemption(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got.Valid != tt.valid || got.Invalid == tt.valid {
				t.Errorf("ValidateRedemption() = %+v, want valid=%v", got, tt.valid)
			}
		})
	}
}

func TestValidateRedemptionMissingShop(t *testing.T) {
	e := testEngine(PointRule{})
	e.Shop = nil
	if _, err := e.ValidateRedemption(RedemptionInput{Points: "1", Balance: "1", Max: "100"}); !errors.Is(err, ErrMissingLoyaltyData) {
		t.Errorf("error = %v, want ErrMissingLoyaltyData", err)
	}
}

func TestBuildRedemptionForm(t *testing.T) {
	cart := Cart{
		TotalPrice: 4500,
		Items: []CartItem{
			{ProductID: 11, VariantID: 1},
			{ProductID: 22, VariantID: 2},
			{ProductID: 11, VariantID: 3},
		},
	}
	form := BuildRedemptionForm(cart, 300)
	if form.MaxRedeemable != 4500 || !form.HTMLRedirect {
		t.Errorf("form = %+v", form)
	}
	if !reflect.DeepEqual(form.ProductIDs, []int64{11, 22}) {
		t.Errorf("product ids = %v, want [11 22]", form.ProductIDs)
	}

	v := form.Values()
	if v.Get("coupon[max_redeemable]") != "4500" || v.Get("html_redirect") != "true" || v.Get("coupon[point_value]") != "300" {
		t.Errorf("values = %v", v)
	}
	if got := v["coupon[product_ids][]"]; !reflect.DeepEqual(got, []string{"11", "22"}) {
		t.Errorf("coupon[product_ids][] = %v", got)
	}
}

func TestPointExchange(t *testing.T) {
	p := PointExchangeProduct{ProductID: "mug", PointCost: 300}

	bal, err := AddToCart(1000, p, 3)
	if err != nil || bal != 100 {
		t.Errorf("AddToCart() = %d, %v; want 100, nil", bal, err)
	}
	bal, err = AddToCart(500, p, 2)
	if !errors.Is(err, ErrInsufficientBalance) || bal != 500 {
		t.Errorf("AddToCart() over balance = %d, %v", bal, err)
	}
	if got := RemoveFromCart(100, p, 0); got != 400 {
		t.Errorf("RemoveFromCart() = %d, want 400", got)
	}
}
