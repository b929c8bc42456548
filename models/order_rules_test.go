package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/plastics_backend/models"
	"bitbucket.org/mmdatafocus/plastics_backend/utils"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLineAmountBillsRollerByWeight(t *testing.T) {
	roller := models.NewOrderDetail{
		ProductName: "Clear Roller 40in",
		Category:    models.ProductCategoryRoller,
		Qty:         3,
		WeightKg:    dec("1000"),
		Rate:        dec("15.50"),
	}
	if got := models.LineAmount(roller); !got.Equal(dec("15500")) {
		t.Fatalf("roller line amount = %s, want 15500", got)
	}

	bag := models.NewOrderDetail{
		ProductName: "Shopping Bag Medium",
		Category:    models.ProductCategoryPackingBag,
		Qty:         200,
		WeightKg:    dec("48"),
		Rate:        dec("1.25"),
	}
	if got := models.LineAmount(bag); !got.Equal(dec("250")) {
		t.Fatalf("packing bag line amount = %s, want 250", got)
	}
}

func TestValidateOrderTotals(t *testing.T) {
	details := []models.NewOrderDetail{
		{
			ProductName: "Clear Roller 40in",
			Category:    models.ProductCategoryRoller,
			Qty:         3,
			WeightKg:    dec("1000"),
			Rate:        dec("15.50"),
		},
	}

	if err := models.ValidateOrderTotals(details, dec("15500")); err != nil {
		t.Fatalf("exact total rejected: %v", err)
	}
	// 2-dp rounding slack is allowed.
	if err := models.ValidateOrderTotals(details, dec("15500.01")); err != nil {
		t.Fatalf("total within tolerance rejected: %v", err)
	}

	err := models.ValidateOrderTotals(details, dec("15000"))
	if err == nil {
		t.Fatal("understated total accepted")
	}
	if !utils.IsValidation(err) {
		t.Fatalf("understated total returned %v, want validation error", err)
	}

	if err := models.ValidateOrderTotals(nil, decimal.Zero); err == nil {
		t.Fatal("empty detail list accepted")
	}
}

func TestCanTransitionOrderIsMonotonic(t *testing.T) {
	chain := []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusAwaitingProd,
		models.OrderStatusInProd,
		models.OrderStatusReadyForDispatch,
		models.OrderStatusPartiallyFulfilled,
		models.OrderStatusFulfilled,
	}

	for i := 0; i < len(chain)-1; i++ {
		if !models.CanTransitionOrder(chain[i], chain[i+1]) {
			t.Errorf("forward transition %s -> %s rejected", chain[i], chain[i+1])
		}
	}
	// No transition may ever point backwards.
	for i, from := range chain {
		for j := 0; j < i; j++ {
			if models.CanTransitionOrder(from, chain[j]) {
				t.Errorf("backward transition %s -> %s allowed", from, chain[j])
			}
		}
	}
	// A partially fulfilled order can complete; a fulfilled order is terminal.
	if !models.CanTransitionOrder(models.OrderStatusPartiallyFulfilled, models.OrderStatusFulfilled) {
		t.Error("PartiallyFulfilled -> Fulfilled rejected")
	}
	for _, to := range chain {
		if models.CanTransitionOrder(models.OrderStatusFulfilled, to) {
			t.Errorf("Fulfilled -> %s allowed", to)
		}
	}
}

func TestResolveUnitPrice(t *testing.T) {
	details := []models.OrderDetail{
		{ProductName: "Clear Roller 40in", Category: models.ProductCategoryRoller, WeightKg: dec("1000"), Rate: dec("15.50")},
		{ProductName: "Shopping Bag Medium", Category: models.ProductCategoryPackingBag, Qty: 200, Rate: dec("1.25")},
	}

	price, err := models.ResolveUnitPrice(details, models.ProductCategoryRoller)
	if err != nil {
		t.Fatalf("ResolveUnitPrice roller: %v", err)
	}
	if !price.Equal(dec("15.50")) {
		t.Fatalf("roller price = %s, want 15.50", price)
	}

	price, err = models.ResolveUnitPrice(details, models.ProductCategoryPackingBag)
	if err != nil {
		t.Fatalf("ResolveUnitPrice packing bag: %v", err)
	}
	if !price.Equal(dec("1.25")) {
		t.Fatalf("packing bag price = %s, want 1.25", price)
	}

	_, err = models.ResolveUnitPrice(details[:1], models.ProductCategoryPackingBag)
	if err == nil {
		t.Fatal("price resolved for a category the order does not contain")
	}
}
