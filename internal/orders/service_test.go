package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caskline/distro/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testCustomer() *Customer {
	return &Customer{
		ID:       "cust-1",
		TenantID: "t1",
		Name:     "Golden Gate Wines",
		State:    "CA",
	}
}

func skuWith(id, code string, items ...pricing.ListItem) map[string]*SKU {
	return map[string]*SKU{
		id: {ID: id, Code: code, ProductName: "Pinot Noir 750ml", PricePerUnit: dec("12"), Currency: "USD", PriceItems: items},
	}
}

func globalTier(id string, minQ int, price string) pricing.ListItem {
	return pricing.ListItem{
		ID: id, PriceListID: "pl-" + id, PriceListName: "global",
		JurisdictionType: pricing.JurisdictionGlobal,
		Price:            dec(price), Currency: "USD", MinQuantity: minQ,
	}
}

func stateTier(id, state string, minQ int, price string) pricing.ListItem {
	it := globalTier(id, minQ, price)
	it.JurisdictionType = pricing.JurisdictionState
	it.JurisdictionValue = state
	return it
}

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func TestBuildLinesTierOneMatchNoApproval(t *testing.T) {
	skus := skuWith("sku-1", "PN-750", stateTier("ca", "CA", 1, "10"), globalTier("gl", 1, "12"))
	lines, total, approval, currency, err := buildLines(testCustomer(), skus, []LineInput{{SKUID: "sku-1", Quantity: 5}}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if approval {
		t.Fatal("clean tier-1 pricing must not force approval")
	}
	if !total.Equal(dec("50")) {
		t.Fatalf("total = %s, want 50", total)
	}
	if currency != "USD" {
		t.Fatalf("currency = %s", currency)
	}
	line := lines[0]
	if !line.UnitPrice.Equal(dec("10")) || line.Pricing.PriceListItemID != "ca" {
		t.Fatalf("line = %+v", line)
	}
	if line.Pricing.OverrideApplied || line.Pricing.Reason != "" {
		t.Fatalf("audit meta wrong: %+v", line.Pricing)
	}
}

func TestBuildLinesUnpricedLineFails(t *testing.T) {
	// Quantity 1000 with no covering tier anywhere.
	skus := skuWith("sku-1", "PN-750", pricing.ListItem{
		ID: "narrow", PriceListID: "pl", JurisdictionType: pricing.JurisdictionGlobal,
		Price: dec("10"), Currency: "USD", MinQuantity: 1, MaxQuantity: 12,
	})
	_, _, _, _, err := buildLines(testCustomer(), skus, []LineInput{{SKUID: "sku-1", Quantity: 1000}}, testNow)
	var fe *FlowError
	if !errors.As(err, &fe) || fe.Status != 422 {
		t.Fatalf("want 422 FlowError, got %v", err)
	}
	if fe.Message != "no pricing configured for SKU PN-750" {
		t.Fatalf("error must name the SKU: %q", fe.Message)
	}
}

func TestBuildLinesFallbackTierForcesApproval(t *testing.T) {
	// One line prices via tier 3 (no jurisdiction match); the whole order
	// needs approval even though the other line is a clean match.
	skus := map[string]*SKU{
		"sku-1": {ID: "sku-1", Code: "PN-750", Currency: "USD",
			PriceItems: []pricing.ListItem{globalTier("gl", 1, "10")}},
		"sku-2": {ID: "sku-2", Code: "CH-750", Currency: "USD",
			PriceItems: []pricing.ListItem{stateTier("tx", "TX", 1, "9")}},
	}
	lines, _, approval, _, err := buildLines(testCustomer(), skus, []LineInput{
		{SKUID: "sku-1", Quantity: 1},
		{SKUID: "sku-2", Quantity: 1},
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if !approval {
		t.Fatal("tier-3 pricing on any line must force approval")
	}
	if lines[1].Pricing.Reason != pricing.ReasonNoJurisdiction {
		t.Fatalf("got %+v", lines[1].Pricing)
	}
}

func TestBuildLinesManualOverride(t *testing.T) {
	skus := skuWith("sku-1", "PN-750", stateTier("ca", "CA", 1, "10"))
	override := &PriceOverride{Price: dec("8.25"), Reason: "longtime account goodwill"}
	lines, total, approval, _, err := buildLines(testCustomer(), skus, []LineInput{
		{SKUID: "sku-1", Quantity: 4, PriceOverride: override},
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if !approval {
		t.Fatal("manual override must force approval")
	}
	if !total.Equal(dec("33")) {
		t.Fatalf("total = %s, want 33", total)
	}
	p := lines[0].Pricing
	// Override price charged, matched tier still on record.
	if !lines[0].UnitPrice.Equal(dec("8.25")) || p.PriceListItemID != "ca" {
		t.Fatalf("line = %+v", lines[0])
	}
	if p.ManualPrice == nil || !p.ManualPrice.Equal(dec("8.25")) || p.ManualReason != "longtime account goodwill" {
		t.Fatalf("audit meta = %+v", p)
	}
	if p.ListPrice == nil || !p.ListPrice.Equal(dec("10")) {
		t.Fatalf("list price missing from audit: %+v", p)
	}
}

func TestBuildLinesRejectsMixedCurrencies(t *testing.T) {
	eur := globalTier("eu", 1, "9")
	eur.Currency = "EUR"
	skus := map[string]*SKU{
		"sku-1": {ID: "sku-1", Code: "PN-750", Currency: "USD",
			PriceItems: []pricing.ListItem{globalTier("gl", 1, "10")}},
		"sku-2": {ID: "sku-2", Code: "CH-750", Currency: "EUR",
			PriceItems: []pricing.ListItem{eur}},
	}
	_, _, _, _, err := buildLines(testCustomer(), skus, []LineInput{
		{SKUID: "sku-1", Quantity: 1},
		{SKUID: "sku-2", Quantity: 1},
	}, testNow)
	var fe *FlowError
	if !errors.As(err, &fe) || fe.Status != 422 {
		t.Fatalf("mixed currencies must fail with 422, got %v", err)
	}
	if fe.Message != "SKU CH-750 is priced in EUR but the order is in USD" {
		t.Fatalf("error must name the offending SKU and both currencies: %q", fe.Message)
	}
}

func TestBuildLinesRoundsOrderTotalOnly(t *testing.T) {
	// 3 × 3.333 + 3 × 3.333 = 19.998 -> 20.00 at order level. Pre-rounding
	// each line to 10.00 would give the same here, so also check a case that
	// distinguishes: 7 × 0.142857... style price.
	skus := map[string]*SKU{
		"sku-1": {ID: "sku-1", Code: "A", Currency: "USD",
			PriceItems: []pricing.ListItem{globalTier("a", 1, "3.333")}},
		"sku-2": {ID: "sku-2", Code: "B", Currency: "USD",
			PriceItems: []pricing.ListItem{globalTier("b", 1, "1.005")}},
	}
	lines, total, _, _, err := buildLines(testCustomer(), skus, []LineInput{
		{SKUID: "sku-1", Quantity: 3},
		{SKUID: "sku-2", Quantity: 3},
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	// 9.999 + 3.015 = 13.014 -> 13.01; per-line rounding would give 13.02.
	if !total.Equal(dec("13.01")) {
		t.Fatalf("total = %s, want 13.01", total)
	}
	if !lines[0].LineTotal.Equal(dec("9.999")) {
		t.Fatalf("line totals must stay full precision, got %s", lines[0].LineTotal)
	}
}

func TestBuildLinesScenarioD(t *testing.T) {
	skus := skuWith("sku-1", "PN-750", globalTier("gl", 1, "7.50"))
	_, total, approval, _, err := buildLines(testCustomer(), skus, []LineInput{{SKUID: "sku-1", Quantity: 10}}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if approval {
		t.Fatal("clean global match should auto-approve")
	}
	if !total.Equal(dec("75.00")) {
		t.Fatalf("total = %s, want 75.00", total)
	}
}

func TestCreationStatus(t *testing.T) {
	if CreationStatus(true) != StatusDraft {
		t.Fatal("approval-needed orders start as DRAFT")
	}
	if CreationStatus(false) != StatusPending {
		t.Fatal("auto-approved orders start as PENDING")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusPending, true},
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusFulfilled, false},
		{StatusFulfilled, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusSubmitted, StatusPicked, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFlowError(t *testing.T) {
	err := Flowf(409, "insufficient inventory for sku %s", "PN-750")
	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatal("Flowf must produce a *FlowError")
	}
	if fe.Status != 409 || fe.Message != "insufficient inventory for sku PN-750" {
		t.Fatalf("got %+v", fe)
	}
}
