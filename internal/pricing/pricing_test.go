package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func item(id string, jt JurisdictionType, jv string, minQ, maxQ int, price string, override bool) ListItem {
	return ListItem{
		ID:                  id,
		PriceListID:         "pl-" + id,
		PriceListName:       "list " + id,
		JurisdictionType:    jt,
		JurisdictionValue:   jv,
		AllowManualOverride: override,
		SKUID:               "sku-1",
		Price:               decimal.RequireFromString(price),
		Currency:            "USD",
		MinQuantity:         minQ,
		MaxQuantity:         maxQ,
	}
}

func caCustomer() *Context {
	return &Context{State: "CA", Territory: "North Bay", AccountNumber: "ACC-1001", Name: "Golden Gate Wines"}
}

func TestResolveStateBeatsGlobalOnPriceNotSpecificity(t *testing.T) {
	// Scenario: CA customer, STATE/CA at $10 and GLOBAL at $12, both minQty 1.
	// Both are tier-1 candidates; equal MinQuantity so the cheaper one wins.
	items := []ListItem{
		item("global", JurisdictionGlobal, "", 1, 0, "12", false),
		item("state-ca", JurisdictionState, "CA", 1, 0, "10", false),
	}
	sel := Resolve(items, 5, caCustomer())
	if sel.Item == nil || sel.Item.ID != "state-ca" {
		t.Fatalf("want state-ca, got %+v", sel.Item)
	}
	if !sel.UnitPrice.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("want 10, got %s", sel.UnitPrice)
	}
	if sel.OverrideApplied || sel.Reason != "" {
		t.Fatalf("tier-1 match must be clean, got override=%v reason=%q", sel.OverrideApplied, sel.Reason)
	}
}

func TestResolveHigherMinQuantityWinsWithinTier(t *testing.T) {
	// Quantity tie-break: minQty 10 bulk tier beats minQty 1 at quantity 15,
	// even when the minQty 1 item is more jurisdiction-specific.
	items := []ListItem{
		item("base", JurisdictionState, "CA", 1, 0, "10", false),
		item("bulk", JurisdictionGlobal, "", 10, 0, "8", false),
	}
	sel := Resolve(items, 15, caCustomer())
	if sel.Item == nil || sel.Item.ID != "bulk" {
		t.Fatalf("want bulk tier, got %+v", sel.Item)
	}
}

func TestResolveFallbackMonotonicity(t *testing.T) {
	jurisdiction := item("t1", JurisdictionState, "CA", 1, 0, "10", false)
	overridable := item("t2", JurisdictionState, "TX", 1, 0, "11", true)
	plain := item("t3", JurisdictionState, "NY", 1, 0, "12", false)
	cust := caCustomer()

	sel := Resolve([]ListItem{jurisdiction, overridable, plain}, 3, cust)
	if sel.Item.ID != "t1" || sel.Reason != "" {
		t.Fatalf("tier1: got %+v reason=%q", sel.Item, sel.Reason)
	}

	sel = Resolve([]ListItem{overridable, plain}, 3, cust)
	if sel.Item.ID != "t2" || sel.Reason != ReasonManualOverride || !sel.OverrideApplied {
		t.Fatalf("tier2: got %+v reason=%q", sel.Item, sel.Reason)
	}

	sel = Resolve([]ListItem{plain}, 3, cust)
	if sel.Item.ID != "t3" || sel.Reason != ReasonNoJurisdiction || !sel.OverrideApplied {
		t.Fatalf("tier3: got %+v reason=%q", sel.Item, sel.Reason)
	}

	sel = Resolve(nil, 3, cust)
	if sel.Item != nil || !sel.UnitPrice.IsZero() || !sel.OverrideApplied || sel.Reason != ReasonNoPriceConfigured {
		t.Fatalf("tier4 sentinel wrong: %+v", sel)
	}
}

func TestResolveQuantityBounds(t *testing.T) {
	items := []ListItem{
		item("narrow", JurisdictionGlobal, "", 5, 9, "7", false),
	}
	if sel := Resolve(items, 4, nil); sel.Reason != ReasonNoPriceConfigured {
		t.Fatalf("below min should not match, got %+v", sel)
	}
	if sel := Resolve(items, 10, nil); sel.Reason != ReasonNoPriceConfigured {
		t.Fatalf("above max should not match, got %+v", sel)
	}
	if sel := Resolve(items, 9, nil); sel.Item == nil {
		t.Fatalf("inclusive max should match")
	}
}

func TestResolvePreviewQuantityZero(t *testing.T) {
	items := []ListItem{
		item("bulk", JurisdictionGlobal, "", 10, 0, "8", false),
		item("base", JurisdictionGlobal, "", 1, 0, "12", false),
	}
	sel := Resolve(items, 0, nil)
	if sel.Item == nil || sel.Item.ID != "base" {
		t.Fatalf("preview must only match minQty 1, got %+v", sel.Item)
	}
}

func TestResolveAnonymousOnlyMatchesGlobal(t *testing.T) {
	items := []ListItem{
		item("state", JurisdictionState, "CA", 1, 0, "9", false),
	}
	sel := Resolve(items, 2, nil)
	if sel.Reason != ReasonNoJurisdiction {
		t.Fatalf("nil customer must not match STATE, got reason %q", sel.Reason)
	}
}

func TestJurisdictionMatching(t *testing.T) {
	tests := []struct {
		name string
		item ListItem
		cust *Context
		want bool
	}{
		{"state exact", item("a", JurisdictionState, "CA", 1, 0, "1", false), &Context{State: "CA"}, true},
		{"state case-insensitive trimmed", item("a", JurisdictionState, " ca ", 1, 0, "1", false), &Context{State: "Ca"}, true},
		{"state empty customer state", item("a", JurisdictionState, "CA", 1, 0, "1", false), &Context{}, false},
		{"state mismatch", item("a", JurisdictionState, "CA", 1, 0, "1", false), &Context{State: "OR"}, false},
		{"federal via territory", item("a", JurisdictionFederalProperty, "", 1, 0, "1", false), &Context{Territory: "Travis Air Force Base"}, true},
		{"federal via name", item("a", JurisdictionFederalProperty, "", 1, 0, "1", false), &Context{Name: "Camp Pendleton Marine Exchange"}, true},
		{"federal no marker", item("a", JurisdictionFederalProperty, "", 1, 0, "1", false), &Context{Territory: "Downtown"}, false},
		{"custom territory substring", item("a", JurisdictionCustom, "north bay", 1, 0, "1", false), caCustomer(), true},
		{"custom account substring", item("a", JurisdictionCustom, "acc-10", 1, 0, "1", false), caCustomer(), true},
		{"custom name substring", item("a", JurisdictionCustom, "golden gate", 1, 0, "1", false), caCustomer(), true},
		{"custom empty value", item("a", JurisdictionCustom, "  ", 1, 0, "1", false), caCustomer(), false},
		{"custom no match", item("a", JurisdictionCustom, "harbor", 1, 0, "1", false), caCustomer(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jurisdictionMatches(tt.item, tt.cust); got != tt.want {
				t.Errorf("jurisdictionMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	items := []ListItem{
		item("b", JurisdictionGlobal, "", 1, 0, "10", false),
		item("a", JurisdictionGlobal, "", 1, 0, "10", false),
	}
	first := Resolve(items, 5, caCustomer())
	// Reversed input order must not change the pick.
	rev := []ListItem{items[1], items[0]}
	for i := 0; i < 50; i++ {
		again := Resolve(rev, 5, caCustomer())
		if again.Item.ID != first.Item.ID {
			t.Fatalf("unstable selection: %s vs %s", again.Item.ID, first.Item.ID)
		}
	}
	if first.Item.ID != "a" {
		t.Fatalf("equal tiers must break on item ID, got %s", first.Item.ID)
	}
}
