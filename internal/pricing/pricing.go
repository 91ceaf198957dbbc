// Package pricing selects the applicable price-list entry for a
// (SKU, quantity, customer) triple. Pure, no I/O: the server order flow and
// any client preview run the exact same code and must agree.
package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type JurisdictionType string

const (
	JurisdictionGlobal          JurisdictionType = "GLOBAL"
	JurisdictionState           JurisdictionType = "STATE"
	JurisdictionFederalProperty JurisdictionType = "FEDERAL_PROPERTY"
	JurisdictionCustom          JurisdictionType = "CUSTOM"
)

// Reason codes reported on a Selection. Empty reason = clean tier-1 match.
const (
	ReasonManualOverride    = "manualOverride"
	ReasonNoJurisdiction    = "noJurisdictionMatch"
	ReasonNoPriceConfigured = "noPriceConfigured"
)

// Context is the read-only customer slice the engine matches against.
// A nil *Context means anonymous/preview pricing: only GLOBAL lists apply.
type Context struct {
	State         string
	Territory     string
	AccountNumber string
	Name          string
}

// ListItem is one quantity tier of one price list, flattened so the engine
// needs no joins. MaxQuantity == 0 means unbounded.
type ListItem struct {
	ID                  string
	PriceListID         string
	PriceListName       string
	JurisdictionType    JurisdictionType
	JurisdictionValue   string
	AllowManualOverride bool
	SKUID               string
	Price               decimal.Decimal
	Currency            string
	MinQuantity         int
	MaxQuantity         int
}

type Selection struct {
	Item            *ListItem
	UnitPrice       decimal.Decimal
	OverrideApplied bool
	Reason          string
}

// Substrings that mark a customer as sitting on federal property.
var federalMarkers = []string{"federal", "military", "air force", "naval", "army", "marine", "base"}

// Resolve picks the price tier for quantity under a three-tier fallback:
//  1. quantity-matched AND jurisdiction-matched
//  2. quantity-matched AND list allows manual override (jurisdiction ignored)
//  3. quantity-matched on any list
//  4. nothing matched: nil item, zero price, ReasonNoPriceConfigured
//
// Within a tier the highest MinQuantity wins, so bulk tiers beat base tiers
// whenever both qualify. quantity 0 is a display preview and only matches
// tiers with MinQuantity 1.
func Resolve(items []ListItem, quantity int, cust *Context) Selection {
	inRange := make([]ListItem, 0, len(items))
	for _, it := range items {
		if quantityMatches(it, quantity) {
			inRange = append(inRange, it)
		}
	}

	if m := best(filter(inRange, func(it ListItem) bool { return jurisdictionMatches(it, cust) })); m != nil {
		return Selection{Item: m, UnitPrice: m.Price}
	}
	if m := best(filter(inRange, func(it ListItem) bool { return it.AllowManualOverride })); m != nil {
		return Selection{Item: m, UnitPrice: m.Price, OverrideApplied: true, Reason: ReasonManualOverride}
	}
	if m := best(inRange); m != nil {
		return Selection{Item: m, UnitPrice: m.Price, OverrideApplied: true, Reason: ReasonNoJurisdiction}
	}
	return Selection{UnitPrice: decimal.Zero, OverrideApplied: true, Reason: ReasonNoPriceConfigured}
}

func quantityMatches(it ListItem, quantity int) bool {
	if quantity == 0 {
		return it.MinQuantity == 1
	}
	if quantity < it.MinQuantity {
		return false
	}
	return it.MaxQuantity == 0 || quantity <= it.MaxQuantity
}

func jurisdictionMatches(it ListItem, cust *Context) bool {
	switch it.JurisdictionType {
	case JurisdictionGlobal:
		return true
	case JurisdictionState:
		if cust == nil {
			return false
		}
		state := strings.TrimSpace(strings.ToLower(cust.State))
		want := strings.TrimSpace(strings.ToLower(it.JurisdictionValue))
		return state != "" && want != "" && state == want
	case JurisdictionFederalProperty:
		if cust == nil {
			return false
		}
		hay := strings.ToLower(cust.Territory + " " + cust.Name)
		for _, marker := range federalMarkers {
			if strings.Contains(hay, marker) {
				return true
			}
		}
		return false
	case JurisdictionCustom:
		if cust == nil {
			return false
		}
		needle := strings.TrimSpace(strings.ToLower(it.JurisdictionValue))
		if needle == "" {
			return false
		}
		for _, field := range []string{cust.Territory, cust.AccountNumber, cust.Name} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	}
	return false
}

func filter(items []ListItem, keep func(ListItem) bool) []ListItem {
	out := make([]ListItem, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// best returns the highest-MinQuantity item. Ties break on lower price, then
// item ID, so results are stable regardless of input order.
func best(items []ListItem) *ListItem {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]ListItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MinQuantity != sorted[j].MinQuantity {
			return sorted[i].MinQuantity > sorted[j].MinQuantity
		}
		if c := sorted[i].Price.Cmp(sorted[j].Price); c != 0 {
			return c < 0
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &sorted[0]
}
