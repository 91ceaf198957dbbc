package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/caskline/distro/internal/pricing"
)

type Customer struct {
	ID            string
	TenantID      string
	Name          string
	State         string
	Territory     string
	AccountNumber string
	RequiresPO    bool
	SalesRepID    string
}

// PricingContext is the read-only slice of the customer the pricing engine
// matches jurisdictions against.
func (c *Customer) PricingContext() *pricing.Context {
	if c == nil {
		return nil
	}
	return &pricing.Context{
		State:         c.State,
		Territory:     c.Territory,
		AccountNumber: c.AccountNumber,
		Name:          c.Name,
	}
}

type SalesRep struct {
	ID                string
	UserID            string
	Name              string
	Territory         string
	Active            bool
	OrderEntryEnabled bool
}

// SKU is immutable for the duration of an order-creation transaction.
// PricePerUnit is the default list price shown on catalog screens; order
// pricing always goes through the pricing engine.
type SKU struct {
	ID           string
	TenantID     string
	Code         string
	ProductName  string
	Brand        string
	PricePerUnit decimal.Decimal
	Currency     string
	PriceItems   []pricing.ListItem
}

type Order struct {
	ID                  string
	TenantID            string
	OrderNumber         string
	CustomerID          string
	SalesRepID          string
	Status              Status
	RequiresApproval    bool
	Total               decimal.Decimal
	Currency            string
	PONumber            string
	DeliveryDate        time.Time
	DeliveryTimeWindow  string
	WarehouseLocation   string
	SpecialInstructions string
	OrderedAt           time.Time
	Lines               []OrderLine
}

// OrderLine keeps the full-precision line amount; rounding to 2 decimals
// happens once, on the order total.
type OrderLine struct {
	ID        string
	OrderID   string
	SKUID     string
	SKUCode   string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	UsageType string
	Pricing   AppliedPricingRule
}

// AppliedPricingRule is the audit metadata persisted per line as JSON: which
// tier matched, and what manual override (if any) the caller supplied. The
// matched tier is recorded even when an override price wins.
type AppliedPricingRule struct {
	PriceListID       string           `json:"priceListId,omitempty"`
	PriceListName     string           `json:"priceListName,omitempty"`
	PriceListItemID   string           `json:"priceListItemId,omitempty"`
	MinQuantity       int              `json:"minQuantity,omitempty"`
	MaxQuantity       int              `json:"maxQuantity,omitempty"`
	JurisdictionType  string           `json:"jurisdictionType,omitempty"`
	JurisdictionValue string           `json:"jurisdictionValue,omitempty"`
	ListPrice         *decimal.Decimal `json:"listPrice,omitempty"`
	OverrideApplied   bool             `json:"overrideApplied"`
	Reason            string           `json:"reason,omitempty"`
	ManualPrice       *decimal.Decimal `json:"manualPrice,omitempty"`
	ManualReason      string           `json:"manualReason,omitempty"`
	ResolvedAt        time.Time        `json:"resolvedAt"`
}

// ReservationTTL is the hold window for stock reserved at order creation.
const ReservationTTL = 48 * time.Hour

type Reservation struct {
	ID        string
	OrderID   string
	SKUID     string
	Location  string
	Quantity  int
	ExpiresAt time.Time
	Status    ReservationStatus
}
