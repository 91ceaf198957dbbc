package orders

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/caskline/distro/internal/inventory"
	"github.com/caskline/distro/internal/pricing"
)

// Store is the persistence surface CreateOrder orchestrates over. *Repo is
// the production implementation; tests substitute a fake so transactional
// behavior (rollback, skipped allocation) is assertable without a database.
type Store interface {
	GetCustomer(ctx context.Context, tenantID, customerID string) (*Customer, error)
	GetSalesRep(ctx context.Context, repID string) (*SalesRep, error)
	GetSalesRepByUser(ctx context.Context, userID string) (*SalesRep, error)
	FindOrderByExternalID(ctx context.Context, tenantID, externalID string) (*Order, error)
	LoadSKUs(ctx context.Context, q Querier, tenantID string, skuIDs []string) (map[string]*SKU, error)
	LoadSnapshots(ctx context.Context, q Querier, skuIDs []string, location string) (map[string][]inventory.Snapshot, error)
	NextOrderNumber(ctx context.Context, tx pgx.Tx, tenantID string) (string, error)
	ApplyAllocations(ctx context.Context, tx pgx.Tx, plan []inventory.Allocation) error
	InsertOrder(ctx context.Context, tx pgx.Tx, o *Order, externalID string, reservations []Reservation) error
}

type Service struct {
	DB      DB
	Repo    Store
	Log     *logrus.Logger
	TxLimit time.Duration
	Now     func() time.Time
}

type PriceOverride struct {
	Price  decimal.Decimal
	Reason string
}

type LineInput struct {
	SKUID         string
	Quantity      int
	PriceOverride *PriceOverride
	UsageType     string
}

type CreateOrderInput struct {
	TenantID            string
	UserID              string
	CustomerID          string
	SalesRepID          string
	ExternalID          string
	DeliveryDate        time.Time
	DeliveryTimeWindow  string
	WarehouseLocation   string
	PONumber            string
	SpecialInstructions string
	Items               []LineInput
}

type CreateOrderResult struct {
	Order         *Order
	SalesRep      *SalesRep
	Checks        []inventory.CheckResult
	AllSufficient bool
	Idempotent    bool
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreateOrder runs the full assembly: validate, resolve the rep, then one
// transaction covering batch loads, availability, allocation, pricing, and
// persistence. Either the whole order lands or nothing does.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if len(in.Items) == 0 {
		return nil, Flowf(http.StatusBadRequest, "at least one item is required")
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, Flowf(http.StatusBadRequest, "quantity must be positive for sku %s", it.SKUID)
		}
	}

	// Availability is judged against the combined demand per SKU, so two
	// lines for the same SKU cannot each pass against the same pool.
	lineReqs := make([]inventory.RequestedLine, 0, len(in.Items))
	for _, it := range in.Items {
		lineReqs = append(lineReqs, inventory.RequestedLine{SKUID: it.SKUID, Quantity: it.Quantity})
	}
	requested := inventory.AggregateRequested(lineReqs)
	skuIDs := make([]string, 0, len(requested))
	for _, line := range requested {
		skuIDs = append(skuIDs, line.SKUID)
	}

	customer, err := s.Repo.GetCustomer(ctx, in.TenantID, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer.RequiresPO && in.PONumber == "" {
		return nil, Flowf(http.StatusBadRequest, "customer %s requires a PO number", customer.Name)
	}

	rep, err := s.resolveSalesRep(ctx, customer, in)
	if err != nil {
		return nil, err
	}

	if in.ExternalID != "" {
		existing, err := s.Repo.FindOrderByExternalID(ctx, in.TenantID, in.ExternalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			// Replay still reports current availability so the response
			// shape matches a fresh create.
			checks, err := s.CheckInventory(ctx, requested, in.WarehouseLocation)
			if err != nil {
				return nil, err
			}
			return &CreateOrderResult{
				Order:         existing,
				SalesRep:      rep,
				Checks:        checks,
				AllSufficient: inventory.AllSufficient(checks),
				Idempotent:    true,
			}, nil
		}
	}

	txCtx := ctx
	if s.TxLimit > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.TxLimit)
		defer cancel()
	}

	tx, err := s.DB.BeginTx(txCtx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	skus, err := s.Repo.LoadSKUs(txCtx, tx, in.TenantID, skuIDs)
	if err != nil {
		return nil, err
	}
	for _, it := range in.Items {
		if _, ok := skus[it.SKUID]; !ok {
			return nil, Flowf(http.StatusNotFound, "SKU not found: %s", it.SKUID)
		}
	}

	snapshots, err := s.Repo.LoadSnapshots(txCtx, tx, skuIDs, in.WarehouseLocation)
	if err != nil {
		return nil, err
	}

	checks := inventory.CheckAvailability(snapshots, requested)
	allSufficient := inventory.AllSufficient(checks)

	// Insufficient stock does not reject the order: allocation is skipped
	// entirely and the order lands as a DRAFT for a human to review.
	var plan []inventory.Allocation
	requiresApproval := !allSufficient
	if allSufficient {
		if plan, err = inventory.PlanAllocation(snapshots, requested); err != nil {
			return nil, err
		}
		if err = s.Repo.ApplyAllocations(txCtx, tx, plan); err != nil {
			return nil, err
		}
	}

	now := s.now()
	lines, total, priced, currency, err := buildLines(customer, skus, in.Items, now)
	if err != nil {
		return nil, err
	}
	requiresApproval = requiresApproval || priced

	orderNumber, err := s.Repo.NextOrderNumber(txCtx, tx, in.TenantID)
	if err != nil {
		return nil, err
	}

	order := &Order{
		ID:                  uuid.NewString(),
		TenantID:            in.TenantID,
		OrderNumber:         orderNumber,
		CustomerID:          customer.ID,
		SalesRepID:          rep.ID,
		Status:              CreationStatus(requiresApproval),
		RequiresApproval:    requiresApproval,
		Total:               total,
		Currency:            currency,
		PONumber:            in.PONumber,
		DeliveryDate:        in.DeliveryDate,
		DeliveryTimeWindow:  in.DeliveryTimeWindow,
		WarehouseLocation:   in.WarehouseLocation,
		SpecialInstructions: in.SpecialInstructions,
		OrderedAt:           now,
		Lines:               lines,
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}

	reservations := make([]Reservation, 0, len(plan))
	for _, a := range plan {
		reservations = append(reservations, Reservation{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			SKUID:     a.SKUID,
			Location:  a.Location,
			Quantity:  a.Quantity,
			ExpiresAt: now.Add(ReservationTTL),
			Status:    ReservationActive,
		})
	}

	if err := s.Repo.InsertOrder(txCtx, tx, order, in.ExternalID, reservations); err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"module":           "orders",
		"orderId":          order.ID,
		"orderNumber":      order.OrderNumber,
		"tenantId":         order.TenantID,
		"status":           order.Status,
		"requiresApproval": order.RequiresApproval,
		"reservations":     len(reservations),
	}).Info("order created")

	return &CreateOrderResult{
		Order:         order,
		SalesRep:      rep,
		Checks:        checks,
		AllSufficient: allSufficient,
	}, nil
}

// resolveSalesRep picks who gets commission credit: explicit override first,
// then the customer's assigned rep, then the calling user's own rep profile.
func (s *Service) resolveSalesRep(ctx context.Context, customer *Customer, in CreateOrderInput) (*SalesRep, error) {
	if in.SalesRepID != "" {
		rep, err := s.Repo.GetSalesRep(ctx, in.SalesRepID)
		if err != nil {
			return nil, err
		}
		if rep == nil {
			return nil, Flowf(http.StatusNotFound, "sales rep not found: %s", in.SalesRepID)
		}
		if !rep.Active || !rep.OrderEntryEnabled {
			return nil, Flowf(http.StatusForbidden, "sales rep %s is not enabled for order entry", rep.Name)
		}
		return rep, nil
	}
	if customer.SalesRepID != "" {
		rep, err := s.Repo.GetSalesRep(ctx, customer.SalesRepID)
		if err != nil {
			return nil, err
		}
		if rep != nil {
			return rep, nil
		}
	}
	rep, err := s.Repo.GetSalesRepByUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, Flowf(http.StatusBadRequest, "no sales rep resolvable for this order")
	}
	return rep, nil
}

// buildLines prices every line in input order. Pure: same inputs, same lines,
// no I/O. Returns the lines, the order total rounded to 2 decimals (line
// amounts stay full precision), and whether any line forces approval.
func buildLines(customer *Customer, skus map[string]*SKU, items []LineInput, now time.Time) ([]OrderLine, decimal.Decimal, bool, string, error) {
	cctx := customer.PricingContext()
	lines := make([]OrderLine, 0, len(items))
	total := decimal.Zero
	requiresApproval := false
	currency := ""

	for _, it := range items {
		sku, ok := skus[it.SKUID]
		if !ok {
			return nil, decimal.Zero, false, "", Flowf(http.StatusNotFound, "SKU not found: %s", it.SKUID)
		}
		sel := pricing.Resolve(sku.PriceItems, it.Quantity, cctx)
		if sel.Item == nil {
			return nil, decimal.Zero, false, "", Flowf(http.StatusUnprocessableEntity,
				"no pricing configured for SKU %s", sku.Code)
		}
		if sel.OverrideApplied {
			requiresApproval = true
		}

		rule := AppliedPricingRule{
			PriceListID:       sel.Item.PriceListID,
			PriceListName:     sel.Item.PriceListName,
			PriceListItemID:   sel.Item.ID,
			MinQuantity:       sel.Item.MinQuantity,
			MaxQuantity:       sel.Item.MaxQuantity,
			JurisdictionType:  string(sel.Item.JurisdictionType),
			JurisdictionValue: sel.Item.JurisdictionValue,
			OverrideApplied:   sel.OverrideApplied,
			Reason:            sel.Reason,
			ResolvedAt:        now,
		}
		listPrice := sel.Item.Price
		rule.ListPrice = &listPrice

		unit := sel.UnitPrice
		if it.PriceOverride != nil {
			// The manual price wins for the charged amount; the matched tier
			// stays on record for audit.
			unit = it.PriceOverride.Price
			manual := it.PriceOverride.Price
			rule.ManualPrice = &manual
			rule.ManualReason = it.PriceOverride.Reason
			rule.OverrideApplied = true
			requiresApproval = true
		}

		// One currency per order: totals in mixed currencies are meaningless.
		if currency == "" {
			currency = sel.Item.Currency
		} else if sel.Item.Currency != currency {
			return nil, decimal.Zero, false, "", Flowf(http.StatusUnprocessableEntity,
				"SKU %s is priced in %s but the order is in %s", sku.Code, sel.Item.Currency, currency)
		}

		lineTotal := unit.Mul(decimal.NewFromInt(int64(it.Quantity)))
		lines = append(lines, OrderLine{
			ID:        uuid.NewString(),
			SKUID:     sku.ID,
			SKUCode:   sku.Code,
			Quantity:  it.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
			UsageType: it.UsageType,
			Pricing:   rule,
		})
		total = total.Add(lineTotal)
	}

	if currency == "" {
		currency = "USD"
	}
	return lines, total.Round(2), requiresApproval, currency, nil
}

// CheckInventory backs the read-only availability endpoint. Identical
// computation to the assembly path, including per-SKU demand aggregation,
// minus the transaction.
func (s *Service) CheckInventory(ctx context.Context, requested []inventory.RequestedLine, location string) ([]inventory.CheckResult, error) {
	requested = inventory.AggregateRequested(requested)
	skuIDs := make([]string, 0, len(requested))
	for _, line := range requested {
		skuIDs = append(skuIDs, line.SKUID)
	}
	snapshots, err := s.Repo.LoadSnapshots(ctx, s.DB, skuIDs, location)
	if err != nil {
		return nil, err
	}
	return inventory.CheckAvailability(snapshots, requested), nil
}
