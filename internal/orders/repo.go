package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/caskline/distro/internal/inventory"
	"github.com/caskline/distro/internal/pricing"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so reads can run
// inside or outside the order transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is the pool surface the service holds: plain queries plus the ability
// to open the order transaction. *pgxpool.Pool satisfies it.
type DB interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetCustomer(ctx context.Context, tenantID, customerID string) (*Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `
		SELECT id, tenant_id, name, COALESCE(state,''), COALESCE(territory,''),
		       COALESCE(account_number,''), requires_po, COALESCE(sales_rep_id,'')
		FROM customers WHERE id=$1 AND tenant_id=$2`,
		customerID, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.State, &c.Territory, &c.AccountNumber, &c.RequiresPO, &c.SalesRepID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Flowf(http.StatusNotFound, "customer not found: %s", customerID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetSalesRep(ctx context.Context, repID string) (*SalesRep, error) {
	return r.scanSalesRep(r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(user_id,''), name, COALESCE(territory,''), active, order_entry_enabled
		FROM sales_reps WHERE id=$1`, repID))
}

func (r *Repo) GetSalesRepByUser(ctx context.Context, userID string) (*SalesRep, error) {
	return r.scanSalesRep(r.DB.QueryRow(ctx, `
		SELECT id, COALESCE(user_id,''), name, COALESCE(territory,''), active, order_entry_enabled
		FROM sales_reps WHERE user_id=$1`, userID))
}

func (r *Repo) scanSalesRep(row pgx.Row) (*SalesRep, error) {
	var s SalesRep
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Territory, &s.Active, &s.OrderEntryEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSKUs batch-fetches the SKUs and their currently-effective price tiers
// in two queries total, never per line.
func (r *Repo) LoadSKUs(ctx context.Context, q Querier, tenantID string, skuIDs []string) (map[string]*SKU, error) {
	rows, err := q.Query(ctx, `
		SELECT id, code, product_name, COALESCE(brand,''), price_per_unit::text, currency
		FROM skus WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, skuIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*SKU, len(skuIDs))
	for rows.Next() {
		var s SKU
		var price string
		if err := rows.Scan(&s.ID, &s.Code, &s.ProductName, &s.Brand, &price, &s.Currency); err != nil {
			return nil, err
		}
		if s.PricePerUnit, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sku %s price_per_unit: %w", s.ID, err)
		}
		s.TenantID = tenantID
		out[s.ID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := q.Query(ctx, `
		SELECT pli.id, pli.price_list_id, pl.name, pl.jurisdiction_type,
		       COALESCE(pl.jurisdiction_value,''), pl.allow_manual_override,
		       pli.sku_id, pli.price::text, pli.currency, pli.min_quantity,
		       COALESCE(pli.max_quantity, 0)
		FROM price_list_items pli
		JOIN price_lists pl ON pl.id = pli.price_list_id
		WHERE pl.tenant_id=$1 AND pli.sku_id = ANY($2)
		  AND (pl.effective_at IS NULL OR pl.effective_at <= now())
		  AND (pl.expires_at IS NULL OR pl.expires_at > now())`, tenantID, skuIDs)
	if err != nil {
		return nil, err
	}
	defer items.Close()

	for items.Next() {
		var it pricing.ListItem
		var price string
		if err := items.Scan(&it.ID, &it.PriceListID, &it.PriceListName, &it.JurisdictionType,
			&it.JurisdictionValue, &it.AllowManualOverride, &it.SKUID, &price,
			&it.Currency, &it.MinQuantity, &it.MaxQuantity); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("price list item %s price: %w", it.ID, err)
		}
		if sku, ok := out[it.SKUID]; ok {
			sku.PriceItems = append(sku.PriceItems, it)
		}
	}
	return out, items.Err()
}

// LoadSnapshots fetches inventory rows for the SKUs, optionally narrowed to a
// single warehouse location.
func (r *Repo) LoadSnapshots(ctx context.Context, q Querier, skuIDs []string, location string) (map[string][]inventory.Snapshot, error) {
	sql := `SELECT sku_id, location, on_hand, allocated FROM inventory WHERE sku_id = ANY($1)`
	args := []any{skuIDs}
	if location != "" {
		sql += ` AND location=$2`
		args = append(args, location)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]inventory.Snapshot)
	for rows.Next() {
		var s inventory.Snapshot
		if err := rows.Scan(&s.SKUID, &s.Location, &s.OnHand, &s.Allocated); err != nil {
			return nil, err
		}
		out[s.SKUID] = append(out[s.SKUID], s)
	}
	return out, rows.Err()
}

// ApplyAllocations commits the allocation plan on the order transaction.
func (r *Repo) ApplyAllocations(ctx context.Context, tx pgx.Tx, plan []inventory.Allocation) error {
	return inventory.Apply(ctx, tx, plan)
}

// NextOrderNumber bumps the tenant's counter inside the order transaction.
// The upsert serializes concurrent creators on the counter row, which is what
// makes the sequence gap-free per tenant.
func (r *Repo) NextOrderNumber(ctx context.Context, tx pgx.Tx, tenantID string) (string, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO order_counters (tenant_id, seq) VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET seq = order_counters.seq + 1
		RETURNING seq`, tenantID).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%06d", seq), nil
}

// FindOrderByExternalID backs create idempotency: same (tenant, external id)
// returns the already-created order instead of a duplicate.
func (r *Repo) FindOrderByExternalID(ctx context.Context, tenantID, externalID string) (*Order, error) {
	var o Order
	var total string
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_number, status, requires_approval, total::text, currency, sales_rep_id, delivery_date
		FROM orders WHERE tenant_id=$1 AND external_id=$2`,
		tenantID, externalID,
	).Scan(&o.ID, &o.OrderNumber, &o.Status, &o.RequiresApproval, &total, &o.Currency, &o.SalesRepID, &o.DeliveryDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	o.TenantID = tenantID
	return &o, nil
}

// InsertOrder persists the order, its lines with pricing audit metadata, and
// any reservations, all on the caller's transaction.
func (r *Repo) InsertOrder(ctx context.Context, tx pgx.Tx, o *Order, externalID string, reservations []Reservation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, tenant_id, external_id, order_number, customer_id, sales_rep_id,
		                    status, requires_approval, total, currency, po_number, delivery_date,
		                    delivery_time_window, warehouse_location, special_instructions, ordered_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.TenantID, externalID, o.OrderNumber, o.CustomerID, o.SalesRepID,
		o.Status, o.RequiresApproval, o.Total.String(), o.Currency, o.PONumber, o.DeliveryDate,
		o.DeliveryTimeWindow, o.WarehouseLocation, o.SpecialInstructions, o.OrderedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range o.Lines {
		meta, err := json.Marshal(line.Pricing)
		if err != nil {
			return fmt.Errorf("marshal pricing rules for sku %s: %w", line.SKUID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, sku_id, quantity, unit_price, line_total,
			                         usage_type, applied_pricing_rules)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			line.ID, o.ID, line.SKUID, line.Quantity, line.UnitPrice.String(), line.LineTotal.String(),
			line.UsageType, meta)
		if err != nil {
			return fmt.Errorf("insert order line for sku %s: %w", line.SKUID, err)
		}
	}

	for _, res := range reservations {
		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_reservations (id, order_id, sku_id, location, quantity, expires_at, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			res.ID, res.OrderID, res.SKUID, res.Location, res.Quantity, res.ExpiresAt, res.Status)
		if err != nil {
			return fmt.Errorf("insert reservation for sku %s: %w", res.SKUID, err)
		}
	}
	return nil
}

func (r *Repo) GetOrderStatus(ctx context.Context, tenantID, orderID string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 AND tenant_id=$2`, orderID, tenantID).Scan(&s)
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

func (r *Repo) ListSKUs(ctx context.Context, tenantID string) ([]SKU, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, code, product_name, COALESCE(brand,''), price_per_unit::text, currency
		FROM skus WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SKU
	for rows.Next() {
		var s SKU
		var price string
		if err := rows.Scan(&s.ID, &s.Code, &s.ProductName, &s.Brand, &price, &s.Currency); err != nil {
			return nil, err
		}
		if s.PricePerUnit, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sku %s price_per_unit: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
