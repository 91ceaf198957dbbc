package orders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationRepo owns the reservation lifecycle after order creation:
// expiring stale ACTIVE holds and releasing holds for cancelled orders.
type ReservationRepo struct{ DB *pgxpool.Pool }

// ExpireDue flips ACTIVE reservations past their deadline to EXPIRED and puts
// the held stock back. SKIP LOCKED lets a concurrent sweep pass over rows
// another worker already holds instead of blocking on them.
func (r *ReservationRepo) ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, order_id, sku_id, location, quantity, expires_at
		FROM inventory_reservations
		WHERE status='ACTIVE' AND expires_at <= $1
		FOR UPDATE SKIP LOCKED`, now)
	if err != nil {
		return nil, err
	}
	expired, err := scanReservations(rows, ReservationExpired)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	if err := r.returnStock(ctx, tx, expired, ReservationExpired); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return expired, nil
}

// ReleaseForOrder returns all ACTIVE holds of one order, used when the
// fulfillment workflow cancels it.
func (r *ReservationRepo) ReleaseForOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, order_id, sku_id, location, quantity, expires_at
		FROM inventory_reservations
		WHERE order_id=$1 AND status='ACTIVE'
		FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	released, err := scanReservations(rows, ReservationReleased)
	if err != nil {
		return nil, err
	}
	if len(released) == 0 {
		return nil, nil
	}

	if err := r.returnStock(ctx, tx, released, ReservationReleased); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return released, nil
}

func scanReservations(rows pgx.Rows, next ReservationStatus) ([]Reservation, error) {
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.SKUID, &res.Location, &res.Quantity, &res.ExpiresAt); err != nil {
			return nil, err
		}
		res.Status = next
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) returnStock(ctx context.Context, tx pgx.Tx, recs []Reservation, next ReservationStatus) error {
	for _, res := range recs {
		// GREATEST guards against a hold that was already partially consumed.
		if _, err := tx.Exec(ctx, `
			UPDATE inventory SET allocated = GREATEST(allocated - $3, 0)
			WHERE sku_id=$1 AND location=$2`,
			res.SKUID, res.Location, res.Quantity); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE inventory_reservations SET status=$2 WHERE id=$1`,
			res.ID, next); err != nil {
			return err
		}
	}
	return nil
}
