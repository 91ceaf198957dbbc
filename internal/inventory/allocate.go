package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

// Allocation is a planned decrement against one location's stock.
type Allocation struct {
	SKUID    string
	Location string
	Quantity int
}

// ErrShortStock is returned by PlanAllocation when a line cannot be covered.
// Callers must have verified sufficiency up front; hitting this mid-plan means
// the snapshots changed under us and the whole order has to abort.
type ErrShortStock struct {
	SKUID     string
	Requested int
	Available int
}

func (e *ErrShortStock) Error() string {
	return fmt.Sprintf("insufficient stock for sku %s: requested %d, available %d", e.SKUID, e.Requested, e.Available)
}

// PlanAllocation distributes each requested quantity across the SKU's
// locations, fullest location first, decrementing working availability so two
// lines of the same order never claim the same units. Pure: the snapshots are
// not mutated.
func PlanAllocation(snapshots map[string][]Snapshot, requested []RequestedLine) ([]Allocation, error) {
	type bucket struct {
		location  string
		available int
	}
	working := make(map[string][]*bucket, len(snapshots))
	for skuID, snaps := range snapshots {
		buckets := make([]*bucket, 0, len(snaps))
		for _, s := range snaps {
			buckets = append(buckets, &bucket{location: s.Location, available: s.Available()})
		}
		working[skuID] = buckets
	}

	var plan []Allocation
	for _, line := range requested {
		if line.Quantity == 0 {
			continue
		}
		buckets := working[line.SKUID]
		sort.SliceStable(buckets, func(i, j int) bool {
			if buckets[i].available != buckets[j].available {
				return buckets[i].available > buckets[j].available
			}
			return buckets[i].location < buckets[j].location
		})
		remaining := line.Quantity
		for _, b := range buckets {
			if remaining == 0 {
				break
			}
			if b.available == 0 {
				continue
			}
			take := remaining
			if take > b.available {
				take = b.available
			}
			plan = append(plan, Allocation{SKUID: line.SKUID, Location: b.location, Quantity: take})
			b.available -= take
			remaining -= take
		}
		if remaining > 0 {
			return nil, &ErrShortStock{SKUID: line.SKUID, Requested: line.Quantity, Available: line.Quantity - remaining}
		}
	}
	return plan, nil
}

// Apply commits a plan against the inventory rows inside the caller's
// transaction. Rows are locked FOR UPDATE and re-checked so two concurrent
// orders cannot both take the same stock; a failed re-check aborts the whole
// transaction.
func Apply(ctx context.Context, tx pgx.Tx, plan []Allocation) error {
	for _, a := range plan {
		var onHand, allocated int
		err := tx.QueryRow(ctx,
			`SELECT on_hand, allocated FROM inventory WHERE sku_id=$1 AND location=$2 FOR UPDATE`,
			a.SKUID, a.Location).Scan(&onHand, &allocated)
		if err != nil {
			return fmt.Errorf("lock inventory %s@%s: %w", a.SKUID, a.Location, err)
		}
		if avail := onHand - allocated; avail < a.Quantity {
			return &ErrShortStock{SKUID: a.SKUID, Requested: a.Quantity, Available: max(avail, 0)}
		}
		ct, err := tx.Exec(ctx,
			`UPDATE inventory SET allocated = allocated + $3 WHERE sku_id=$1 AND location=$2`,
			a.SKUID, a.Location, a.Quantity)
		if err != nil {
			return fmt.Errorf("allocate inventory %s@%s: %w", a.SKUID, a.Location, err)
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("allocate inventory %s@%s: row vanished", a.SKUID, a.Location)
		}
	}
	return nil
}
