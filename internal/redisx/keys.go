package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{tenant_id}:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache status order: order_status:{tenant_id}:{order_id} -> {"status": "..."}
	// Tenant-scoped so one tenant's cached status is never served to another.
	KeyOrderStatus = "order_status:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Singleton lock for the reservation sweeper.
	KeySweeperLock = "lock:reservation-sweeper"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLSweeperLock = 30 * time.Second
)
