package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderCancelled      = "OrderCancelled"
	EventReservationExpired  = "ReservationExpired"
	EventReservationReleased = "ReservationReleased"
)

// Envelope is the wire wrapper for every event: stable header, per-event
// payload. CorrelationID is the order id so one order's events stay ordered
// on a single partition.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type LineSummary struct {
	SKUID     string `json:"sku_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID          string        `json:"order_id"`
	OrderNumber      string        `json:"order_number"`
	TenantID         string        `json:"tenant_id"`
	CustomerID       string        `json:"customer_id"`
	SalesRepID       string        `json:"sales_rep_id"`
	Status           Status        `json:"status"`
	RequiresApproval bool          `json:"requires_approval"`
	Total            string        `json:"total"`
	Currency         string        `json:"currency"`
	Lines            []LineSummary `json:"lines"`
}

type OrderCancelledPayload struct {
	OrderID  string `json:"order_id"`
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason,omitempty"`
}

type ReservationEventPayload struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	SKUID         string `json:"sku_id"`
	Location      string `json:"location"`
	Quantity      int    `json:"quantity"`
}
