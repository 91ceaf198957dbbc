package orders

type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusPending            Status = "PENDING"
	StatusSubmitted          Status = "SUBMITTED"
	StatusPartiallyFulfilled Status = "PARTIALLY_FULFILLED"
	StatusFulfilled          Status = "FULFILLED"
	StatusCancelled          Status = "CANCELLED"
	StatusReadyToDeliver     Status = "READY_TO_DELIVER"
	StatusPicked             Status = "PICKED"
)

// Order creation only ever produces DRAFT (needs approval) or PENDING.
// Everything past that belongs to the fulfillment workflow; the table keeps
// downstream consumers honest about which moves are legal.
var validNext = map[Status]map[Status]bool{
	StatusDraft:              {StatusPending: true, StatusCancelled: true},
	StatusPending:            {StatusSubmitted: true, StatusCancelled: true},
	StatusSubmitted:          {StatusPicked: true, StatusPartiallyFulfilled: true, StatusCancelled: true},
	StatusPicked:             {StatusReadyToDeliver: true, StatusCancelled: true},
	StatusReadyToDeliver:     {StatusFulfilled: true, StatusPartiallyFulfilled: true},
	StatusPartiallyFulfilled: {StatusFulfilled: true, StatusCancelled: true},
	StatusFulfilled:          {},
	StatusCancelled:          {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// CreationStatus maps the approval decision to the initial order status.
func CreationStatus(requiresApproval bool) Status {
	if requiresApproval {
		return StatusDraft
	}
	return StatusPending
}

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationExpired  ReservationStatus = "EXPIRED"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
)
