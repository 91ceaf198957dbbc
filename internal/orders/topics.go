package orders

const (
	TopicOrderCreated        = "order.created"
	TopicOrderCancelled      = "order.cancelled"
	TopicReservationExpired  = "inventory.reservation.expired"
	TopicReservationReleased = "inventory.reservation.released"
)

// Partition key = order id, so every event of one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
