package types

import "time"

// DeliveryState is the per-recipient acknowledgment state of one event.
// State only ever advances forward, never regresses.
type DeliveryState int

const (
	DeliveryPending DeliveryState = iota
	DeliveryDelivered
	DeliveryRead
	DeliveryExpired
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryRead:
		return "read"
	case DeliveryExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the record is eligible for archival.
func (s DeliveryState) Terminal() bool {
	return s == DeliveryRead || s == DeliveryExpired
}

// DeliveryRecord tracks delivery of one event to one recipient.
type DeliveryRecord struct {
	EventID       string
	RecipientID   string
	State         DeliveryState
	AttemptCount  int
	LastAttemptAt time.Time
}
