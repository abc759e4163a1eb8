package enums

import "fmt"

// DeliveryStatus is shared by orders, dispatches and support requests.
// Values only ever move forward: pending, dispatched, delivered.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusDispatched DeliveryStatus = "dispatched"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
)

var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusPending:    0,
	DeliveryStatusDispatched: 1,
	DeliveryStatusDelivered:  2,
}

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) IsValid() bool {
	_, ok := deliveryStatusRank[s]
	return ok
}

// Rank orders statuses; unknown values rank -1.
func (s DeliveryStatus) Rank() int {
	if r, ok := deliveryStatusRank[s]; ok {
		return r
	}
	return -1
}

// Before reports whether s strictly precedes other in the lifecycle.
func (s DeliveryStatus) Before(other DeliveryStatus) bool {
	return s.Rank() < other.Rank()
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	s := DeliveryStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid delivery status %q", value)
	}
	return s, nil
}
