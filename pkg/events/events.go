package events

import "time"

// Exchange is the topic exchange order events are published to.
const Exchange = "markethub.orders"

// KindOrderStatusChanged is the routing key for lifecycle transitions.
const KindOrderStatusChanged = "order.status_changed"

// OrderStatusChanged is emitted for every committed lifecycle transition,
// including checkout (basket -> new) and cancellation.
type OrderStatusChanged struct {
	OrderID string    `json:"orderId"`
	UserID  string    `json:"userId"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
}
