package domain

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusBasket    OrderStatus = "basket"
	StatusNew       OrderStatus = "new"
	StatusConfirmed OrderStatus = "confirmed"
	StatusAssembled OrderStatus = "assembled"
	StatusSent      OrderStatus = "sent"
	StatusDelivered OrderStatus = "delivered"
	StatusCanceled  OrderStatus = "canceled"
)

// statusTransitions is the adjacency table for legal lifecycle edges.
// The forward path is strictly sequential; canceled is reachable from any
// non-terminal state. Self-loops are not legal edges.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusBasket:    {StatusNew, StatusCanceled},
	StatusNew:       {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusAssembled, StatusCanceled},
	StatusAssembled: {StatusSent, StatusCanceled},
	StatusSent:      {StatusDelivered, StatusCanceled},
	StatusDelivered: nil,
	StatusCanceled:  nil,
}

// Valid reports whether s is a known lifecycle status.
func (s OrderStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are permitted from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range statusTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
