package pharmacy

import "fmt"

// StatusPolicy decides which order status may follow which.
type StatusPolicy string

const (
	// PolicyStrict is the forward-only lifecycle:
	// pending -> confirmed -> preparing -> ready -> {dispatched -> delivered | delivered},
	// with cancelled reachable from any non-terminal status.
	PolicyStrict StatusPolicy = "strict"
	// PolicyFree lets the pharmacy pick any status for an open order, as long
	// as pickup orders are never dispatched.
	PolicyFree StatusPolicy = "free"
)

var strictTransitions = map[string][]string{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusPreparing, StatusCancelled},
	StatusPreparing:  {StatusReady, StatusCancelled},
	StatusReady:      {StatusDispatched, StatusDelivered, StatusCancelled},
	StatusDispatched: {StatusDelivered, StatusCancelled},
}

func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch StatusPolicy(s) {
	case PolicyStrict, "":
		return PolicyStrict, nil
	case PolicyFree:
		return PolicyFree, nil
	}
	return "", fmt.Errorf("unknown order status policy %q", s)
}

// IsTerminal reports whether status ends the order under every policy.
func IsTerminal(status string) bool {
	return status == StatusDelivered || status == StatusCancelled
}

// Allows reports whether o may move to next.
func (p StatusPolicy) Allows(o *Order, next string) bool {
	if !orderStatuses[next] {
		return false
	}
	if next == StatusDispatched && o.OrderType != OrderTypeDelivery {
		return false
	}
	if IsTerminal(o.Status) {
		return false
	}
	if p == PolicyFree {
		return true
	}
	for _, allowed := range strictTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}
