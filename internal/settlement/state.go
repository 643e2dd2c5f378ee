package settlement

import (
	"fmt"
	"slices"

	"cantina/backend/internal/domain"
)

// State is the lifecycle position of a sale. Only Completed and Cancelled
// are ever persisted; the others exist while a createSale call is running.
type State string

const (
	StateBuilding       State = "building"
	StatePendingPayment State = "pending_payment"
	StateCompleted      State = "completed"
	StateRejected       State = "rejected"
	StateCancelled      State = "cancelled"
)

var transitions = map[State][]State{
	StateBuilding:       {StatePendingPayment},
	StatePendingPayment: {StateCompleted, StateRejected},
	StateCompleted:      {StateCancelled},
}

func CanTransition(from State, to State) bool {
	return slices.Contains(transitions[from], to)
}

func Transition(from State, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: sale cannot move from %s to %s", domain.ErrInvalidState, from, to)
	}
	return to, nil
}

func StateOf(status domain.SaleStatus) State {
	switch status {
	case domain.SaleStatusCompleted:
		return StateCompleted
	case domain.SaleStatusCancelled:
		return StateCancelled
	}
	return State(status)
}
