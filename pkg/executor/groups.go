package executor

import (
	"context"
	"errors"

	"tessera/pkg/core"
)

// CreateGroup creates an order group with a rolling contract-match budget.
// Orders placed with PlaceParams.OrderGroupID set to the returned group's ID
// share the budget; exceeding it cancels every member order exchange-side.
func (e *Executor) CreateGroup(ctx context.Context, contractsLimit int) (*core.OrderGroup, error) {
	if contractsLimit <= 0 {
		return nil, errors.New("executor: contracts_limit must be positive")
	}
	return e.api.CreateOrderGroup(ctx, contractsLimit)
}

// Group fetches a group's current state, including whether it has tripped.
func (e *Executor) Group(ctx context.Context, groupID string) (*core.OrderGroup, error) {
	return e.api.GetOrderGroup(ctx, groupID)
}

// SetGroupLimit changes a group's contract budget.
func (e *Executor) SetGroupLimit(ctx context.Context, groupID string, contractsLimit int) (*core.OrderGroup, error) {
	if contractsLimit <= 0 {
		return nil, errors.New("executor: contracts_limit must be positive")
	}
	return e.api.UpdateOrderGroupLimit(ctx, groupID, contractsLimit)
}

// TriggerGroup manually trips the group, canceling its member orders. Local
// copies of tracked members refresh on the next poll or fill event.
func (e *Executor) TriggerGroup(ctx context.Context, groupID string) error {
	return e.api.TriggerOrderGroup(ctx, groupID)
}

// ResetGroup re-arms a tripped group so it accepts new member orders.
func (e *Executor) ResetGroup(ctx context.Context, groupID string) error {
	return e.api.ResetOrderGroup(ctx, groupID)
}
