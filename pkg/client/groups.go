package client

import (
	"context"
	"net/http"

	"tessera/pkg/core"
)

// CreateOrderGroup creates a group whose member orders share a rolling
// contract-match budget. The budget is enforced exchange-side; exceeding it
// cancels every member order.
func (c *Client) CreateOrderGroup(ctx context.Context, contractsLimit int) (*core.OrderGroup, error) {
	req := core.NewRequest(http.MethodPost, "/portfolio/order_groups").
		SetBody(map[string]int{"contracts_limit": contractsLimit}).
		SetRequireAuth(true)

	var resp struct {
		OrderGroup core.OrderGroup `json:"order_group"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.OrderGroup, nil
}

// GetOrderGroups lists the account's order groups.
func (c *Client) GetOrderGroups(ctx context.Context) ([]core.OrderGroup, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/order_groups").SetRequireAuth(true)

	var resp struct {
		OrderGroups []core.OrderGroup `json:"order_groups"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.OrderGroups, nil
}

// GetOrderGroup fetches one order group, including its triggered status.
func (c *Client) GetOrderGroup(ctx context.Context, groupID string) (*core.OrderGroup, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/order_groups/"+groupID).SetRequireAuth(true)

	var resp struct {
		OrderGroup core.OrderGroup `json:"order_group"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.OrderGroup, nil
}

// UpdateOrderGroupLimit changes the group's contract budget.
func (c *Client) UpdateOrderGroupLimit(ctx context.Context, groupID string, contractsLimit int) (*core.OrderGroup, error) {
	req := core.NewRequest(http.MethodPut, "/portfolio/order_groups/"+groupID+"/limit").
		SetBody(map[string]int{"contracts_limit": contractsLimit}).
		SetRequireAuth(true)

	var resp struct {
		OrderGroup core.OrderGroup `json:"order_group"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.OrderGroup, nil
}

// TriggerOrderGroup manually trips the group, canceling every member order.
func (c *Client) TriggerOrderGroup(ctx context.Context, groupID string) error {
	req := core.NewRequest(http.MethodPost, "/portfolio/order_groups/"+groupID+"/trigger").
		SetRequireAuth(true)
	return c.do(ctx, req, nil)
}

// ResetOrderGroup re-arms a triggered group so new member orders are
// accepted again.
func (c *Client) ResetOrderGroup(ctx context.Context, groupID string) error {
	req := core.NewRequest(http.MethodPost, "/portfolio/order_groups/"+groupID+"/reset").
		SetRequireAuth(true)
	return c.do(ctx, req, nil)
}
