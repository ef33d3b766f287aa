package client

import (
	"context"
	"net/http"

	"tessera/pkg/core"
)

// GetBalance fetches the account's cash balance.
func (c *Client) GetBalance(ctx context.Context) (*core.Balance, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/balance").SetRequireAuth(true)

	var balance core.Balance
	if err := c.do(ctx, req, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// CreateOrderRequest is the wire shape of an order placement. Exactly one
// of YesPrice/NoPrice may be set for limit orders; the executor normalizes
// this before transmission.
type CreateOrderRequest struct {
	Ticker        string         `json:"ticker"`
	Action        core.Action    `json:"action"`
	Side          core.Side      `json:"side"`
	Type          core.OrderType `json:"type"`
	Count         int            `json:"count"`
	YesPrice      int            `json:"yes_price,omitempty"`
	NoPrice       int            `json:"no_price,omitempty"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	OrderGroupID  string         `json:"order_group_id,omitempty"`
	ExpirationTs  int64          `json:"expiration_ts,omitempty"`
}

// CreateOrder places a single order. Business rejections surface unchanged
// as typed errors.
func (c *Client) CreateOrder(ctx context.Context, order CreateOrderRequest) (*core.Order, error) {
	req := core.NewRequest(http.MethodPost, "/portfolio/orders").
		SetBody(order).
		SetRequireAuth(true)

	var resp struct {
		Order core.Order `json:"order"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// OrdersParams filters GetOrders.
type OrdersParams struct {
	PageParams
	Ticker string
	Status string
	MinTs  int64
	MaxTs  int64
}

// OrdersPage is one page of the account's orders plus the next cursor.
type OrdersPage struct {
	Orders []core.Order `json:"orders"`
	Cursor string       `json:"cursor"`
}

// GetOrders lists the account's orders with cursor pagination.
func (c *Client) GetOrders(ctx context.Context, params OrdersParams) (*OrdersPage, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/orders").SetRequireAuth(true)
	params.PageParams.apply(req)
	tsRange{MinTs: params.MinTs, MaxTs: params.MaxTs}.apply(req)
	if params.Ticker != "" {
		req.SetQuery("ticker", params.Ticker)
	}
	if params.Status != "" {
		req.SetQuery("status", params.Status)
	}

	var page OrdersPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetOrder fetches one order by ID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/orders/"+orderID).SetRequireAuth(true)

	var resp struct {
		Order core.Order `json:"order"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// AmendOrderRequest changes an order's price and/or remaining count. The
// exchange requires the order's immutable context (ticker, action, side) to
// be restated.
type AmendOrderRequest struct {
	Ticker   string      `json:"ticker"`
	Action   core.Action `json:"action"`
	Side     core.Side   `json:"side"`
	Count    int         `json:"count,omitempty"`
	YesPrice int         `json:"yes_price,omitempty"`
	NoPrice  int         `json:"no_price,omitempty"`
}

// AmendOrder changes the price or count of a resting order.
func (c *Client) AmendOrder(ctx context.Context, orderID string, amend AmendOrderRequest) (*core.Order, error) {
	req := core.NewRequest(http.MethodPost, "/portfolio/orders/"+orderID+"/amend").
		SetBody(amend).
		SetRequireAuth(true)

	var resp struct {
		Order core.Order `json:"order"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// DecreaseOrder monotonically shrinks a resting order's remaining count by
// reduceBy contracts. It never increases the count.
func (c *Client) DecreaseOrder(ctx context.Context, orderID string, reduceBy int) (*core.Order, error) {
	req := core.NewRequest(http.MethodPost, "/portfolio/orders/"+orderID+"/decrease").
		SetBody(map[string]int{"reduce_by": reduceBy}).
		SetRequireAuth(true)

	var resp struct {
		Order core.Order `json:"order"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// CancelOrder cancels a resting order. The transport error for an
// already-canceled order propagates unchanged.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*core.Order, error) {
	req := core.NewRequest(http.MethodDelete, "/portfolio/orders/"+orderID).SetRequireAuth(true)

	var resp struct {
		Order core.Order `json:"order"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// BatchItemError is a per-item failure inside a successful batch call.
type BatchItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchOrderResult is one item's outcome in a batch response: either the
// created/canceled order or its error. A per-item failure inside a
// successful HTTP call is a result to inspect, not an exception.
type BatchOrderResult struct {
	Order *core.Order     `json:"order,omitempty"`
	Error *BatchItemError `json:"error,omitempty"`
}

// BatchCreateOrders places up to the exchange's batch limit of orders in
// one call. Per-item results come back in request order.
func (c *Client) BatchCreateOrders(ctx context.Context, orders []CreateOrderRequest) ([]BatchOrderResult, error) {
	req := core.NewRequest(http.MethodPost, "/portfolio/orders/batched").
		SetBody(map[string]any{"orders": orders}).
		SetRequireAuth(true).
		SetWeight(len(orders))

	var resp struct {
		Orders []BatchOrderResult `json:"orders"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// BatchCancelOrders cancels a set of orders in one call. Per-item results
// come back in request order.
func (c *Client) BatchCancelOrders(ctx context.Context, orderIDs []string) ([]BatchOrderResult, error) {
	req := core.NewRequest(http.MethodDelete, "/portfolio/orders/batched").
		SetBody(map[string]any{"ids": orderIDs}).
		SetRequireAuth(true).
		SetWeight(len(orderIDs))

	var resp struct {
		Orders []BatchOrderResult `json:"orders"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// PositionsParams filters GetPositions.
type PositionsParams struct {
	PageParams
	Ticker           string
	SettlementStatus string
}

// PositionsPage is one page of market positions plus the next cursor.
type PositionsPage struct {
	Positions []core.Position `json:"market_positions"`
	Cursor    string          `json:"cursor"`
}

// GetPositions lists the account's market positions with cursor pagination.
func (c *Client) GetPositions(ctx context.Context, params PositionsParams) (*PositionsPage, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/positions").SetRequireAuth(true)
	params.PageParams.apply(req)
	if params.Ticker != "" {
		req.SetQuery("ticker", params.Ticker)
	}
	if params.SettlementStatus != "" {
		req.SetQuery("settlement_status", params.SettlementStatus)
	}

	var page PositionsPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FillsParams filters GetFills.
type FillsParams struct {
	PageParams
	Ticker  string
	OrderID string
	MinTs   int64
	MaxTs   int64
}

// FillsPage is one page of the account's fills plus the next cursor.
type FillsPage struct {
	Fills  []core.Fill `json:"fills"`
	Cursor string      `json:"cursor"`
}

// GetFills lists the account's executions with cursor pagination.
func (c *Client) GetFills(ctx context.Context, params FillsParams) (*FillsPage, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/fills").SetRequireAuth(true)
	params.PageParams.apply(req)
	tsRange{MinTs: params.MinTs, MaxTs: params.MaxTs}.apply(req)
	if params.Ticker != "" {
		req.SetQuery("ticker", params.Ticker)
	}
	if params.OrderID != "" {
		req.SetQuery("order_id", params.OrderID)
	}

	var page FillsPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SettlementsPage is one page of settlements plus the next cursor.
type SettlementsPage struct {
	Settlements []core.Settlement `json:"settlements"`
	Cursor      string            `json:"cursor"`
}

// GetSettlements lists the account's settled markets with cursor pagination.
func (c *Client) GetSettlements(ctx context.Context, params PageParams) (*SettlementsPage, error) {
	req := core.NewRequest(http.MethodGet, "/portfolio/settlements").SetRequireAuth(true)
	params.apply(req)

	var page SettlementsPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
