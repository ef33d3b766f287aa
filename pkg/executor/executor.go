// Package executor drives the order lifecycle: placement, amendment,
// decrease, cancellation, batch variants, order groups, and a blocking
// wait for terminal state. REST is authoritative for every state change;
// feed events only refresh local copies faster.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tessera/pkg/client"
	"tessera/pkg/core"
	"tessera/pkg/feed"
)

// API is the slice of the REST client the executor depends on.
type API interface {
	CreateOrder(ctx context.Context, order client.CreateOrderRequest) (*core.Order, error)
	GetOrder(ctx context.Context, orderID string) (*core.Order, error)
	AmendOrder(ctx context.Context, orderID string, amend client.AmendOrderRequest) (*core.Order, error)
	DecreaseOrder(ctx context.Context, orderID string, reduceBy int) (*core.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*core.Order, error)
	BatchCreateOrders(ctx context.Context, orders []client.CreateOrderRequest) ([]client.BatchOrderResult, error)
	BatchCancelOrders(ctx context.Context, orderIDs []string) ([]client.BatchOrderResult, error)
	CreateOrderGroup(ctx context.Context, contractsLimit int) (*core.OrderGroup, error)
	GetOrderGroup(ctx context.Context, groupID string) (*core.OrderGroup, error)
	UpdateOrderGroupLimit(ctx context.Context, groupID string, contractsLimit int) (*core.OrderGroup, error)
	TriggerOrderGroup(ctx context.Context, groupID string) error
	ResetOrderGroup(ctx context.Context, groupID string) error
}

// OrderCallback is invoked on every observed order mutation.
type OrderCallback func(*core.Order)

// WaitTimeoutError reports that an order did not reach a terminal state
// before the wait deadline.
type WaitTimeoutError struct {
	OrderID    string
	LastStatus core.OrderStatus
	Timeout    time.Duration
}

// Error implements the error interface.
func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("order %s not terminal after %s (last status %s)",
		e.OrderID, e.Timeout, e.LastStatus)
}

// Executor tracks the orders it has placed and validates their status
// transitions. Terminal states are immutable once observed.
type Executor struct {
	api    API
	logger zerolog.Logger

	orders      sync.Map // order ID -> *core.Order
	callbacks   []OrderCallback
	callbacksMu sync.RWMutex

	sleep func(context.Context, time.Duration) error
}

// New creates an executor on top of the REST API.
func New(api API) *Executor {
	return &Executor{
		api:    api,
		logger: zerolog.Nop(),
		sleep:  sleepCtx,
	}
}

// SetLogger replaces the executor's logger.
func (e *Executor) SetLogger(logger zerolog.Logger) {
	e.logger = logger
}

// OnOrderUpdate registers a callback fired on every observed mutation of a
// tracked order.
func (e *Executor) OnOrderUpdate(cb OrderCallback) {
	e.callbacksMu.Lock()
	e.callbacks = append(e.callbacks, cb)
	e.callbacksMu.Unlock()
}

// PlaceParams describes an order placement. Exactly one of YesPrice/NoPrice
// may be given for limit orders; a NO price is converted to its YES
// complement (100 - no_price) before transmission.
type PlaceParams struct {
	Ticker        string
	Action        core.Action
	Side          core.Side
	Type          core.OrderType
	Count         int
	YesPrice      int
	NoPrice       int
	ClientOrderID string
	OrderGroupID  string
	ExpirationTs  int64
}

func (p *PlaceParams) validate() error {
	if p.Ticker == "" {
		return errors.New("executor: ticker is required")
	}
	if p.Count <= 0 {
		return errors.New("executor: count must be positive")
	}
	if p.YesPrice != 0 && p.NoPrice != 0 {
		return errors.New("executor: at most one of yes_price and no_price may be set")
	}
	if p.Type == core.TypeLimit && p.YesPrice == 0 && p.NoPrice == 0 {
		return errors.New("executor: limit orders require a price")
	}
	if p.YesPrice != 0 && (p.YesPrice < 1 || p.YesPrice > 99) {
		return fmt.Errorf("executor: yes_price %d outside [1,99]", p.YesPrice)
	}
	if p.NoPrice != 0 && (p.NoPrice < 1 || p.NoPrice > 99) {
		return fmt.Errorf("executor: no_price %d outside [1,99]", p.NoPrice)
	}
	return nil
}

func (p *PlaceParams) toRequest() client.CreateOrderRequest {
	req := client.CreateOrderRequest{
		Ticker:        p.Ticker,
		Action:        p.Action,
		Side:          p.Side,
		Type:          p.Type,
		Count:         p.Count,
		ClientOrderID: p.ClientOrderID,
		OrderGroupID:  p.OrderGroupID,
		ExpirationTs:  p.ExpirationTs,
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	// The wire always speaks YES prices.
	if p.NoPrice != 0 {
		req.YesPrice = 100 - p.NoPrice
	} else {
		req.YesPrice = p.YesPrice
	}
	return req
}

// Place validates and submits one order. Business rejections
// (InsufficientFunds, OrderRejected) surface unchanged from the transport.
func (e *Executor) Place(ctx context.Context, params PlaceParams) (*core.Order, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	order, err := e.api.CreateOrder(ctx, params.toRequest())
	if err != nil {
		return nil, err
	}

	e.track(order)
	e.logger.Info().
		Str("order_id", order.ID).
		Str("ticker", order.Ticker).
		Str("status", order.Status.String()).
		Msg("order placed")
	return order, nil
}

// AmendParams changes a resting order's price and/or count. Ticker, Action,
// and Side are required by the exchange; when the caller omits them the
// executor backfills with one GetOrder call so callers need not track
// immutable order metadata themselves.
type AmendParams struct {
	Count    int
	YesPrice int
	NoPrice  int

	Ticker string
	Action *core.Action
	Side   *core.Side
}

// Amend changes the price or remaining count of a resting order.
func (e *Executor) Amend(ctx context.Context, orderID string, params AmendParams) (*core.Order, error) {
	if params.YesPrice != 0 && params.NoPrice != 0 {
		return nil, errors.New("executor: at most one of yes_price and no_price may be set")
	}

	ticker, action, side := params.Ticker, params.Action, params.Side
	if ticker == "" || action == nil || side == nil {
		current, err := e.fetchContext(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if ticker == "" {
			ticker = current.Ticker
		}
		if action == nil {
			action = &current.Action
		}
		if side == nil {
			side = &current.Side
		}
	}

	amend := client.AmendOrderRequest{
		Ticker: ticker,
		Action: *action,
		Side:   *side,
		Count:  params.Count,
	}
	if params.NoPrice != 0 {
		amend.YesPrice = 100 - params.NoPrice
	} else {
		amend.YesPrice = params.YesPrice
	}

	order, err := e.api.AmendOrder(ctx, orderID, amend)
	if err != nil {
		return nil, err
	}
	e.track(order)
	return order, nil
}

// fetchContext uses the local registry when possible and falls back to one
// REST read for the order's immutable fields.
func (e *Executor) fetchContext(ctx context.Context, orderID string) (*core.Order, error) {
	if order, ok := e.Order(orderID); ok {
		return order, nil
	}
	return e.api.GetOrder(ctx, orderID)
}

// Decrease shrinks the order's remaining count by reduceBy. The request is
// transmitted as given; the exchange clamps a decrease larger than the
// remaining count.
func (e *Executor) Decrease(ctx context.Context, orderID string, reduceBy int) (*core.Order, error) {
	if reduceBy <= 0 {
		return nil, errors.New("executor: reduce_by must be positive")
	}

	order, err := e.api.DecreaseOrder(ctx, orderID, reduceBy)
	if err != nil {
		return nil, err
	}
	e.track(order)
	return order, nil
}

// Cancel cancels an order. Canceling an already-canceled order is not an
// error at this layer; whatever the transport returns propagates unchanged.
func (e *Executor) Cancel(ctx context.Context, orderID string) (*core.Order, error) {
	order, err := e.api.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.track(order)
	return order, nil
}

// BatchPlace submits several orders in one wire call. Per-item failures are
// results to inspect, not errors; only a failed HTTP call returns an error.
func (e *Executor) BatchPlace(ctx context.Context, batch []PlaceParams) ([]client.BatchOrderResult, error) {
	reqs := make([]client.CreateOrderRequest, 0, len(batch))
	for i := range batch {
		if err := batch[i].validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		reqs = append(reqs, batch[i].toRequest())
	}

	results, err := e.api.BatchCreateOrders(ctx, reqs)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.Order != nil {
			e.track(res.Order)
		}
	}
	return results, nil
}

// BatchCancel cancels several orders in one wire call with per-item results.
func (e *Executor) BatchCancel(ctx context.Context, orderIDs []string) ([]client.BatchOrderResult, error) {
	results, err := e.api.BatchCancelOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.Order != nil {
			e.track(res.Order)
		}
	}
	return results, nil
}

// Refresh re-reads the order from the exchange and updates the registry.
func (e *Executor) Refresh(ctx context.Context, orderID string) (*core.Order, error) {
	order, err := e.api.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.track(order)
	return order, nil
}

// WaitUntilTerminal polls Refresh at pollInterval until the order reaches a
// terminal status or timeout elapses, then fails with *WaitTimeoutError
// naming the order and its last observed status. An order already known
// terminal returns immediately with zero network calls.
func (e *Executor) WaitUntilTerminal(ctx context.Context, orderID string, timeout, pollInterval time.Duration) (*core.Order, error) {
	if order, ok := e.Order(orderID); ok && order.Status.IsTerminal() {
		return order, nil
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	var last core.OrderStatus

	for {
		order, err := e.Refresh(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.Status.IsTerminal() {
			return order, nil
		}
		last = order.Status

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := pollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			break
		}
	}

	return nil, &WaitTimeoutError{OrderID: orderID, LastStatus: last, Timeout: timeout}
}

// Order returns the tracked copy of an order, if any.
func (e *Executor) Order(orderID string) (*core.Order, bool) {
	v, ok := e.orders.Load(orderID)
	if !ok {
		return nil, false
	}
	order, ok := v.(*core.Order)
	return order, ok
}

// OpenOrders returns every tracked order not yet in a terminal state.
func (e *Executor) OpenOrders() []*core.Order {
	var out []*core.Order
	e.orders.Range(func(_, v any) bool {
		if order, ok := v.(*core.Order); ok && !order.Status.IsTerminal() {
			out = append(out, order)
		}
		return true
	})
	return out
}

// ObserveFeed wires the executor to fill events so tracked orders refresh
// without polling. REST remains authoritative; this only narrows the gap.
func (e *Executor) ObserveFeed(f *feed.Feed) {
	f.On(feed.ChannelFill, func(msg *feed.Message) {
		fill, ok := msg.Data.(*feed.FillUpdate)
		if !ok {
			return
		}
		e.applyFill(fill)
	})
}

func (e *Executor) applyFill(fill *feed.FillUpdate) {
	order, ok := e.Order(fill.OrderID)
	if !ok || order.Status.IsTerminal() {
		return
	}
	updated := *order
	updated.FillCount += fill.Count
	updated.RemainingCount -= fill.Count
	if updated.RemainingCount <= 0 {
		updated.RemainingCount = 0
		updated.Status = core.StatusExecuted
	}
	e.track(&updated)
}

// track stores the order, refusing transitions out of a terminal state.
func (e *Executor) track(order *core.Order) {
	if order == nil || order.ID == "" {
		return
	}

	if prev, ok := e.Order(order.ID); ok {
		if !validTransition(prev.Status, order.Status) {
			e.logger.Warn().
				Str("order_id", order.ID).
				Str("from", prev.Status.String()).
				Str("to", order.Status.String()).
				Msg("ignoring invalid status transition")
			return
		}
	}

	e.orders.Store(order.ID, order)
	e.notify(order)
}

func (e *Executor) notify(order *core.Order) {
	e.callbacksMu.RLock()
	callbacks := make([]OrderCallback, len(e.callbacks))
	copy(callbacks, e.callbacks)
	e.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb(order)
	}
}

// validTransition encodes the lifecycle: pending and resting may move
// forward or self-transition (amend/decrease); terminal states are
// immutable once observed.
func validTransition(from, to core.OrderStatus) bool {
	if from.IsTerminal() {
		return from == to
	}
	switch from {
	case core.StatusPending:
		return true
	case core.StatusResting:
		return to != core.StatusPending
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
