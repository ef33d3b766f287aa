package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/pkg/client"
	"tessera/pkg/core"
	"tessera/pkg/feed"
)

// fakeAPI scripts the REST surface for executor tests.
type fakeAPI struct {
	mu       sync.Mutex
	created  []client.CreateOrderRequest
	amended  []client.AmendOrderRequest
	getCalls int

	createResult *core.Order
	createErr    error
	getResult    *core.Order
	getErr       error
	amendResult  *core.Order
	cancelResult *core.Order
	batchResults []client.BatchOrderResult
	groups       map[string]*core.OrderGroup
}

func (f *fakeAPI) CreateOrder(_ context.Context, req client.CreateOrderRequest) (*core.Order, error) {
	f.mu.Lock()
	f.created = append(f.created, req)
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &core.Order{
		ID:             "ord-" + req.ClientOrderID,
		ClientOrderID:  req.ClientOrderID,
		Ticker:         req.Ticker,
		Side:           req.Side,
		Action:         req.Action,
		Type:           req.Type,
		YesPrice:       req.YesPrice,
		InitialCount:   req.Count,
		RemainingCount: req.Count,
		Status:         core.StatusResting,
	}, nil
}

func (f *fakeAPI) GetOrder(_ context.Context, orderID string) (*core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getResult, nil
}

func (f *fakeAPI) AmendOrder(_ context.Context, orderID string, amend client.AmendOrderRequest) (*core.Order, error) {
	f.mu.Lock()
	f.amended = append(f.amended, amend)
	f.mu.Unlock()
	return f.amendResult, nil
}

func (f *fakeAPI) DecreaseOrder(_ context.Context, orderID string, reduceBy int) (*core.Order, error) {
	return f.amendResult, nil
}

func (f *fakeAPI) CancelOrder(_ context.Context, orderID string) (*core.Order, error) {
	return f.cancelResult, nil
}

func (f *fakeAPI) BatchCreateOrders(_ context.Context, orders []client.CreateOrderRequest) ([]client.BatchOrderResult, error) {
	f.mu.Lock()
	f.created = append(f.created, orders...)
	f.mu.Unlock()
	return f.batchResults, nil
}

func (f *fakeAPI) BatchCancelOrders(_ context.Context, orderIDs []string) ([]client.BatchOrderResult, error) {
	return f.batchResults, nil
}

func (f *fakeAPI) CreateOrderGroup(_ context.Context, contractsLimit int) (*core.OrderGroup, error) {
	g := &core.OrderGroup{ID: "grp-1", ContractsLimit: contractsLimit}
	if f.groups == nil {
		f.groups = make(map[string]*core.OrderGroup)
	}
	f.groups[g.ID] = g
	return g, nil
}

func (f *fakeAPI) GetOrderGroup(_ context.Context, groupID string) (*core.OrderGroup, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, errors.New("not found")
	}
	return g, nil
}

func (f *fakeAPI) UpdateOrderGroupLimit(_ context.Context, groupID string, contractsLimit int) (*core.OrderGroup, error) {
	g, err := f.GetOrderGroup(nil, groupID)
	if err != nil {
		return nil, err
	}
	g.ContractsLimit = contractsLimit
	return g, nil
}

func (f *fakeAPI) TriggerOrderGroup(_ context.Context, groupID string) error {
	g, err := f.GetOrderGroup(nil, groupID)
	if err != nil {
		return err
	}
	g.IsTriggered = true
	return nil
}

func (f *fakeAPI) ResetOrderGroup(_ context.Context, groupID string) error {
	g, err := f.GetOrderGroup(nil, groupID)
	if err != nil {
		return err
	}
	g.IsTriggered = false
	return nil
}

func TestPlaceValidation(t *testing.T) {
	e := New(&fakeAPI{})
	ctx := context.Background()

	tests := []struct {
		name   string
		params PlaceParams
	}{
		{"missing ticker", PlaceParams{Count: 1, YesPrice: 40}},
		{"zero count", PlaceParams{Ticker: "T", YesPrice: 40}},
		{"negative count", PlaceParams{Ticker: "T", Count: -1, YesPrice: 40}},
		{"both prices", PlaceParams{Ticker: "T", Count: 1, YesPrice: 40, NoPrice: 55}},
		{"limit without price", PlaceParams{Ticker: "T", Count: 1, Type: core.TypeLimit}},
		{"price too high", PlaceParams{Ticker: "T", Count: 1, YesPrice: 100}},
		{"no price out of range", PlaceParams{Ticker: "T", Count: 1, NoPrice: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Place(ctx, tt.params)
			assert.Error(t, err)
		})
	}
}

func TestPlaceConvertsNoPrice(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	_, err := e.Place(context.Background(), PlaceParams{
		Ticker:  "T",
		Action:  core.ActionBuy,
		Side:    core.SideNo,
		Count:   10,
		NoPrice: 35,
	})
	require.NoError(t, err)

	require.Len(t, api.created, 1)
	assert.Equal(t, 65, api.created[0].YesPrice, "no_price transmits as its yes complement")
	assert.Zero(t, api.created[0].NoPrice)
}

func TestPlaceGeneratesClientOrderID(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	_, err := e.Place(context.Background(), PlaceParams{
		Ticker: "T", Count: 1, YesPrice: 40,
	})
	require.NoError(t, err)

	require.Len(t, api.created, 1)
	_, err = uuid.Parse(api.created[0].ClientOrderID)
	assert.NoError(t, err, "generated client order id must be a uuid")

	_, err = e.Place(context.Background(), PlaceParams{
		Ticker: "T", Count: 1, YesPrice: 40, ClientOrderID: "mine",
	})
	require.NoError(t, err)
	assert.Equal(t, "mine", api.created[1].ClientOrderID)
}

func TestPlaceTracksAndNotifies(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	var seen []string
	e.OnOrderUpdate(func(order *core.Order) {
		seen = append(seen, order.ID)
	})

	order, err := e.Place(context.Background(), PlaceParams{
		Ticker: "T", Count: 1, YesPrice: 40,
	})
	require.NoError(t, err)

	tracked, ok := e.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, core.StatusResting, tracked.Status)
	assert.Equal(t, []string{order.ID}, seen)
}

func TestPlaceErrorNotTracked(t *testing.T) {
	api := &fakeAPI{createErr: core.NewAPIError(core.ErrorTypeInsufficientFunds, 400, "POST", "/portfolio/orders", "broke")}
	e := New(api)

	_, err := e.Place(context.Background(), PlaceParams{Ticker: "T", Count: 1, YesPrice: 40})
	require.Error(t, err)
	assert.True(t, core.IsInsufficientFundsError(err))
	assert.Empty(t, e.OpenOrders())
}

func TestAmendBackfillsContext(t *testing.T) {
	existing := &core.Order{
		ID:     "ord-1",
		Ticker: "T",
		Action: core.ActionSell,
		Side:   core.SideNo,
		Status: core.StatusResting,
	}
	api := &fakeAPI{getResult: existing, amendResult: existing}
	e := New(api)

	_, err := e.Amend(context.Background(), "ord-1", AmendParams{Count: 5, YesPrice: 44})
	require.NoError(t, err)

	assert.Equal(t, 1, api.getCalls, "untracked amend needs exactly one read for context")
	require.Len(t, api.amended, 1)
	assert.Equal(t, "T", api.amended[0].Ticker)
	assert.Equal(t, core.ActionSell, api.amended[0].Action)
	assert.Equal(t, core.SideNo, api.amended[0].Side)
	assert.Equal(t, 44, api.amended[0].YesPrice)
}

func TestAmendUsesTrackedContext(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	order, err := e.Place(context.Background(), PlaceParams{
		Ticker: "T", Action: core.ActionBuy, Side: core.SideYes, Count: 10, YesPrice: 40,
	})
	require.NoError(t, err)

	api.amendResult = order
	_, err = e.Amend(context.Background(), order.ID, AmendParams{Count: 8, NoPrice: 55})
	require.NoError(t, err)

	assert.Zero(t, api.getCalls, "tracked orders amend without a read")
	require.Len(t, api.amended, 1)
	assert.Equal(t, 45, api.amended[0].YesPrice, "no_price converts on amend too")
}

func TestAmendRejectsBothPrices(t *testing.T) {
	e := New(&fakeAPI{})
	_, err := e.Amend(context.Background(), "ord-1", AmendParams{YesPrice: 40, NoPrice: 55})
	assert.Error(t, err)
}

func TestDecreaseValidation(t *testing.T) {
	e := New(&fakeAPI{})
	_, err := e.Decrease(context.Background(), "ord-1", 0)
	assert.Error(t, err)
	_, err = e.Decrease(context.Background(), "ord-1", -3)
	assert.Error(t, err)
}

func TestBatchPlaceValidatesAllItemsFirst(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	_, err := e.BatchPlace(context.Background(), []PlaceParams{
		{Ticker: "T", Count: 1, YesPrice: 40},
		{Ticker: "T", Count: 0, YesPrice: 40},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
	assert.Empty(t, api.created, "nothing transmits when any item is invalid")
}

func TestBatchPlaceTracksResults(t *testing.T) {
	ok := &core.Order{ID: "ord-1", Status: core.StatusResting, RemainingCount: 1}
	api := &fakeAPI{batchResults: []client.BatchOrderResult{
		{Order: ok},
		{Error: &client.BatchItemError{Code: "insufficient_balance"}},
	}}
	e := New(api)

	results, err := e.BatchPlace(context.Background(), []PlaceParams{
		{Ticker: "T", Count: 1, YesPrice: 40},
		{Ticker: "T", Count: 1, YesPrice: 40},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	_, tracked := e.Order("ord-1")
	assert.True(t, tracked)
	assert.Len(t, e.OpenOrders(), 1)
}

func TestWaitUntilTerminalLocalShortCircuit(t *testing.T) {
	api := &fakeAPI{cancelResult: &core.Order{ID: "ord-1", Status: core.StatusCanceled}}
	e := New(api)

	_, err := e.Cancel(context.Background(), "ord-1")
	require.NoError(t, err)

	order, err := e.WaitUntilTerminal(context.Background(), "ord-1", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCanceled, order.Status)
	assert.Zero(t, api.getCalls, "locally terminal orders need no network calls")
}

func TestWaitUntilTerminalPollsToCompletion(t *testing.T) {
	api := &fakeAPI{getResult: &core.Order{ID: "ord-1", Status: core.StatusResting}}
	e := New(api)

	go func() {
		time.Sleep(30 * time.Millisecond)
		api.mu.Lock()
		api.getResult = &core.Order{ID: "ord-1", Status: core.StatusExecuted, FillCount: 10}
		api.mu.Unlock()
	}()

	order, err := e.WaitUntilTerminal(context.Background(), "ord-1", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, core.StatusExecuted, order.Status)
	assert.GreaterOrEqual(t, api.getCalls, 2)
}

func TestWaitUntilTerminalTimeout(t *testing.T) {
	api := &fakeAPI{getResult: &core.Order{ID: "ord-1", Status: core.StatusResting}}
	e := New(api)

	_, err := e.WaitUntilTerminal(context.Background(), "ord-1", 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)

	var timeout *WaitTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "ord-1", timeout.OrderID)
	assert.Equal(t, core.StatusResting, timeout.LastStatus)
	assert.Contains(t, err.Error(), "ord-1")
}

func TestWaitUntilTerminalCanceledContext(t *testing.T) {
	api := &fakeAPI{getResult: &core.Order{ID: "ord-1", Status: core.StatusResting}}
	e := New(api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.WaitUntilTerminal(ctx, "ord-1", time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminalStatusImmutable(t *testing.T) {
	api := &fakeAPI{cancelResult: &core.Order{ID: "ord-1", Status: core.StatusCanceled}}
	e := New(api)

	_, err := e.Cancel(context.Background(), "ord-1")
	require.NoError(t, err)

	// A stale read claiming the order went back to resting is refused.
	api.getResult = &core.Order{ID: "ord-1", Status: core.StatusResting}
	_, err = e.Refresh(context.Background(), "ord-1")
	require.NoError(t, err)

	tracked, ok := e.Order("ord-1")
	require.True(t, ok)
	assert.Equal(t, core.StatusCanceled, tracked.Status)
}

func TestValidTransitions(t *testing.T) {
	assert.True(t, validTransition(core.StatusPending, core.StatusResting))
	assert.True(t, validTransition(core.StatusPending, core.StatusExecuted))
	assert.True(t, validTransition(core.StatusResting, core.StatusResting))
	assert.True(t, validTransition(core.StatusResting, core.StatusCanceled))
	assert.True(t, validTransition(core.StatusResting, core.StatusExecuted))

	assert.False(t, validTransition(core.StatusResting, core.StatusPending))
	assert.False(t, validTransition(core.StatusCanceled, core.StatusResting))
	assert.False(t, validTransition(core.StatusExecuted, core.StatusResting))
	assert.True(t, validTransition(core.StatusExecuted, core.StatusExecuted))
}

func TestOpenOrdersFiltersTerminal(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	resting, err := e.Place(context.Background(), PlaceParams{Ticker: "T", Count: 1, YesPrice: 40})
	require.NoError(t, err)

	api.cancelResult = &core.Order{ID: "ord-x", Status: core.StatusCanceled}
	_, err = e.Cancel(context.Background(), "ord-x")
	require.NoError(t, err)

	open := e.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, resting.ID, open[0].ID)
}

func TestApplyFillUpdatesCounts(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)

	order, err := e.Place(context.Background(), PlaceParams{Ticker: "T", Count: 10, YesPrice: 40})
	require.NoError(t, err)

	e.applyFill(&feed.FillUpdate{OrderID: order.ID, Count: 4})
	tracked, _ := e.Order(order.ID)
	assert.Equal(t, 4, tracked.FillCount)
	assert.Equal(t, 6, tracked.RemainingCount)
	assert.Equal(t, core.StatusResting, tracked.Status)

	e.applyFill(&feed.FillUpdate{OrderID: order.ID, Count: 6})
	tracked, _ = e.Order(order.ID)
	assert.Equal(t, core.StatusExecuted, tracked.Status)
	assert.Zero(t, tracked.RemainingCount)

	// Fills for executed orders are ignored.
	e.applyFill(&feed.FillUpdate{OrderID: order.ID, Count: 1})
	tracked, _ = e.Order(order.ID)
	assert.Equal(t, 10, tracked.FillCount)
}

func TestGroupLifecycle(t *testing.T) {
	api := &fakeAPI{}
	e := New(api)
	ctx := context.Background()

	_, err := e.CreateGroup(ctx, 0)
	assert.Error(t, err)

	group, err := e.CreateGroup(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, group.ContractsLimit)

	_, err = e.SetGroupLimit(ctx, group.ID, 50)
	require.NoError(t, err)

	require.NoError(t, e.TriggerGroup(ctx, group.ID))
	got, err := e.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, got.IsTriggered)

	require.NoError(t, e.ResetGroup(ctx, group.ID))
	got, err = e.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.False(t, got.IsTriggered)
}
