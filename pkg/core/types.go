// Package core contains the shared types, errors, and configuration used by
// every component of the exchange client.
package core

import (
	"time"
)

// Side identifies which outcome contract of a binary market an order or
// position refers to.
type Side int

// Contract side constants.
const (
	// SideYes refers to the YES outcome contract.
	SideYes Side = iota
	// SideNo refers to the NO outcome contract.
	SideNo
)

// String returns the string representation of the side ("yes" or "no").
func (s Side) String() string {
	return [...]string{"yes", "no"}[s]
}

// MarshalJSON implements json.Marshaler for Side.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Side.
func (s *Side) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"yes"`, `"YES"`:
		*s = SideYes
	case `"no"`, `"NO"`:
		*s = SideNo
	}
	return nil
}

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Action represents the direction of an order (buy or sell).
type Action int

// Order action constants.
const (
	// ActionBuy opens or increases a position.
	ActionBuy Action = iota
	// ActionSell closes or reduces a position.
	ActionSell
)

// String returns the string representation of the action ("buy" or "sell").
func (a Action) String() string {
	return [...]string{"buy", "sell"}[a]
}

// MarshalJSON implements json.Marshaler for Action.
func (a Action) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Action.
func (a *Action) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"buy"`, `"BUY"`:
		*a = ActionBuy
	case `"sell"`, `"SELL"`:
		*a = ActionSell
	}
	return nil
}

// OrderType represents how an order is executed.
type OrderType int

// Order type constants.
const (
	// TypeLimit rests at a specified price or better.
	TypeLimit OrderType = iota
	// TypeMarket executes immediately at the best available price.
	TypeMarket
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	return [...]string{"limit", "market"}[t]
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"limit"`, `"LIMIT"`:
		*t = TypeLimit
	case `"market"`, `"MARKET"`:
		*t = TypeMarket
	}
	return nil
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus int

// Order status constants.
const (
	// StatusPending indicates the order has been submitted but not yet
	// acknowledged by the matching engine.
	StatusPending OrderStatus = iota
	// StatusResting indicates the order is live on the book.
	StatusResting
	// StatusCanceled indicates the order was canceled. Terminal.
	StatusCanceled
	// StatusExecuted indicates the order was fully matched. Terminal.
	StatusExecuted
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	return [...]string{"pending", "resting", "canceled", "executed"}[s]
}

// MarshalJSON implements json.Marshaler for OrderStatus.
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderStatus.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"pending"`:
		*s = StatusPending
	case `"resting"`:
		*s = StatusResting
	case `"canceled"`:
		*s = StatusCanceled
	case `"executed"`:
		*s = StatusExecuted
	}
	return nil
}

// IsTerminal returns true once the order can no longer change state.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusExecuted
}

// Credentials holds the exchange-issued API key identifier and the RSA
// private key used for request signing. Immutable after construction.
type Credentials struct {
	// KeyID is the public API key identifier.
	KeyID string `json:"key_id"`
	// PrivateKeyPEM is the PEM-encoded RSA private key material.
	PrivateKeyPEM []byte `json:"-"`
}

// PriceLevel is one rung of an order book side: a price in cents (1-99) and
// the resting quantity at that price. A quantity of zero means the level
// does not exist.
type PriceLevel struct {
	Price    int `json:"price"`
	Quantity int `json:"quantity"`
}

// Order is the canonical representation of an exchange order. Status is the
// only field that changes after creation, except for counts on
// amend/decrease and fills.
type Order struct {
	ID             string      `json:"order_id"`
	ClientOrderID  string      `json:"client_order_id,omitempty"`
	Ticker         string      `json:"ticker"`
	Side           Side        `json:"side"`
	Action         Action      `json:"action"`
	Type           OrderType   `json:"type"`
	YesPrice       int         `json:"yes_price,omitempty"`
	NoPrice        int         `json:"no_price,omitempty"`
	InitialCount   int         `json:"initial_count"`
	FillCount      int         `json:"fill_count"`
	RemainingCount int         `json:"remaining_count"`
	Status         OrderStatus `json:"status"`
	OrderGroupID   string      `json:"order_group_id,omitempty"`
	CreatedAt      time.Time   `json:"created_time,omitzero"`
	ExpirationAt   time.Time   `json:"expiration_time,omitzero"`
}

// Market describes a single binary market.
type Market struct {
	Ticker        string    `json:"ticker"`
	EventTicker   string    `json:"event_ticker"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	YesBid        int       `json:"yes_bid"`
	YesAsk        int       `json:"yes_ask"`
	NoBid         int       `json:"no_bid"`
	NoAsk         int       `json:"no_ask"`
	LastPrice     int       `json:"last_price"`
	Volume        int64     `json:"volume"`
	OpenInterest  int64     `json:"open_interest"`
	Liquidity     int64     `json:"liquidity"`
	OpenTime      time.Time `json:"open_time,omitzero"`
	CloseTime     time.Time `json:"close_time,omitzero"`
	Result        string    `json:"result,omitempty"`
	CanCloseEarly bool      `json:"can_close_early"`
}

// Trade is one public execution on a market.
type Trade struct {
	ID        string    `json:"trade_id"`
	Ticker    string    `json:"ticker"`
	TakerSide Side      `json:"taker_side"`
	YesPrice  int       `json:"yes_price"`
	NoPrice   int       `json:"no_price"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_time,omitzero"`
}

// Candlestick is one OHLC bucket of a market's price history.
type Candlestick struct {
	Ticker   string `json:"ticker"`
	PeriodTs int64  `json:"end_period_ts"`
	OpenBid  int    `json:"yes_bid_open"`
	HighBid  int    `json:"yes_bid_high"`
	LowBid   int    `json:"yes_bid_low"`
	CloseBid int    `json:"yes_bid_close"`
	Volume   int64  `json:"volume"`
	OpenInt  int64  `json:"open_interest"`
}

// Balance is the account's available cash and open payout, in cents.
type Balance struct {
	AvailableCents int64 `json:"balance"`
	PayoutCents    int64 `json:"payout"`
}

// Position is the account's holding in a single market.
type Position struct {
	Ticker           string `json:"ticker"`
	Position         int    `json:"position"`
	MarketExposure   int64  `json:"market_exposure"`
	RealizedPnLCents int64  `json:"realized_pnl"`
	TotalTradedCents int64  `json:"total_traded"`
	RestingOrders    int    `json:"resting_orders_count"`
	FeesPaidCents    int64  `json:"fees_paid"`
}

// Fill is one execution against the account's own order.
type Fill struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Ticker    string    `json:"ticker"`
	Side      Side      `json:"side"`
	Action    Action    `json:"action"`
	YesPrice  int       `json:"yes_price"`
	NoPrice   int       `json:"no_price"`
	Count     int       `json:"count"`
	IsTaker   bool      `json:"is_taker"`
	CreatedAt time.Time `json:"created_time,omitzero"`
}

// Settlement is the final cash outcome of a determined market.
type Settlement struct {
	Ticker       string    `json:"ticker"`
	MarketResult string    `json:"market_result"`
	YesCount     int       `json:"yes_count"`
	NoCount      int       `json:"no_count"`
	RevenueCents int64     `json:"revenue"`
	YesTotalCost int64     `json:"yes_total_cost"`
	NoTotalCost  int64     `json:"no_total_cost"`
	SettledAt    time.Time `json:"settled_time,omitzero"`
}

// OrderGroup is a server-side construct that caps the total contracts
// matched by its member orders inside a rolling window. When the cap is
// exceeded the exchange cancels every member; the client surfaces the state
// it is told and never enforces the budget locally.
type OrderGroup struct {
	ID             string   `json:"order_group_id"`
	ContractsLimit int      `json:"contracts_limit"`
	OrderIDs       []string `json:"order_ids"`
	IsTriggered    bool     `json:"is_triggered"`
}
