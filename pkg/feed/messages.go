package feed

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"

	"tessera/pkg/core"
)

// Channel names accepted by Subscribe and On. The wire uses two message
// types for book data (snapshot and delta); both arrive on the orderbook
// channel so one handler set can maintain local state.
const (
	ChannelTicker           = "ticker"
	ChannelOrderbook        = "orderbook_delta"
	ChannelTrade            = "trade"
	ChannelFill             = "fill"
	ChannelMarketPosition   = "market_position"
	ChannelMarketLifecycle  = "market_lifecycle"
	ChannelOrderGroupUpdate = "order_group_update"
)

// Message is one inbound frame after dispatch: the wire type, the channel
// it routes to, the envelope sequence fields, and the decoded payload. When
// the payload cannot be decoded into its typed shape, Data is nil and
// handlers fall back to Raw; a frame is never dropped for a parse failure.
type Message struct {
	Type       string
	Channel    string
	SID        int64
	Seq        int64
	Data       any
	Raw        []byte
	ReceivedAt time.Time
}

// envelope is the server frame wrapper: {type, sid, seq, msg}.
type envelope struct {
	Type string          `json:"type"`
	SID  int64           `json:"sid"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// command is the client frame wrapper: {id, cmd, params}.
type command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"`
	Params commandParams `json:"params"`
}

type commandParams struct {
	Channels      []string `json:"channels"`
	MarketTicker  string   `json:"market_ticker,omitempty"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// commandAck covers the server's subscribe/unsubscribe/error replies.
type commandAck struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Msg  struct {
		Channel string `json:"channel"`
		SID     int64  `json:"sid"`
		Code    string `json:"code"`
		Message string `json:"msg"`
	} `json:"msg"`
}

// TickerUpdate is a top-of-book and volume update for one market.
type TickerUpdate struct {
	MarketTicker string `json:"market_ticker"`
	Price        int    `json:"price"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	Ts           int64  `json:"ts"`
}

// ServerTimeMs returns the exchange timestamp in milliseconds.
func (u *TickerUpdate) ServerTimeMs() int64 { return u.Ts * 1000 }

// OrderbookSnapshot is a full replacement of both book sides. Levels are
// [price, quantity] pairs.
type OrderbookSnapshot struct {
	MarketTicker string   `json:"market_ticker"`
	Yes          [][2]int `json:"yes"`
	No           [][2]int `json:"no"`
}

// YesLevels converts the YES side into price levels.
func (s *OrderbookSnapshot) YesLevels() []core.PriceLevel {
	return pairsToLevels(s.Yes)
}

// NoLevels converts the NO side into price levels.
func (s *OrderbookSnapshot) NoLevels() []core.PriceLevel {
	return pairsToLevels(s.No)
}

func pairsToLevels(pairs [][2]int) []core.PriceLevel {
	levels := make([]core.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		levels = append(levels, core.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return levels
}

// OrderbookDelta is a signed quantity change at one price level, applied
// incrementally after a snapshot.
type OrderbookDelta struct {
	MarketTicker string    `json:"market_ticker"`
	Price        int       `json:"price"`
	Delta        int       `json:"delta"`
	Side         core.Side `json:"side"`
	Ts           int64     `json:"ts"`
}

// ServerTimeMs returns the exchange timestamp in milliseconds.
func (d *OrderbookDelta) ServerTimeMs() int64 { return d.Ts * 1000 }

// TradeUpdate is one public execution.
type TradeUpdate struct {
	MarketTicker string    `json:"market_ticker"`
	YesPrice     int       `json:"yes_price"`
	NoPrice      int       `json:"no_price"`
	Count        int       `json:"count"`
	TakerSide    core.Side `json:"taker_side"`
	Ts           int64     `json:"ts"`
}

// ServerTimeMs returns the exchange timestamp in milliseconds.
func (t *TradeUpdate) ServerTimeMs() int64 { return t.Ts * 1000 }

// FillUpdate is an execution against the account's own order.
type FillUpdate struct {
	TradeID      string      `json:"trade_id"`
	OrderID      string      `json:"order_id"`
	MarketTicker string      `json:"market_ticker"`
	Side         core.Side   `json:"side"`
	Action       core.Action `json:"action"`
	YesPrice     int         `json:"yes_price"`
	NoPrice      int         `json:"no_price"`
	Count        int         `json:"count"`
	IsTaker      bool        `json:"is_taker"`
	Ts           int64       `json:"ts"`
}

// ServerTimeMs returns the exchange timestamp in milliseconds.
func (f *FillUpdate) ServerTimeMs() int64 { return f.Ts * 1000 }

// MarketPositionUpdate is a push update of the account's position in one
// market.
type MarketPositionUpdate struct {
	MarketTicker string `json:"market_ticker"`
	Position     int    `json:"position"`
	PositionCost int64  `json:"position_cost"`
	RealizedPnL  int64  `json:"realized_pnl"`
	FeesPaid     int64  `json:"fees_paid"`
}

// MarketLifecycleUpdate announces a market opening, closing, or being
// determined.
type MarketLifecycleUpdate struct {
	MarketTicker  string `json:"market_ticker"`
	OpenTs        int64  `json:"open_ts"`
	CloseTs       int64  `json:"close_ts"`
	Determination string `json:"determination,omitempty"`
	IsDeactivated bool   `json:"is_deactivated"`
}

// OrderGroupUpdate reports a change to an order group, including the
// exchange tripping its contract budget.
type OrderGroupUpdate struct {
	OrderGroupID   string `json:"order_group_id"`
	ContractsLimit int    `json:"contracts_limit"`
	IsTriggered    bool   `json:"is_triggered"`
}

// serverTimed is implemented by payloads carrying an exchange timestamp.
type serverTimed interface {
	ServerTimeMs() int64
}

type wireEntry struct {
	channel string
	decode  func([]byte) (any, error)
}

// wireTypes maps the wire's type field to a channel and payload decoder.
// Snapshot and delta both route to the orderbook channel.
var wireTypes = map[string]wireEntry{
	"ticker": {ChannelTicker, func(b []byte) (any, error) {
		v := new(TickerUpdate)
		return v, sonic.Unmarshal(b, v)
	}},
	"orderbook_snapshot": {ChannelOrderbook, func(b []byte) (any, error) {
		v := new(OrderbookSnapshot)
		return v, sonic.Unmarshal(b, v)
	}},
	"orderbook_delta": {ChannelOrderbook, func(b []byte) (any, error) {
		v := new(OrderbookDelta)
		return v, sonic.Unmarshal(b, v)
	}},
	"trade": {ChannelTrade, func(b []byte) (any, error) {
		v := new(TradeUpdate)
		return v, sonic.Unmarshal(b, v)
	}},
	"fill": {ChannelFill, func(b []byte) (any, error) {
		v := new(FillUpdate)
		return v, sonic.Unmarshal(b, v)
	}},
	"market_position": {ChannelMarketPosition, func(b []byte) (any, error) {
		v := new(MarketPositionUpdate)
		return v, sonic.Unmarshal(b, v)
	}},
	"market_lifecycle": {ChannelMarketLifecycle, func(b []byte) (any, error) {
		v := new(MarketLifecycleUpdate)
		return v, sonic.Unmarshal(b, v)
	}},
	"order_group_update": {ChannelOrderGroupUpdate, func(b []byte) (any, error) {
		v := new(OrderGroupUpdate)
		return v, sonic.Unmarshal(b, v)
	}},
}
