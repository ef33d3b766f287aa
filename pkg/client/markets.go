package client

import (
	"context"
	"net/http"

	"tessera/pkg/core"
)

// MarketsParams filters GetMarkets.
type MarketsParams struct {
	PageParams
	EventTicker  string
	SeriesTicker string
	Status       string
	Tickers      string
}

// MarketsPage is one page of markets plus the cursor for the next.
type MarketsPage struct {
	Markets []core.Market `json:"markets"`
	Cursor  string        `json:"cursor"`
}

// GetMarkets lists markets with cursor pagination.
func (c *Client) GetMarkets(ctx context.Context, params MarketsParams) (*MarketsPage, error) {
	req := core.NewRequest(http.MethodGet, "/markets")
	params.PageParams.apply(req)
	if params.EventTicker != "" {
		req.SetQuery("event_ticker", params.EventTicker)
	}
	if params.SeriesTicker != "" {
		req.SetQuery("series_ticker", params.SeriesTicker)
	}
	if params.Status != "" {
		req.SetQuery("status", params.Status)
	}
	if params.Tickers != "" {
		req.SetQuery("tickers", params.Tickers)
	}

	var page MarketsPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetMarket fetches one market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*core.Market, error) {
	req := core.NewRequest(http.MethodGet, "/markets/"+ticker)

	var resp struct {
		Market core.Market `json:"market"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Market, nil
}

// Orderbook is the REST book snapshot: [price, quantity] pairs per side.
type Orderbook struct {
	Yes [][2]int `json:"yes"`
	No  [][2]int `json:"no"`
}

// YesLevels converts the YES side into price levels.
func (o *Orderbook) YesLevels() []core.PriceLevel {
	return pairsToLevels(o.Yes)
}

// NoLevels converts the NO side into price levels.
func (o *Orderbook) NoLevels() []core.PriceLevel {
	return pairsToLevels(o.No)
}

func pairsToLevels(pairs [][2]int) []core.PriceLevel {
	levels := make([]core.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		levels = append(levels, core.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return levels
}

// GetOrderbook fetches a market's book snapshot to the given depth (0 for
// the server default).
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*Orderbook, error) {
	req := core.NewRequest(http.MethodGet, "/markets/"+ticker+"/orderbook")
	if depth > 0 {
		req.SetQuery("depth", depth)
	}

	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Orderbook, nil
}

// TradesParams filters GetTrades.
type TradesParams struct {
	PageParams
	Ticker string
	MinTs  int64
	MaxTs  int64
}

// TradesPage is one page of public trades plus the cursor for the next.
type TradesPage struct {
	Trades []core.Trade `json:"trades"`
	Cursor string       `json:"cursor"`
}

// GetTrades lists public executions with cursor pagination.
func (c *Client) GetTrades(ctx context.Context, params TradesParams) (*TradesPage, error) {
	req := core.NewRequest(http.MethodGet, "/markets/trades")
	params.PageParams.apply(req)
	tsRange{MinTs: params.MinTs, MaxTs: params.MaxTs}.apply(req)
	if params.Ticker != "" {
		req.SetQuery("ticker", params.Ticker)
	}

	var page TradesPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CandlesticksParams filters GetCandlesticks. PeriodInterval is in minutes.
type CandlesticksParams struct {
	Ticker         string
	SeriesTicker   string
	StartTs        int64
	EndTs          int64
	PeriodInterval int
}

// GetCandlesticks fetches OHLC history for a market.
func (c *Client) GetCandlesticks(ctx context.Context, params CandlesticksParams) ([]core.Candlestick, error) {
	req := core.NewRequest(http.MethodGet, "/markets/candlesticks")
	if params.Ticker != "" {
		req.SetQuery("ticker", params.Ticker)
	}
	if params.SeriesTicker != "" {
		req.SetQuery("series_ticker", params.SeriesTicker)
	}
	if params.StartTs > 0 {
		req.SetQuery("start_ts", params.StartTs)
	}
	if params.EndTs > 0 {
		req.SetQuery("end_ts", params.EndTs)
	}
	if params.PeriodInterval > 0 {
		req.SetQuery("period_interval", params.PeriodInterval)
	}

	var resp struct {
		Candlesticks []core.Candlestick `json:"candlesticks"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Candlesticks, nil
}
