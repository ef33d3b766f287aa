// Package book reconstructs a local order book for one binary market from
// snapshot and delta events and derives analytics from it.
//
// A Book is pure computation over its two price-level maps: no I/O, no
// locking. It is owned by whichever component constructed it; callers that
// feed one book from multiple goroutines must add their own lock.
package book

import (
	"sort"

	"github.com/cockroachdb/apd/v3"

	"tessera/pkg/core"
)

var decCtx = apd.BaseContext.WithPrecision(16)

// Book holds the resting quantity at each price level for the YES and NO
// sides of one market. Prices are cents in [1,99]; no entry ever has a
// quantity <= 0.
type Book struct {
	ticker string
	yes    map[int]int
	no     map[int]int
}

// New creates an empty book for the given market ticker.
func New(ticker string) *Book {
	return &Book{
		ticker: ticker,
		yes:    make(map[int]int),
		no:     make(map[int]int),
	}
}

// Ticker returns the market this book tracks.
func (b *Book) Ticker() string {
	return b.ticker
}

// ApplySnapshot replaces both sides wholesale. Every post-reconnect
// snapshot is the new source of truth; prior incremental state is
// discarded. Levels with non-positive quantity are dropped.
func (b *Book) ApplySnapshot(yes, no []core.PriceLevel) {
	b.yes = make(map[int]int, len(yes))
	b.no = make(map[int]int, len(no))
	for _, lvl := range yes {
		if lvl.Quantity > 0 {
			b.yes[lvl.Price] = lvl.Quantity
		}
	}
	for _, lvl := range no {
		if lvl.Quantity > 0 {
			b.no[lvl.Price] = lvl.Quantity
		}
	}
}

// ApplyDelta adds a signed quantity change at one price level. The key is
// removed when the resulting quantity reaches zero or below. Deltas are not
// idempotent: the caller must apply each exactly once, in sequence order.
func (b *Book) ApplyDelta(side core.Side, price, delta int) {
	m := b.sideMap(side)
	newQty := m[price] + delta
	if newQty <= 0 {
		delete(m, price)
	} else {
		m[price] = newQty
	}
}

// Reset clears both sides.
func (b *Book) Reset() {
	b.yes = make(map[int]int)
	b.no = make(map[int]int)
}

// BestYesBid returns the highest YES bid price. ok is false when the YES
// side is empty; a single-sided book is a normal state, not an error.
func (b *Book) BestYesBid() (price int, ok bool) {
	return maxKey(b.yes)
}

// BestYesAsk returns the lowest price at which YES can be bought, derived
// from the best NO bid: 100 minus the highest NO price. ok is false when
// the NO side is empty.
func (b *Book) BestYesAsk() (price int, ok bool) {
	best, ok := maxKey(b.no)
	if !ok {
		return 0, false
	}
	return 100 - best, true
}

// Spread returns best ask minus best bid. A crossed book yields a negative
// spread; that is representable, not special-cased away. ok is false when
// either side is empty.
func (b *Book) Spread() (int, bool) {
	bid, okBid := b.BestYesBid()
	ask, okAsk := b.BestYesAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// Mid returns the midpoint of the best bid and ask as a decimal. ok is
// false when either side is empty.
func (b *Book) Mid() (*apd.Decimal, bool) {
	bid, okBid := b.BestYesBid()
	ask, okAsk := b.BestYesAsk()
	if !okBid || !okAsk {
		return nil, false
	}
	mid := new(apd.Decimal)
	_, _ = decCtx.Quo(mid, apd.New(int64(bid+ask), 0), apd.New(2, 0))
	return mid, true
}

// Imbalance returns (yesQty - noQty) / (yesQty + noQty) over the total
// resting quantity of each side, in [-1, 1]. ok is false when both sides
// are empty.
func (b *Book) Imbalance() (*apd.Decimal, bool) {
	yesQty := int64(b.TotalQuantity(core.SideYes))
	noQty := int64(b.TotalQuantity(core.SideNo))
	if yesQty+noQty == 0 {
		return nil, false
	}
	imb := new(apd.Decimal)
	_, _ = decCtx.Quo(imb, apd.New(yesQty-noQty, 0), apd.New(yesQty+noQty, 0))
	return imb, true
}

// VWAPToFill returns the volume-weighted average price to buy size
// contracts of the given side by walking the opposite side's levels from
// best offer down. Each opposite level at price p offers contracts at
// 100-p. It returns nil when the opposite side holds less than size in
// total; insufficient liquidity is a defined "no quote" result, not an
// error.
func (b *Book) VWAPToFill(side core.Side, size int) *apd.Decimal {
	if size <= 0 {
		return nil
	}

	opposite := b.sideMap(side.Opposite())
	prices := make([]int, 0, len(opposite))
	for p := range opposite {
		prices = append(prices, p)
	}
	// Highest opposite price first: that is the cheapest fill for us.
	sort.Sort(sort.Reverse(sort.IntSlice(prices)))

	remaining := size
	var cost int64
	for _, p := range prices {
		take := opposite[p]
		if take > remaining {
			take = remaining
		}
		cost += int64(take) * int64(100-p)
		remaining -= take
		if remaining == 0 {
			break
		}
	}
	if remaining > 0 {
		return nil
	}

	vwap := new(apd.Decimal)
	_, _ = decCtx.Quo(vwap, apd.New(cost, 0), apd.New(int64(size), 0))
	return vwap
}

// TotalQuantity returns the sum of resting quantity on one side.
func (b *Book) TotalQuantity(side core.Side) int {
	total := 0
	for _, qty := range b.sideMap(side) {
		total += qty
	}
	return total
}

// Depth returns the number of distinct price levels on one side.
func (b *Book) Depth(side core.Side) int {
	return len(b.sideMap(side))
}

// Levels returns a copy of one side's levels sorted by price descending.
func (b *Book) Levels(side core.Side) []core.PriceLevel {
	m := b.sideMap(side)
	levels := make([]core.PriceLevel, 0, len(m))
	for price, qty := range m {
		levels = append(levels, core.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price > levels[j].Price
	})
	return levels
}

func (b *Book) sideMap(side core.Side) map[int]int {
	if side == core.SideYes {
		return b.yes
	}
	return b.no
}

func maxKey(m map[int]int) (int, bool) {
	if len(m) == 0 {
		return 0, false
	}
	best := -1
	for k := range m {
		if k > best {
			best = k
		}
	}
	return best, true
}
