package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/pkg/core"
)

func levels(pairs ...[2]int) []core.PriceLevel {
	out := make([]core.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, core.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return out
}

func TestEmptyBook(t *testing.T) {
	b := New("FED-25DEC-T3.00")
	assert.Equal(t, "FED-25DEC-T3.00", b.Ticker())

	_, ok := b.BestYesBid()
	assert.False(t, ok)
	_, ok = b.BestYesAsk()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)
	_, ok = b.Mid()
	assert.False(t, ok)
	_, ok = b.Imbalance()
	assert.False(t, ok)
	assert.Nil(t, b.VWAPToFill(core.SideYes, 10))
}

func TestSnapshotAndBestPrices(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(
		levels([2]int{40, 100}, [2]int{45, 50}),
		levels([2]int{50, 200}, [2]int{52, 75}),
	)

	bid, ok := b.BestYesBid()
	require.True(t, ok)
	assert.Equal(t, 45, bid)

	// Best YES ask derives from the best NO bid: 100 - 52.
	ask, ok := b.BestYesAsk()
	require.True(t, ok)
	assert.Equal(t, 48, ask)

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.Equal(t, 3, spread)

	mid, ok := b.Mid()
	require.True(t, ok)
	assert.Equal(t, "46.5", mid.String())
}

func TestSnapshotDropsEmptyLevels(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(
		levels([2]int{40, 0}, [2]int{45, -3}, [2]int{50, 10}),
		nil,
	)
	assert.Equal(t, 1, b.Depth(core.SideYes))
	assert.Equal(t, 10, b.TotalQuantity(core.SideYes))
}

func TestSnapshotReplacesWholesale(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(levels([2]int{40, 100}, [2]int{45, 50}), levels([2]int{50, 10}))
	b.ApplyDelta(core.SideYes, 42, 30)

	// A fresh snapshot discards every prior level, including deltas.
	b.ApplySnapshot(levels([2]int{60, 5}), nil)

	assert.Equal(t, 1, b.Depth(core.SideYes))
	assert.Equal(t, 0, b.Depth(core.SideNo))
	bid, ok := b.BestYesBid()
	require.True(t, ok)
	assert.Equal(t, 60, bid)
}

func TestApplyDelta(t *testing.T) {
	b := New("T")
	b.ApplyDelta(core.SideYes, 40, 100)
	assert.Equal(t, 100, b.TotalQuantity(core.SideYes))

	b.ApplyDelta(core.SideYes, 40, -60)
	assert.Equal(t, 40, b.TotalQuantity(core.SideYes))

	// Reaching zero removes the level entirely.
	b.ApplyDelta(core.SideYes, 40, -40)
	assert.Equal(t, 0, b.Depth(core.SideYes))

	// Over-removal must not leave a negative level behind.
	b.ApplyDelta(core.SideNo, 55, 10)
	b.ApplyDelta(core.SideNo, 55, -25)
	assert.Equal(t, 0, b.Depth(core.SideNo))
}

func TestCrossedBookRepresentable(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(
		levels([2]int{45, 100}, [2]int{50, 200}),
		levels([2]int{55, 150}),
	)

	bid, ok := b.BestYesBid()
	require.True(t, ok)
	assert.Equal(t, 50, bid)

	ask, ok := b.BestYesAsk()
	require.True(t, ok)
	assert.Equal(t, 45, ask)

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.Equal(t, -5, spread, "a crossed book has a negative spread")
}

func TestOneSidedBook(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(levels([2]int{40, 100}), nil)

	_, ok := b.BestYesAsk()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)

	// Imbalance is defined as soon as either side has quantity.
	imb, ok := b.Imbalance()
	require.True(t, ok)
	assert.Equal(t, "1", imb.String())
}

func TestImbalance(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(
		levels([2]int{40, 300}),
		levels([2]int{50, 100}),
	)

	imb, ok := b.Imbalance()
	require.True(t, ok)
	assert.Equal(t, "0.5", imb.String())
}

func TestVWAPToFill(t *testing.T) {
	b := New("T")
	// NO levels at 60 (50 qty) and 55 (100 qty): YES buyable at 40 then 45.
	b.ApplySnapshot(nil, levels([2]int{60, 50}, [2]int{55, 100}))

	// 50 contracts all fill at the best level.
	vwap := b.VWAPToFill(core.SideYes, 50)
	require.NotNil(t, vwap)
	assert.Equal(t, "40", vwap.String())

	// 100 contracts walk into the second level: (50*40 + 50*45) / 100.
	vwap = b.VWAPToFill(core.SideYes, 100)
	require.NotNil(t, vwap)
	assert.Equal(t, "42.5", vwap.String())

	// More than total opposite liquidity: no quote.
	assert.Nil(t, b.VWAPToFill(core.SideYes, 151))
	assert.Nil(t, b.VWAPToFill(core.SideYes, 0))
	assert.Nil(t, b.VWAPToFill(core.SideYes, -5))
}

func TestVWAPBuysNoSide(t *testing.T) {
	b := New("T")
	// Buying NO walks the YES side.
	b.ApplySnapshot(levels([2]int{70, 20}), nil)

	vwap := b.VWAPToFill(core.SideNo, 20)
	require.NotNil(t, vwap)
	assert.Equal(t, "30", vwap.String())
}

func TestLevelsSortedDescending(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(levels([2]int{40, 1}, [2]int{45, 2}, [2]int{42, 3}), nil)

	got := b.Levels(core.SideYes)
	require.Len(t, got, 3)
	assert.Equal(t, 45, got[0].Price)
	assert.Equal(t, 42, got[1].Price)
	assert.Equal(t, 40, got[2].Price)

	// The copy is detached from the book.
	got[0].Quantity = 999
	assert.Equal(t, 2, b.Levels(core.SideYes)[0].Quantity)
}

func TestReset(t *testing.T) {
	b := New("T")
	b.ApplySnapshot(levels([2]int{40, 1}), levels([2]int{50, 2}))
	b.Reset()
	assert.Equal(t, 0, b.Depth(core.SideYes))
	assert.Equal(t, 0, b.Depth(core.SideNo))
}
