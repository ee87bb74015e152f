package engine

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, port int) *Client {
	t.Helper()
	c := NewClient(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}, 64, nil)
	t.Cleanup(c.Close)
	return c
}

// recv waits for the next notification delivered to c.
func recv(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.Outbound():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no notification for client %s", c.Addr())
		return ""
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Outbound():
		t.Fatalf("unexpected notification %q for client %s", msg, c.Addr())
	case <-time.After(20 * time.Millisecond):
	}
}

func limit(side Side, price, size int64, c *Client) LimitOrder {
	return LimitOrder{Timestamp: time.Unix(0, 0), Size: size, Side: side, Price: price, Client: c}
}

func market(side Side, size int64, c *Client) MarketOrder {
	return MarketOrder{Timestamp: time.Unix(0, 0), Size: size, Side: side, Client: c}
}

func restingFills(ob *OrderBook) map[int64][]int64 {
	out := make(map[int64][]int64)
	for _, levels := range [][]LevelView{ob.Snapshot().Bids, ob.Snapshot().Asks} {
		for _, l := range levels {
			for _, o := range l.Orders {
				out[l.Price] = append(out[l.Price], o.Filled)
			}
		}
	}
	return out
}

func TestBestPriceSelection(t *testing.T) {
	ob := NewOrderBook(nil)

	_, ok := ob.BestPrice(Ask)
	assert.False(t, ok, "empty bid side has no best price")

	for _, p := range []int64{100, 105, 98} {
		ob.Insert(limit(Bid, p, 1, nil))
	}
	for _, p := range []int64{110, 108, 115} {
		ob.Insert(limit(Ask, p, 1, nil))
	}

	best, ok := ob.BestPrice(Ask)
	require.True(t, ok)
	assert.Equal(t, int64(105), best, "an aggressing ask sees the highest bid")

	best, ok = ob.BestPrice(Bid)
	require.True(t, ok)
	assert.Equal(t, int64(108), best, "an aggressing bid sees the lowest ask")
}

func TestInsertDoesNotMatchOrNotify(t *testing.T) {
	ob := NewOrderBook(nil)
	c := newTestClient(t, 1)

	ob.Insert(limit(Bid, 120, 5, c))
	ob.Insert(limit(Ask, 100, 5, c))

	assert.Equal(t, 1, ob.LevelCount(Bid))
	assert.Equal(t, 1, ob.LevelCount(Ask))
	assertSilent(t, c)
}

func TestPartialRemainderRequeuedAtFront(t *testing.T) {
	ob := NewOrderBook(nil)
	maker := newTestClient(t, 1)
	later := newTestClient(t, 2)
	taker := newTestClient(t, 3)

	ob.Insert(limit(Bid, 100, 10, maker))
	ob.Insert(limit(Bid, 100, 7, later))

	trades := ob.Match(market(Ask, 4, taker))
	require.Len(t, trades, 1)
	assert.Equal(t, int64(4), trades[0].Size)
	assert.Equal(t, int64(100), trades[0].Price)

	snap := ob.Snapshot()
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Bids[0].Orders, 2)
	front := snap.Bids[0].Orders[0]
	assert.Equal(t, int64(10), front.Size)
	assert.Equal(t, int64(4), front.Filled)
	assert.Equal(t, maker.ID(), front.ClientID)

	assert.Equal(t, "Order filled [4/10]", recv(t, maker))
	assert.Equal(t, "Order filled [4/4] at 100", recv(t, taker))
	assertSilent(t, later)
}

func TestPriceTimePriority(t *testing.T) {
	ob := NewOrderBook(nil)
	a := newTestClient(t, 1)
	b := newTestClient(t, 2)
	taker := newTestClient(t, 3)

	ob.Insert(limit(Ask, 50, 3, a))
	ob.Insert(limit(Ask, 50, 3, b))

	ob.Match(market(Bid, 4, taker))

	assert.Equal(t, "Order filled!", recv(t, a))
	assert.Equal(t, "Order filled [1/3]", recv(t, b))
	assert.Equal(t, map[int64][]int64{50: {1}}, restingFills(ob))
}

func TestMatchWalksPriceLevelsBestFirst(t *testing.T) {
	ob := NewOrderBook(nil)
	c := newTestClient(t, 1)
	taker := newTestClient(t, 2)

	ob.Insert(limit(Ask, 55, 5, c))
	ob.Insert(limit(Ask, 50, 2, c))

	trades := ob.Match(market(Bid, 4, taker))
	require.Len(t, trades, 2)
	assert.Equal(t, int64(50), trades[0].Price)
	assert.Equal(t, int64(2), trades[0].Size)
	assert.Equal(t, int64(55), trades[1].Price)
	assert.Equal(t, int64(2), trades[1].Size)

	assert.Equal(t, "Order filled [2/4] at 50", recv(t, taker))
	assert.Equal(t, "Order filled [2/4] at 55", recv(t, taker))

	best, ok := ob.BestPrice(Bid)
	require.True(t, ok)
	assert.Equal(t, int64(55), best, "drained level must be skipped")
	assert.Equal(t, 1, ob.LevelCount(Ask))
}

func TestExactFillEvictsLevel(t *testing.T) {
	ob := NewOrderBook(nil)
	maker := newTestClient(t, 1)
	taker := newTestClient(t, 2)

	ob.Insert(limit(Bid, 99, 6, maker))
	ob.Insert(limit(Bid, 97, 1, maker))

	ob.Match(market(Ask, 6, taker))

	assert.Equal(t, "Order filled!", recv(t, maker))
	assert.Equal(t, "Order filled [6/6] at 99", recv(t, taker))
	assertSilent(t, taker)

	best, ok := ob.BestPrice(Ask)
	require.True(t, ok)
	assert.Equal(t, int64(97), best)
	assert.Equal(t, 1, ob.LevelCount(Bid))
}

func TestUnfilledAggressorOnEmptySide(t *testing.T) {
	ob := NewOrderBook(nil)
	taker := newTestClient(t, 1)
	ob.Insert(limit(Ask, 120, 3, nil))
	before := ob.String()

	trades := ob.Match(market(Ask, 5, taker))

	assert.Empty(t, trades)
	assert.Equal(t, "Unfilled [5/5]", recv(t, taker))
	assertSilent(t, taker)
	assert.Equal(t, before, ob.String(), "book must be unchanged")
}

func TestUnfilledRemainderAfterSweep(t *testing.T) {
	ob := NewOrderBook(nil)
	maker := newTestClient(t, 1)
	taker := newTestClient(t, 2)

	ob.Insert(limit(Ask, 10, 2, maker))
	ob.Match(market(Bid, 5, taker))

	assert.Equal(t, "Order filled [2/5] at 10", recv(t, taker))
	assert.Equal(t, "Unfilled [3/5]", recv(t, taker))
	assert.Equal(t, 0, ob.LevelCount(Ask))
}

func TestEndToEndScenario(t *testing.T) {
	ob := NewOrderBook(nil)
	x := newTestClient(t, 1)
	y := newTestClient(t, 2)
	z := newTestClient(t, 3)

	ob.HandleOrder(limit(Bid, 100, 5, x))
	ob.HandleOrder(limit(Bid, 100, 3, y))
	ob.HandleOrder(market(Ask, 6, z))

	assert.Equal(t, "Order filled!", recv(t, x))
	assert.Equal(t, "Order filled [1/3]", recv(t, y))
	assert.Equal(t, "Order filled [5/6] at 100", recv(t, z))
	assert.Equal(t, "Order filled [1/6] at 100", recv(t, z))

	snap := ob.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(100), snap.Bids[0].Price)
	require.Len(t, snap.Bids[0].Orders, 1)
	assert.Equal(t, int64(1), snap.Bids[0].Orders[0].Filled)
	assert.Equal(t, int64(3), snap.Bids[0].Orders[0].Size)
}

func TestQuantityConservation(t *testing.T) {
	var traded int64
	ob := NewOrderBook(func(tr Trade) { traded += tr.Size })

	sizes := []int64{3, 7, 1, 4, 9, 2}
	for i, size := range sizes {
		ob.Insert(limit(Bid, int64(100+i%3), size, nil))
	}

	restingBefore := int64(0)
	for _, s := range sizes {
		restingBefore += s
	}

	for _, size := range []int64{5, 1, 8, 3} {
		before := traded
		trades := ob.Match(market(Ask, size, nil))

		var fromTrades int64
		for _, tr := range trades {
			fromTrades += tr.Size
			assert.Positive(t, tr.Size)
		}
		assert.Equal(t, traded-before, fromTrades)
		assert.LessOrEqual(t, fromTrades, size)
	}

	var restingAfter int64
	for _, l := range ob.Snapshot().Bids {
		require.NotEmpty(t, l.Orders, "empty level left in the book")
		for _, o := range l.Orders {
			assert.Less(t, o.Filled, o.Size, "fully filled order left resting")
			restingAfter += o.Size - o.Filled
		}
	}
	assert.Equal(t, restingBefore-traded, restingAfter)
}

func TestBidAndAskMatchingAreSymmetric(t *testing.T) {
	run := func(aggressor Side) []Trade {
		ob := NewOrderBook(nil)
		resting := aggressor.Opposite()
		prices := []int64{100, 101, 102}
		for _, p := range prices {
			ob.Insert(limit(resting, p, 2, nil))
		}
		return ob.Match(market(aggressor, 5, nil))
	}

	bidTrades := run(Bid)
	askTrades := run(Ask)
	require.Len(t, bidTrades, 3)
	require.Len(t, askTrades, 3)

	assert.Equal(t, []int64{100, 101, 102}, tradePrices(bidTrades))
	assert.Equal(t, []int64{102, 101, 100}, tradePrices(askTrades))
	for i := range bidTrades {
		assert.Equal(t, bidTrades[i].Size, askTrades[i].Size)
	}
}

func tradePrices(trades []Trade) []int64 {
	out := make([]int64, len(trades))
	for i, t := range trades {
		out[i] = t.Price
	}
	return out
}

func TestInsertRejectsFilledOrder(t *testing.T) {
	ob := NewOrderBook(nil)
	o := limit(Bid, 100, 3, nil)
	o.Filled = 3
	assert.Panics(t, func() { ob.Insert(o) })
}

func TestEvictRejectsLiveOrUnknownLevel(t *testing.T) {
	side := newBookSide(Ask)
	level := side.levelAt(105)
	level.pushBack(limit(Ask, 105, 1, nil))
	assert.Panics(t, func() { side.evict(level) })

	assert.Panics(t, func() { side.evict(newPriceLevel(999)) })

	_, _ = level.popFront()
	assert.NotPanics(t, func() { side.evict(level) })
	assert.Zero(t, side.len())
}

func TestDrainLevelRejectsExhaustedQuantities(t *testing.T) {
	ob := NewOrderBook(nil)

	spent := newPriceLevel(100)
	resting := limit(Ask, 100, 2, nil)
	resting.Filled = 2
	spent.pushBack(resting)
	mo := market(Bid, 1, nil)
	assert.Panics(t, func() { ob.drainLevel(spent, &mo, nil) })

	live := newPriceLevel(100)
	live.pushBack(limit(Ask, 100, 2, nil))
	done := market(Bid, 1, nil)
	done.Filled = 1
	assert.Panics(t, func() { ob.drainLevel(live, &done, nil) })
}

func TestDumpListsLevels(t *testing.T) {
	ob := NewOrderBook(nil)
	c := newTestClient(t, 4242)
	ob.Insert(limit(Bid, 100, 5, c))
	ob.Insert(limit(Bid, 101, 2, nil))
	ob.Insert(limit(Ask, 110, 1, nil))

	want := "OrderBook:\n" +
		"Bids:\n" +
		"  101 -> [0/2 -]\n" +
		"  100 -> [0/5 127.0.0.1:4242]\n" +
		"Asks:\n" +
		"  110 -> [0/1 -]\n"
	assert.Equal(t, want, ob.String())
}

func TestNewOrderValidates(t *testing.T) {
	_, err := NewOrder(Bid, Limit, 0, 100, nil, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewOrder(Ask, Limit, 5, 0, nil, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = NewOrder(Ask, Kind(9), 5, 1, nil, time.Now())
	assert.ErrorIs(t, err, ErrUnknownKind)

	o, err := NewOrder(Ask, Market, 5, 0, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Market, o.Kind())
	assert.Equal(t, Ask, o.OrderSide())

	o, err = NewOrder(Bid, Limit, 5, 10, nil, time.Now())
	require.NoError(t, err)
	lo, ok := o.(LimitOrder)
	require.True(t, ok)
	assert.Equal(t, int64(10), lo.Price)
}
