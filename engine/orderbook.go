package engine

import (
	"container/list"
	"fmt"
	"strings"
	"time"

	"github.com/google/btree"
)

const btreeDegree = 32

// PriceLevel is the FIFO queue of resting limit orders at one price.
type PriceLevel struct {
	Price  int64
	orders *list.List // of LimitOrder
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price, orders: list.New()}
}

// Len returns the number of resting orders at this price.
func (l *PriceLevel) Len() int { return l.orders.Len() }

func (l *PriceLevel) pushBack(o LimitOrder)  { l.orders.PushBack(o) }
func (l *PriceLevel) pushFront(o LimitOrder) { l.orders.PushFront(o) }

func (l *PriceLevel) popFront() (LimitOrder, bool) {
	front := l.orders.Front()
	if front == nil {
		return LimitOrder{}, false
	}
	return l.orders.Remove(front).(LimitOrder), true
}

func (l *PriceLevel) each(fn func(LimitOrder)) {
	for e := l.orders.Front(); e != nil; e = e.Next() {
		fn(e.Value.(LimitOrder))
	}
}

// bookSide is one side of the book: price levels ordered by price.
type bookSide struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
}

func newBookSide(side Side) *bookSide {
	return &bookSide{
		side: side,
		levels: btree.NewG(btreeDegree, func(a, b *PriceLevel) bool {
			return a.Price < b.Price
		}),
	}
}

func (s *bookSide) levelAt(price int64) *PriceLevel {
	if level, ok := s.levels.Get(&PriceLevel{Price: price}); ok {
		return level
	}
	level := newPriceLevel(price)
	s.levels.ReplaceOrInsert(level)
	return level
}

// best returns the highest bid or the lowest ask.
func (s *bookSide) best() (*PriceLevel, bool) {
	if s.side == Bid {
		return s.levels.Max()
	}
	return s.levels.Min()
}

func (s *bookSide) evict(level *PriceLevel) {
	if level.Len() != 0 {
		panic(fmt.Sprintf("orderbook: evicting %s level %d with %d resting orders", s.side, level.Price, level.Len()))
	}
	if _, ok := s.levels.Delete(level); !ok {
		panic(fmt.Sprintf("orderbook: evicting unknown %s level %d", s.side, level.Price))
	}
}

// walk visits levels best price first.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	if s.side == Bid {
		s.levels.Descend(fn)
		return
	}
	s.levels.Ascend(fn)
}

func (s *bookSide) len() int { return s.levels.Len() }

// OrderBook holds the resting limit orders of a single instrument. It is not safe
// for concurrent use; the Engine goroutine is its only owner.
type OrderBook struct {
	bids *bookSide
	asks *bookSide

	onTrade func(Trade)
	now     func() time.Time
}

// NewOrderBook returns an empty book. onTrade, if non-nil, is called once per
// executed transaction.
func NewOrderBook(onTrade func(Trade)) *OrderBook {
	return &OrderBook{
		bids:    newBookSide(Bid),
		asks:    newBookSide(Ask),
		onTrade: onTrade,
		now:     time.Now,
	}
}

// HandleOrder applies o to the book: limit orders rest, market orders match.
func (ob *OrderBook) HandleOrder(o Order) {
	o.Dispatch(ob)
}

// HandleLimit implements OrderHandler.
func (ob *OrderBook) HandleLimit(o LimitOrder) { ob.Insert(o) }

// HandleMarket implements OrderHandler.
func (ob *OrderBook) HandleMarket(o MarketOrder) { ob.Match(o) }

// Insert appends a limit order to the tail of its price level. No matching is
// attempted and nobody is notified.
func (ob *OrderBook) Insert(o LimitOrder) {
	if o.Filled < 0 || o.Filled >= o.Size {
		panic(fmt.Sprintf("orderbook: inserting order with filled %d of %d", o.Filled, o.Size))
	}
	ob.side(o.Side).levelAt(o.Price).pushBack(o)
}

// BestPrice returns the best resting price an incoming order on side would trade
// against: the highest bid for an ask, the lowest ask for a bid.
func (ob *OrderBook) BestPrice(side Side) (int64, bool) {
	level, ok := ob.side(side.Opposite()).best()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// Match fills a market order against the opposite side, best price first and
// FIFO within a price. Any remainder left when the side runs dry is reported to
// the aggressor as unfilled and dropped.
func (ob *OrderBook) Match(mo MarketOrder) []Trade {
	opposite := ob.side(mo.Side.Opposite())

	var trades []Trade
	for mo.Remaining() > 0 {
		level, ok := opposite.best()
		if !ok {
			break
		}
		trades = ob.drainLevel(level, &mo, trades)
		if level.Len() == 0 {
			opposite.evict(level)
		}
	}

	if rem := mo.Remaining(); rem > 0 {
		mo.Client.Notify(unfilledMsg(rem, mo.Size))
	}
	return trades
}

// drainLevel consumes head orders of level until mo is satisfied or the level is
// empty.
func (ob *OrderBook) drainLevel(level *PriceLevel, mo *MarketOrder, trades []Trade) []Trade {
	for {
		lo, ok := level.popFront()
		if !ok {
			return trades
		}
		remLimit := lo.Remaining()
		remMarket := mo.Remaining()
		if remLimit <= 0 || remMarket <= 0 {
			panic(fmt.Sprintf("orderbook: matching exhausted quantities limit=%d market=%d", remLimit, remMarket))
		}

		switch {
		case remLimit < remMarket:
			mo.Filled += remLimit
			lo.Filled += remLimit
			lo.Client.Notify(filledMsg)
			mo.Client.Notify(marketFillMsg(remLimit, mo.Size, lo.Price))
			trades = ob.record(trades, lo.Price, remLimit, mo.Side)

		case remLimit == remMarket:
			mo.Filled += remMarket
			lo.Filled += remMarket
			lo.Client.Notify(filledMsg)
			mo.Client.Notify(marketFillMsg(remMarket, mo.Size, lo.Price))
			return ob.record(trades, lo.Price, remMarket, mo.Side)

		default:
			mo.Filled += remMarket
			lo.Filled += remMarket
			level.pushFront(lo)
			lo.Client.Notify(partialFillMsg(lo.Filled, lo.Size))
			mo.Client.Notify(marketFillMsg(remMarket, mo.Size, lo.Price))
			return ob.record(trades, lo.Price, remMarket, mo.Side)
		}
	}
}

func (ob *OrderBook) record(trades []Trade, price, size int64, aggressor Side) []Trade {
	t := Trade{Price: price, Size: size, AggressorSide: aggressor, Timestamp: ob.now()}
	if ob.onTrade != nil {
		ob.onTrade(t)
	}
	return append(trades, t)
}

func (ob *OrderBook) side(s Side) *bookSide {
	if s == Bid {
		return ob.bids
	}
	return ob.asks
}

// LevelCount returns the number of price levels resting on side.
func (ob *OrderBook) LevelCount(side Side) int {
	return ob.side(side).len()
}

// OrderView is a read-only copy of a resting order.
type OrderView struct {
	Size     int64     `json:"size"`
	Filled   int64     `json:"filled"`
	ClientID string    `json:"client_id,omitempty"`
	PlacedAt time.Time `json:"placed_at"`
}

// LevelView is a read-only copy of a price level.
type LevelView struct {
	Price  int64       `json:"price"`
	Orders []OrderView `json:"orders"`
}

// BookSnapshot lists both sides, best price first.
type BookSnapshot struct {
	Bids []LevelView `json:"bids"`
	Asks []LevelView `json:"asks"`
}

// Snapshot copies the book.
func (ob *OrderBook) Snapshot() BookSnapshot {
	return BookSnapshot{
		Bids: ob.levels(ob.bids),
		Asks: ob.levels(ob.asks),
	}
}

func (ob *OrderBook) levels(s *bookSide) []LevelView {
	views := make([]LevelView, 0, s.len())
	s.walk(func(level *PriceLevel) bool {
		view := LevelView{Price: level.Price, Orders: make([]OrderView, 0, level.Len())}
		level.each(func(o LimitOrder) {
			ov := OrderView{Size: o.Size, Filled: o.Filled, PlacedAt: o.Timestamp}
			if o.Client != nil {
				ov.ClientID = o.Client.ID()
			}
			view.Orders = append(view.Orders, ov)
		})
		views = append(views, view)
		return true
	})
	return views
}

// String renders a human-readable dump of the book for debugging.
func (ob *OrderBook) String() string {
	var b strings.Builder
	b.WriteString("OrderBook:\n")
	for _, s := range []*bookSide{ob.bids, ob.asks} {
		if s.side == Bid {
			b.WriteString("Bids:\n")
		} else {
			b.WriteString("Asks:\n")
		}
		s.walk(func(level *PriceLevel) bool {
			fmt.Fprintf(&b, "  %d ->", level.Price)
			level.each(func(o LimitOrder) {
				b.WriteString(" ")
				b.WriteString(o.String())
			})
			b.WriteString("\n")
			return true
		})
	}
	return b.String()
}
