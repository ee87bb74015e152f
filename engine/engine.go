package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"venue/metrics"
)

// PriceFeed receives the price of every executed trade. Implementations must not
// block.
type PriceFeed interface {
	Broadcast(price int64)
}

// Config controls the engine loop.
type Config struct {
	// DumpBook logs the full book at debug level after every order.
	DumpBook bool
}

// Stats summarizes engine activity since it was created.
// drainBatch bounds how many orders Run applies before serving queued queries.
const drainBatch = 256

type Stats struct {
	Orders          uint64        `json:"orders"`
	Trades          uint64        `json:"trades"`
	Volume          uint64        `json:"volume"`
	Elapsed         time.Duration `json:"elapsed"`
	TradesPerSecond float64       `json:"trades_per_second"`
}

// Engine owns the order book. Orders from any number of goroutines are queued on
// one unbounded mailbox and applied by the single goroutine running Run, so the
// book is never mutated concurrently.
type Engine struct {
	cfg   Config
	book  *OrderBook
	inbox *mailbox[Order]
	query chan func(*OrderBook)
	feed  PriceFeed
	log   *zap.SugaredLogger

	orders  atomic.Uint64
	trades  atomic.Uint64
	volume  atomic.Uint64
	started atomic.Int64 // unix nanos when Run began, zero before

	done     chan struct{}
	stopOnce sync.Once
}

// NewEngine builds an engine publishing trade prices on feed (may be nil).
func NewEngine(cfg Config, feed PriceFeed, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		cfg:   cfg,
		inbox: newMailbox[Order](),
		query: make(chan func(*OrderBook)),
		feed:  feed,
		log:   logger,
		done:  make(chan struct{}),
	}
	e.book = NewOrderBook(e.onTrade)
	return e
}

// Submit queues an order for matching. It never blocks.
func (e *Engine) Submit(o Order) error {
	if !e.inbox.Push(o) {
		return ErrStopped
	}
	metrics.InboxDepth.Set(float64(e.inbox.Len()))
	return nil
}

// Run applies queued orders until ctx is canceled or Stop is called. It must be
// called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.started.Store(time.Now().UnixNano())
	e.log.Infow("matching engine started")
	defer e.log.Infow("matching engine stopped")

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-e.done:
			return nil
		case fn := <-e.query:
			fn(e.book)
		case <-e.inbox.Ready():
			if err := e.drain(ctx); err != nil {
				e.shutdown()
				return err
			}
		}
	}
}

// drain applies up to drainBatch orders. If more remain, the inbox is
// re-signalled so Run comes back after giving queries a turn.
func (e *Engine) drain(ctx context.Context) error {
	for i := 0; i < drainBatch; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, ok := e.inbox.TryPop()
		if !ok {
			metrics.InboxDepth.Set(0)
			return nil
		}
		e.apply(o)
	}
	metrics.InboxDepth.Set(float64(e.inbox.Len()))
	e.inbox.signal()
	return nil
}

func (e *Engine) apply(o Order) {
	e.orders.Add(1)
	metrics.OrdersTotal.WithLabelValues(o.Kind().String(), o.OrderSide().String()).Inc()

	o.Dispatch(applier{e})

	metrics.BookLevels.WithLabelValues(Bid.String()).Set(float64(e.book.LevelCount(Bid)))
	metrics.BookLevels.WithLabelValues(Ask.String()).Set(float64(e.book.LevelCount(Ask)))

	if e.cfg.DumpBook {
		e.log.Debug(e.book.String())
	}
}

// applier routes orders into the book on behalf of the engine goroutine.
type applier struct{ e *Engine }

func (a applier) HandleLimit(o LimitOrder) {
	a.e.book.Insert(o)
}

func (a applier) HandleMarket(o MarketOrder) {
	var filled int64
	for _, t := range a.e.book.Match(o) {
		filled += t.Size
	}
	if filled < o.Size {
		metrics.UnfilledTotal.Inc()
		a.e.log.Debugw("market order ran out of liquidity",
			"side", o.Side, "size", o.Size, "filled", filled, "client", o.Client.label())
	}
}

func (e *Engine) onTrade(t Trade) {
	e.trades.Add(1)
	e.volume.Add(uint64(t.Size))
	metrics.TradesTotal.Inc()
	metrics.TradedVolume.Add(float64(t.Size))
	if e.feed != nil {
		e.feed.Broadcast(t.Price)
	}
}

// Snapshot copies the book from inside the engine goroutine.
func (e *Engine) Snapshot(ctx context.Context) (BookSnapshot, error) {
	var snap BookSnapshot
	err := e.inspect(ctx, func(ob *OrderBook) { snap = ob.Snapshot() })
	return snap, err
}

// Dump renders the book from inside the engine goroutine.
func (e *Engine) Dump(ctx context.Context) (string, error) {
	var out string
	err := e.inspect(ctx, func(ob *OrderBook) { out = ob.String() })
	return out, err
}

// BestPrice reports the best opposite price for an order on side.
func (e *Engine) BestPrice(ctx context.Context, side Side) (int64, bool, error) {
	var (
		price int64
		ok    bool
	)
	err := e.inspect(ctx, func(ob *OrderBook) { price, ok = ob.BestPrice(side) })
	return price, ok, err
}

func (e *Engine) inspect(ctx context.Context, fn func(*OrderBook)) error {
	finished := make(chan struct{})
	wrapped := func(ob *OrderBook) {
		fn(ob)
		close(finished)
	}
	select {
	case e.query <- wrapped:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Stats reports throughput counters. Elapsed is measured from the start of Run
// and is zero before it.
func (e *Engine) Stats() Stats {
	var elapsed time.Duration
	if started := e.started.Load(); started != 0 {
		elapsed = time.Since(time.Unix(0, started))
	}
	trades := e.trades.Load()
	stats := Stats{
		Orders:  e.orders.Load(),
		Trades:  trades,
		Volume:  e.volume.Load(),
		Elapsed: elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.TradesPerSecond = float64(trades) / secs
	}
	return stats
}

// Stop terminates Run and rejects further submissions.
func (e *Engine) Stop() {
	e.shutdown()
}

func (e *Engine) shutdown() {
	e.stopOnce.Do(func() {
		e.inbox.Close()
		close(e.done)
	})
}
