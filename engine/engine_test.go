package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type priceRecorder struct {
	mu     sync.Mutex
	prices []int64
}

func (r *priceRecorder) Broadcast(price int64) {
	r.mu.Lock()
	r.prices = append(r.prices, price)
	r.mu.Unlock()
}

func (r *priceRecorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.prices...)
}

func startEngine(t *testing.T, feed PriceFeed) *Engine {
	t.Helper()
	e := NewEngine(Config{DumpBook: true}, feed, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return e
}

func TestEngineAppliesOrdersAndPublishesPrices(t *testing.T) {
	feed := &priceRecorder{}
	e := startEngine(t, feed)
	maker := newTestClient(t, 1)
	taker := newTestClient(t, 2)

	require.NoError(t, e.Submit(limit(Ask, 101, 2, maker)))
	require.NoError(t, e.Submit(limit(Ask, 103, 2, maker)))
	require.NoError(t, e.Submit(market(Bid, 3, taker)))

	assert.Equal(t, "Order filled [2/3] at 101", recv(t, taker))
	assert.Equal(t, "Order filled [1/3] at 103", recv(t, taker))

	require.Eventually(t, func() bool { return len(feed.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{101, 103}, feed.snapshot())

	stats := e.Stats()
	assert.Equal(t, uint64(3), stats.Orders)
	assert.Equal(t, uint64(2), stats.Trades)
	assert.Equal(t, uint64(3), stats.Volume)
}

func TestEngineSnapshotAndBestPrice(t *testing.T) {
	e := startEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Submit(limit(Bid, 100, 5, nil)))
	require.NoError(t, e.Submit(limit(Bid, 105, 1, nil)))
	require.NoError(t, e.Submit(limit(Ask, 110, 2, nil)))

	require.Eventually(t, func() bool {
		snap, err := e.Snapshot(ctx)
		return err == nil && len(snap.Bids) == 2 && len(snap.Asks) == 1
	}, time.Second, 5*time.Millisecond)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(105), snap.Bids[0].Price)
	assert.Equal(t, int64(100), snap.Bids[1].Price)

	price, ok, err := e.BestPrice(ctx, Bid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(110), price)

	dump, err := e.Dump(ctx)
	require.NoError(t, err)
	assert.Contains(t, dump, "105 -> [0/1 -]")
}

func TestEngineConcurrentSubmitters(t *testing.T) {
	feed := &priceRecorder{}
	e := startEngine(t, feed)

	const sessions, perSession = 6, 200
	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				side := Side(i % 2)
				if s%2 == 0 {
					_ = e.Submit(limit(side, int64(100+i%5), 2, nil))
				} else {
					_ = e.Submit(market(side, 1, nil))
				}
			}
		}(s)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return e.Stats().Orders == sessions*perSession
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)

	var resting int64
	for _, levels := range [][]LevelView{snap.Bids, snap.Asks} {
		for _, l := range levels {
			require.NotEmpty(t, l.Orders)
			for _, o := range l.Orders {
				assert.Less(t, o.Filled, o.Size)
				resting += o.Size - o.Filled
			}
		}
	}
	stats := e.Stats()
	limitVolume := int64(sessions/2*perSession) * 2
	assert.Equal(t, limitVolume-int64(stats.Volume), resting)
	assert.Len(t, feed.snapshot(), int(stats.Trades))
}

func TestEngineStopRejectsSubmissions(t *testing.T) {
	e := NewEngine(Config{}, nil, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()

	e.Stop()
	require.NoError(t, <-errCh)

	assert.ErrorIs(t, e.Submit(market(Bid, 1, nil)), ErrStopped)
	_, err := e.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngineRunReturnsOnCancel(t *testing.T) {
	e := NewEngine(Config{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.ErrorIs(t, e.Submit(market(Bid, 1, nil)), ErrStopped)
}

func TestSlowClientDoesNotStallMatching(t *testing.T) {
	e := startEngine(t, nil)
	// never read: its sink fills after one message
	slow := NewClient(nil, 1, nil)
	defer slow.Close()
	fast := newTestClient(t, 9)

	for i := 0; i < 100; i++ {
		require.NoError(t, e.Submit(market(Bid, 1, slow)))
	}
	require.NoError(t, e.Submit(market(Bid, 1, fast)))

	assert.Equal(t, "Unfilled [1/1]", recv(t, fast))
}

func TestDrainYieldsBetweenBatches(t *testing.T) {
	e := NewEngine(Config{}, nil, nil)
	const queued = drainBatch*2 + 10
	for i := 0; i < queued; i++ {
		require.NoError(t, e.Submit(limit(Bid, int64(100+i%7), 1, nil)))
	}
	// consume the signal left by Submit
	<-e.inbox.Ready()

	require.NoError(t, e.drain(context.Background()))
	assert.Equal(t, uint64(drainBatch), e.Stats().Orders)
	assert.Equal(t, queued-drainBatch, e.inbox.Len())

	select {
	case <-e.inbox.Ready():
	default:
		t.Fatal("inbox not re-signalled with orders still queued")
	}
}

func TestEngineServesQueriesUnderLoad(t *testing.T) {
	e := NewEngine(Config{}, nil, nil)
	const queued = drainBatch * 40
	for i := 0; i < queued; i++ {
		require.NoError(t, e.Submit(limit(Ask, int64(200+i%11), 1, nil)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	var seen uint64
	require.NoError(t, e.inspect(ctx, func(*OrderBook) { seen = e.orders.Load() }))
	assert.Less(t, seen, uint64(queued))
}

func TestStatsClockStartsWithRun(t *testing.T) {
	e := NewEngine(Config{}, nil, nil)
	assert.Zero(t, e.Stats().Elapsed)
	assert.Zero(t, e.Stats().TradesPerSecond)

	time.Sleep(200 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	require.NoError(t, e.Submit(limit(Bid, 100, 1, nil)))
	require.Eventually(t, func() bool { return e.Stats().Orders == 1 }, time.Second, time.Millisecond)
	assert.Less(t, e.Stats().Elapsed, 200*time.Millisecond)
}
