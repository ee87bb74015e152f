package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"github.com/urfave/cli/v2"

	"venue/engine"
)

func runInproc(c *cli.Context) error {
	total := c.Int("orders")
	rng := rand.New(rand.NewSource(c.Int64("seed")))

	if path := c.String("cpuprofile"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	orders := make([]engine.Order, total)
	for i := range orders {
		orders[i] = nextRandomOrder(rng, c.Int64("base-price"), c.Int64("price-levels"), c.Int("market-ratio"))
	}

	eng := engine.NewEngine(engine.Config{}, nil, nil)
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()

	start := time.Now()
	for _, o := range orders {
		if err := eng.Submit(o); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
	}
	for eng.Stats().Orders < uint64(total) {
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(start)
	stats := eng.Stats()
	eng.Stop()
	<-done

	if path := c.String("memprofile"); path != "" {
		f, err := os.Create(path)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}

	fmt.Printf("applied %d orders in %s (%.0f orders/s)\n", total, elapsed.Truncate(time.Millisecond), float64(total)/elapsed.Seconds())
	fmt.Printf("executed %d trades, volume %d (%.0f trades/s)\n", stats.Trades, stats.Volume, float64(stats.Trades)/elapsed.Seconds())
	return nil
}

func nextRandomOrder(rng *rand.Rand, mid, width int64, marketRatio int) engine.Order {
	side := engine.Side(rng.Intn(2))
	qty := rng.Int63n(5) + 1

	if marketRatio > 0 && rng.Intn(marketRatio) == 0 {
		return engine.MarketOrder{Timestamp: time.Now(), Size: qty, Side: side}
	}

	// bids rest above the mid and asks below so market orders find both sides deep
	price := mid + rng.Int63n(width)
	if side == engine.Ask {
		price = mid - rng.Int63n(width)
	}
	if price <= 0 {
		price = 1
	}
	return engine.LimitOrder{Timestamp: time.Now(), Size: qty, Side: side, Price: price}
}
