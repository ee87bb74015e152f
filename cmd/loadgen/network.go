package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"venue/bots"
	"venue/engine"
	"venue/logging"
	"venue/protocol"
)

func sendOne(ctx context.Context, addr string, cmd protocol.Command) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "%s\n", cmd)
	return err
}

func runFeeder(c *cli.Context) error {
	rng := rand.New(rand.NewSource(c.Int64("seed")))
	minPrice, maxPrice := c.Int64("min-price"), c.Int64("max-price")
	if minPrice <= 0 || maxPrice < minPrice {
		return fmt.Errorf("invalid price range %d..%d", minPrice, maxPrice)
	}
	maxQty := c.Int64("max-qty")
	if maxQty <= 0 {
		return fmt.Errorf("invalid max-qty %d", maxQty)
	}

	for i := 0; i < c.Int("orders"); i++ {
		side := engine.Bid
		if rng.Intn(2) == 1 {
			side = engine.Ask
		}
		cmd := protocol.Command{
			Side:  side,
			Kind:  engine.Limit,
			Price: minPrice + rng.Int63n(maxPrice-minPrice+1),
			Size:  rng.Int63n(maxQty) + 1,
		}
		if err := sendOne(c.Context, c.String("addr"), cmd); err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
		fmt.Printf("Sent: %s\n", cmd)
	}
	return nil
}

// runBurst sends one market order per connection at the same instant and prints
// each reply until the order is fully accounted for.
func runBurst(c *cli.Context) error {
	cmd, err := protocol.Parse(fmt.Sprintf("%s market %d", c.String("side"), c.Int64("qty")))
	if err != nil {
		return err
	}
	addr := c.String("addr")
	deadline := time.Now().Add(c.Duration("timeout"))

	conns := make([]net.Conn, c.Int("clients"))
	for i := range conns {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		conns[i] = conn
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	start := make(chan struct{})
	for i, conn := range conns {
		i, conn := i, conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := burstOne(i, conn, cmd, deadline); err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	return first
}

func burstOne(id int, conn net.Conn, cmd protocol.Command, deadline time.Time) error {
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return err
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	r := bufio.NewReader(conn)
	var accounted int64
	for accounted < cmd.Size {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("client %d: %w", id, err)
		}
		fmt.Printf("client %d: %s", id, line)
		note := protocol.ParseNote(line)
		switch note.Kind {
		case protocol.NoteExecution, protocol.NoteUnfilled:
			accounted += note.Qty
		case protocol.NoteError:
			return fmt.Errorf("client %d: %s", id, note.Reason)
		}
	}
	return nil
}

func runBots(c *cli.Context) error {
	logger, err := logging.New(c.String("log-level"), true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
	defer cancel()

	sup := bots.NewSupervisor(bots.Config{
		Addr:          c.String("addr"),
		StartPrice:    c.Int64("start-price"),
		OrderInterval: c.Duration("order-interval"),
		Seed:          c.Int64("seed"),
	}, logger.Named("bots"))
	stats, err := sup.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("executions=%d volume=%d filled=%d partial=%d unfilled=%d last=%d\n",
		stats.Executions, stats.Volume, stats.Filled, stats.Partial, stats.Unfilled, stats.LastPrice)
	return nil
}
