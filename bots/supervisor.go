package bots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"venue/protocol"
)

// Config describes a bot swarm.
type Config struct {
	Addr          string
	StartPrice    int64
	OrderInterval time.Duration // shared throttle across the swarm; zero disables
	Seed          int64
	LogEvery      time.Duration
}

// Supervisor orchestrates multiple bots, one venue connection each, and tallies
// the notifications they receive.
type Supervisor struct {
	cfg   Config
	bots  []Bot
	fills *fillTracker
	ref   *PriceReference
	log   *zap.SugaredLogger
}

// NewSupervisor builds the default swarm: two bid makers, two ask makers and a
// market taker.
func NewSupervisor(cfg Config, logger *zap.SugaredLogger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 2 * time.Second
	}
	bots := []Bot{
		NewRandomBidBot(cfg.Seed),
		NewRandomAskBot(cfg.Seed + 1),
		NewRandomBidBot(cfg.Seed + 2),
		NewRandomAskBot(cfg.Seed + 3),
		NewMarketTakerBot(cfg.Seed + 4),
	}
	return newSupervisor(cfg, bots, logger)
}

func newSupervisor(cfg Config, bots []Bot, logger *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		cfg:   cfg,
		bots:  bots,
		fills: &fillTracker{},
		ref:   NewPriceReference(cfg.StartPrice),
		log:   logger,
	}
}

// Run connects every bot and trades until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) (FillStats, error) {
	var throttle <-chan time.Time
	if s.cfg.OrderInterval > 0 {
		t := time.NewTicker(s.cfg.OrderInterval)
		defer t.Stop()
		throttle = t.C
	}

	clients := make([]*ThrottledClient, 0, len(s.bots))
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()
	for _, bot := range s.bots {
		c, err := DialThrottled(ctx, s.cfg.Addr, throttle, s.ref)
		if err != nil {
			return FillStats{}, fmt.Errorf("%s: %w", bot.Name(), err)
		}
		clients = append(clients, c)
	}

	var wg sync.WaitGroup
	for i, bot := range s.bots {
		bot := bot
		client := clients[i]
		wg.Add(2)
		go func() {
			defer wg.Done()
			bot.Start(ctx, client)
		}()
		go func() {
			defer wg.Done()
			s.consume(client)
		}()
	}

	logTicker := time.NewTicker(s.cfg.LogEvery)
	defer logTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, c := range clients {
				_ = c.Close()
			}
			wg.Wait()
			stats := s.fills.Snapshot()
			s.log.Infow("bot swarm finished", stats.fields()...)
			return stats, nil
		case <-logTicker.C:
			s.log.Infow("bot swarm", s.fills.Snapshot().fields()...)
		}
	}
}

func (s *Supervisor) consume(client VenueClient) {
	for line := range client.Notifications() {
		note := protocol.ParseNote(line)
		s.fills.Record(note)
		if note.Kind == protocol.NoteExecution {
			s.ref.Store(note.Price)
		}
		if note.Kind == protocol.NoteError || note.Kind == protocol.NoteUnknown {
			s.log.Warnw("unexpected venue reply", "line", line)
		}
	}
}

// FillStats tallies notifications received by the swarm.
type FillStats struct {
	Filled     int64 // resting orders fully filled
	Partial    int64 // resting orders partially filled
	Executions int64 // market order transactions
	Volume     int64 // quantity executed by market orders
	Unfilled   int64
	Errors     int64
	LastPrice  int64
}

func (f FillStats) fields() []interface{} {
	return []interface{}{
		"filled", f.Filled,
		"partial", f.Partial,
		"executions", f.Executions,
		"volume", f.Volume,
		"unfilled", f.Unfilled,
		"errors", f.Errors,
		"last_price", f.LastPrice,
	}
}

type fillTracker struct {
	mu    sync.Mutex
	stats FillStats
}

func (t *fillTracker) Record(n protocol.Note) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch n.Kind {
	case protocol.NoteFilled:
		t.stats.Filled++
	case protocol.NotePartial:
		t.stats.Partial++
	case protocol.NoteExecution:
		t.stats.Executions++
		t.stats.Volume += n.Qty
		t.stats.LastPrice = n.Price
	case protocol.NoteUnfilled:
		t.stats.Unfilled++
	default:
		t.stats.Errors++
	}
}

func (t *fillTracker) Snapshot() FillStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
