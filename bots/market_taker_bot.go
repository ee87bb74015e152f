package bots

import (
	"context"
	"math/rand"
	"time"

	"venue/engine"
	"venue/protocol"
)

// MarketTakerBot lifts whatever rests on a random side with small market orders.
type MarketTakerBot struct {
	Interval    time.Duration
	MaxQuantity int64
	rand        *rand.Rand
}

func NewMarketTakerBot(seed int64) *MarketTakerBot {
	return &MarketTakerBot{
		Interval:    350 * time.Millisecond,
		MaxQuantity: 4,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

func (b *MarketTakerBot) Name() string { return "market-taker" }

func (b *MarketTakerBot) Start(ctx context.Context, client VenueClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Send(ctx, b.next()); err != nil {
				return
			}
		}
	}
}

func (b *MarketTakerBot) next() protocol.Command {
	return protocol.Command{
		Side: engine.Side(b.rand.Intn(2)),
		Kind: engine.Market,
		Size: quantity(b.rand, b.MaxQuantity),
	}
}
