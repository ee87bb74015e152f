package bots

import (
	"context"
	"math/rand"
	"time"

	"venue/engine"
	"venue/protocol"
)

// RandomBidBot rests limit bids at or below the reference price.
type RandomBidBot struct {
	Interval    time.Duration
	MaxQuantity int64
	RangeTicks  int64
	rand        *rand.Rand
}

func NewRandomBidBot(seed int64) *RandomBidBot {
	return &RandomBidBot{
		Interval:    200 * time.Millisecond,
		MaxQuantity: 5,
		RangeTicks:  5,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

func (b *RandomBidBot) Name() string { return "random-bid" }

func (b *RandomBidBot) Start(ctx context.Context, client VenueClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Send(ctx, b.next(client.Reference())); err != nil {
				return
			}
		}
	}
}

func (b *RandomBidBot) next(ref int64) protocol.Command {
	return protocol.Command{
		Side:  engine.Bid,
		Kind:  engine.Limit,
		Price: quote(b.rand, ref, b.RangeTicks, true),
		Size:  quantity(b.rand, b.MaxQuantity),
	}
}
