package bots

import (
	"context"
	"math/rand"
	"time"

	"venue/engine"
	"venue/protocol"
)

// RandomAskBot rests limit asks at or above the reference price.
type RandomAskBot struct {
	Interval    time.Duration
	MaxQuantity int64
	RangeTicks  int64
	rand        *rand.Rand
}

func NewRandomAskBot(seed int64) *RandomAskBot {
	return &RandomAskBot{
		Interval:    200 * time.Millisecond,
		MaxQuantity: 5,
		RangeTicks:  5,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

func (b *RandomAskBot) Name() string { return "random-ask" }

func (b *RandomAskBot) Start(ctx context.Context, client VenueClient) {
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

func (b *RandomAskBot) next(ref int64) protocol.Command {
	return protocol.Command{
		Side:  engine.Ask,
		Kind:  engine.Limit,
		Price: quote(b.rand, ref, b.RangeTicks, false),
		Size:  quantity(b.rand, b.MaxQuantity),
	}
}
