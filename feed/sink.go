package feed

import (
	"context"

	"go.uber.org/zap"

	"venue/metrics"
)

// Sink delivers traded prices to something outside the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, price int64) error
	Close() error
}

// Forward subscribes to hub and pushes every price into sink until ctx is done.
// Failed sends are logged and counted, then skipped. The sink is closed on return.
func Forward(ctx context.Context, hub *Hub[int64], sink Sink, buffer int, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	log := logger.With("sink", sink.Name())

	sub := hub.Subscribe(buffer)
	defer hub.Unsubscribe(sub)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warnw("closing sink", "error", err)
		}
	}()

	log.Infow("forwarding trade prices")
	for {
		select {
		case <-ctx.Done():
			return
		case price, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sink.Send(ctx, price); err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.PricesDropped.WithLabelValues(sink.Name()).Inc()
				log.Warnw("price not delivered", "price", price, "error", err)
			}
		}
	}
}
