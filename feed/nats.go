package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSSink publishes each traded price on a subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url. Disconnects are retried by the client library.
func NewNATSSink(url, subject string, logger *zap.SugaredLogger) (*NATSSink, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts := []nats.Option{
		nats.Name("venue-price-feed"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (n *NATSSink) Name() string { return "nats" }

func (n *NATSSink) Send(_ context.Context, price int64) error {
	if err := n.conn.Publish(n.subject, []byte(strconv.FormatInt(price, 10))); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATSSink) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
