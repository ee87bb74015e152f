package engine

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"venue/metrics"
)

// DefaultClientBuffer is the outbound sink capacity used when none is configured.
const DefaultClientBuffer = 100

// Client is the notification capability shared by every order of one connection.
// Notify never blocks: messages are queued on an unbounded outbox and a pump
// goroutine moves them, in order, into the bounded Outbound channel read by the
// connection writer.
type Client struct {
	id   string
	addr net.Addr

	outbox *mailbox[string]
	out    chan string
	done   chan struct{}
	once   sync.Once
	log    *zap.SugaredLogger
}

// NewClient creates a handle for the peer at addr and starts its delivery pump.
func NewClient(addr net.Addr, buffer int, logger *zap.SugaredLogger) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		id:     uuid.NewString(),
		addr:   addr,
		outbox: newMailbox[string](),
		out:    make(chan string, buffer),
		done:   make(chan struct{}),
		log:    logger,
	}
	go c.pump()
	return c
}

// ID returns the session identifier.
func (c *Client) ID() string { return c.id }

// Addr returns the peer address.
func (c *Client) Addr() net.Addr { return c.addr }

// Outbound yields notifications in the order they were queued. It is closed when
// the client is closed.
func (c *Client) Outbound() <-chan string { return c.out }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Notify queues msg for delivery and returns immediately. It reports false if the
// client is already closed; the message is dropped.
func (c *Client) Notify(msg string) bool {
	if c == nil {
		return false
	}
	if !c.outbox.Push(msg) {
		metrics.NotificationsDropped.Inc()
		c.log.Debugw("notification dropped, client closed", "client", c.id, "addr", c.addrString(), "msg", msg)
		return false
	}
	return true
}

// Close stops delivery. Undelivered notifications are discarded.
func (c *Client) Close() {
	c.once.Do(func() {
		c.outbox.Close()
		close(c.done)
	})
}

func (c *Client) pump() {
	defer close(c.out)
	for {
		msg, ok := c.outbox.Pop(c.done)
		if !ok {
			return
		}
		select {
		case c.out <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) addrString() string {
	if c.addr == nil {
		return ""
	}
	return c.addr.String()
}

func (c *Client) label() string {
	if c == nil {
		return "-"
	}
	if c.addr != nil {
		return c.addr.String()
	}
	return c.id[:8]
}
