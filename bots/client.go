package bots

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"venue/protocol"
)

const notificationBuffer = 256

// ThrottledClient is one TCP connection to the venue with basic rate limiting.
type ThrottledClient struct {
	conn     net.Conn
	throttle <-chan time.Time
	ref      *PriceReference

	mu    sync.Mutex
	w     *bufio.Writer
	notes chan string
}

// DialThrottled connects to the gateway at addr. Sends wait for a tick on throttle
// when it is non-nil.
func DialThrottled(ctx context.Context, addr string, throttle <-chan time.Time, ref *PriceReference) (*ThrottledClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial venue %s: %w", addr, err)
	}
	c := &ThrottledClient{
		conn:     conn,
		throttle: throttle,
		ref:      ref,
		w:        bufio.NewWriter(conn),
		notes:    make(chan string, notificationBuffer),
	}
	go c.readLoop()
	return c, nil
}

func (c *ThrottledClient) readLoop() {
	defer close(c.notes)
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		c.notes <- scanner.Text()
	}
}

func (c *ThrottledClient) waitThrottle(ctx context.Context) error {
	if c.throttle == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.throttle:
		return nil
	}
}

func (c *ThrottledClient) Send(ctx context.Context, cmd protocol.Command) error {
	if err := c.waitThrottle(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.WriteString(cmd.String() + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// Notifications yields venue lines until the connection closes. The caller must
// keep draining it.
func (c *ThrottledClient) Notifications() <-chan string {
	return c.notes
}

func (c *ThrottledClient) Reference() int64 {
	return c.ref.Load()
}

func (c *ThrottledClient) Close() error {
	return c.conn.Close()
}
