package feed

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const defaultDialTimeout = 2 * time.Second

// ShowcaseSink writes one "<price>\n" line per trade to a TCP listener such as a
// price display. It dials on first use and redials after a failed write.
type ShowcaseSink struct {
	addr        string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewShowcaseSink targets the display listening on addr.
func NewShowcaseSink(addr string) *ShowcaseSink {
	return &ShowcaseSink{addr: addr, dialTimeout: defaultDialTimeout}
}

func (s *ShowcaseSink) Name() string { return "showcase" }

func (s *ShowcaseSink) Send(ctx context.Context, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		d := net.Dialer{Timeout: s.dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return fmt.Errorf("dial showcase %s: %w", s.addr, err)
		}
		s.conn = conn
	}

	line := strconv.AppendInt(nil, price, 10)
	line = append(line, '\n')
	if _, err := s.conn.Write(line); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("write showcase %s: %w", s.addr, err)
	}
	return nil
}

func (s *ShowcaseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
