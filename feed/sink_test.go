package feed

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	prices []int64
	failOn int64
	closed bool
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(_ context.Context, price int64) error {
	if price == r.failOn {
		return errors.New("rejected")
	}
	r.mu.Lock()
	r.prices = append(r.prices, price)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) state() ([]int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.prices...), r.closed
}

func TestForwardSkipsFailuresAndClosesSink(t *testing.T) {
	hub := NewHub[int64]()
	sink := &recordingSink{failOn: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Forward(ctx, hub, sink, 8, nil)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	for _, p := range []int64{1, 2, 3} {
		hub.Broadcast(p)
	}
	require.Eventually(t, func() bool {
		got, _ := sink.state()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	got, closed := sink.state()
	assert.Equal(t, []int64{1, 3}, got)
	assert.True(t, closed)
	assert.Zero(t, hub.Len())
}

func TestShowcaseSinkWritesLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	lines := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	sink := NewShowcaseSink(ln.Addr().String())
	defer sink.Close()

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, 101))
	require.NoError(t, sink.Send(ctx, 99))

	for _, want := range []string{"101", "99"} {
		select {
		case got := <-lines:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("showcase did not receive %s", want)
		}
	}
}

func TestShowcaseSinkReportsDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sink := NewShowcaseSink(addr)
	assert.Error(t, sink.Send(context.Background(), 1))
	assert.NoError(t, sink.Close())
}
