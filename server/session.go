package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"venue/engine"
	"venue/metrics"
	"venue/protocol"
)

const maxLineBytes = 4096

type sessionServer struct {
	engine *engine.Engine
	buffer int
	log    *zap.SugaredLogger

	wg sync.WaitGroup
}

func newSessionServer(e *engine.Engine, buffer int, logger *zap.SugaredLogger) *sessionServer {
	return &sessionServer{engine: e, buffer: buffer, log: logger}
}

// serve accepts connections until ctx is canceled or the listener fails, then
// waits for open sessions to end.
func (s *sessionServer) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	defer s.wg.Wait()

	s.log.Infow("accepting order connections", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warnw("accept timeout", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *sessionServer) handle(ctx context.Context, conn net.Conn) {
	client := engine.NewClient(conn.RemoteAddr(), s.buffer, s.log)
	log := s.log.With("client", client.ID(), "addr", conn.RemoteAddr().String())

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	log.Infow("session opened")

	var once sync.Once
	end := func() {
		once.Do(func() {
			client.Close()
			_ = conn.Close()
		})
	}
	defer end()

	stop := context.AfterFunc(ctx, end)
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer end()
		s.write(conn, client, log)
	}()

	s.read(conn, client, log)
	end()
	<-writerDone
	log.Infow("session closed")
}

// read parses one command per line and submits it. Malformed lines are answered
// on the same client so the reply stays ordered with fill notifications.
func (s *sessionServer) read(conn net.Conn, client *engine.Client, log *zap.SugaredLogger) {
	r := bufio.NewReaderSize(conn, maxLineBytes)
	for {
		raw, readErr := readLine(r)
		if line := strings.TrimSpace(raw); line != "" || errors.Is(readErr, protocol.ErrLineTooLong) {
			if !s.apply(line, readErr, client, log) {
				return
			}
		}
		if readErr != nil && !errors.Is(readErr, protocol.ErrLineTooLong) {
			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, net.ErrClosed) {
				log.Debugw("read failed", "error", readErr)
			}
			return
		}
	}
}

// apply handles one input line. It reports false once the engine stops taking
// orders.
func (s *sessionServer) apply(line string, readErr error, client *engine.Client, log *zap.SugaredLogger) bool {
	cmd, err := protocol.Parse(line)
	if errors.Is(readErr, protocol.ErrLineTooLong) {
		err = readErr
	}
	if err != nil {
		metrics.RejectedCommands.WithLabelValues(protocol.Reason(err)).Inc()
		log.Debugw("rejected command", "bytes", len(line), "error", err)
		client.Notify("Error: " + err.Error())
		return true
	}
	order, err := cmd.Order(client, time.Now())
	if err != nil {
		metrics.RejectedCommands.WithLabelValues("order").Inc()
		client.Notify("Error: " + err.Error())
		return true
	}
	if err := s.engine.Submit(order); err != nil {
		log.Warnw("engine refused order", "command", cmd.String(), "error", err)
		return false
	}
	return true
}

// readLine returns the next line without its terminator. A line longer than the
// reader's buffer is consumed up to its newline and reported as
// protocol.ErrLineTooLong. A final unterminated line is returned with the read
// error.
func readLine(r *bufio.Reader) (string, error) {
	b, err := r.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return strings.TrimSuffix(string(b), "\n"), err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.ReadSlice('\n')
	}
	if err != nil {
		return "", err
	}
	return "", protocol.ErrLineTooLong
}

func (s *sessionServer) write(conn net.Conn, client *engine.Client, log *zap.SugaredLogger) {
	w := bufio.NewWriter(conn)
	out := client.Outbound()
	for msg := range out {
		if _, err := w.WriteString(msg + "\n"); err != nil {
			log.Debugw("write failed", "error", err)
			return
		}
		// batch whatever is already queued before flushing
		if len(out) > 0 {
			continue
		}
		if err := w.Flush(); err != nil {
			log.Debugw("write failed", "error", err)
			return
		}
	}
}
