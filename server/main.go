// Command server runs the order-book venue: a line-oriented TCP order gateway, an
// admin HTTP API and the optional trade-price sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"venue/engine"
	"venue/feed"
	"venue/logging"
)

const sinkBuffer = 1024

func main() {
	app := &cli.App{
		Name:  "server",
		Usage: "single-book limit order venue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: "127.0.0.1:8080", EnvVars: []string{"LISTEN_ADDR"}, Usage: "order gateway address"},
			&cli.StringFlag{Name: "http-listen", Value: "127.0.0.1:8081", EnvVars: []string{"HTTP_ADDR"}, Usage: "admin API address, empty disables"},
			&cli.IntFlag{Name: "client-buffer", Value: engine.DefaultClientBuffer, EnvVars: []string{"CLIENT_BUFFER"}, Usage: "per-connection outbound buffer"},
			&cli.BoolFlag{Name: "dump-book", EnvVars: []string{"DUMP_BOOK"}, Usage: "log the book at debug level after every order"},
			&cli.StringFlag{Name: "showcase-addr", EnvVars: []string{"SHOWCASE_ADDR"}, Usage: "TCP price display, e.g. 127.0.0.1:9000"},
			&cli.StringFlag{Name: "kafka-brokers", EnvVars: []string{"KAFKA_BROKERS"}, Usage: "comma separated Kafka brokers for the price feed"},
			&cli.StringFlag{Name: "kafka-topic", Value: "trade-prices", EnvVars: []string{"KAFKA_TOPIC"}},
			&cli.StringFlag{Name: "nats-url", EnvVars: []string{"NATS_URL"}, Usage: "NATS server for the price feed"},
			&cli.StringFlag{Name: "nats-subject", Value: "venue.prices", EnvVars: []string{"NATS_SUBJECT"}},
			&cli.StringFlag{Name: "admin-token", EnvVars: []string{"AUTH_TOKEN"}, Usage: "bearer token required by the admin API"},
			&cli.StringFlag{Name: "cors-origin", Value: "*", EnvVars: []string{"CORS_ORIGIN"}},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LOG_LEVEL"}},
			&cli.BoolFlag{Name: "log-dev", EnvVars: []string{"LOG_DEV"}, Usage: "human readable logs"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := logging.New(c.String("log-level"), c.Bool("log-dev"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	prices := feed.NewPrices()
	eng := engine.NewEngine(engine.Config{DumpBook: c.Bool("dump-book")}, prices, logger.Named("engine"))

	sinks, err := buildSinks(c, logger.Named("feed"))
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", c.String("listen"))
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.String("listen"), err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("engine stopped", "error", err)
		}
	}()

	for _, sink := range sinks {
		wg.Add(1)
		go func(s feed.Sink) {
			defer wg.Done()
			feed.Forward(ctx, prices.Hub, s, sinkBuffer, logger.Named("feed"))
		}(sink)
	}

	var httpSrv *http.Server
	if addr := c.String("http-listen"); addr != "" {
		gin.SetMode(gin.ReleaseMode)
		httpSrv = &http.Server{
			Addr:    addr,
			Handler: newAdminAPI(adminConfig{
				authToken:  c.String("admin-token"),
				corsOrigin: c.String("cors-origin"),
			}, eng, prices, logger.Named("http")).routes(),
		}
		go func() {
			logger.Infow("admin API listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("admin API failed", "error", err)
			}
		}()
	}

	sessions := newSessionServer(eng, c.Int("client-buffer"), logger.Named("session"))
	serveErr := sessions.serve(ctx, ln)
	if serveErr != nil {
		logger.Errorw("order gateway failed", "error", serveErr)
		stop()
	}

	logger.Infow("shutting down")
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("admin API shutdown", "error", err)
		}
		cancel()
	}
	eng.Stop()
	wg.Wait()

	stats := eng.Stats()
	logger.Infow("session totals",
		"orders", stats.Orders,
		"trades", stats.Trades,
		"volume", stats.Volume,
		"elapsed", stats.Elapsed.String(),
		"trades_per_second", fmt.Sprintf("%.2f", stats.TradesPerSecond),
	)
	return serveErr
}

func buildSinks(c *cli.Context, logger *zap.SugaredLogger) ([]feed.Sink, error) {
	var sinks []feed.Sink
	if addr := c.String("showcase-addr"); addr != "" {
		sinks = append(sinks, feed.NewShowcaseSink(addr))
	}
	if brokers := c.String("kafka-brokers"); brokers != "" {
		sinks = append(sinks, feed.NewKafkaSink(splitList(brokers), c.String("kafka-topic")))
	}
	if url := c.String("nats-url"); url != "" {
		sink, err := feed.NewNATSSink(url, c.String("nats-subject"), logger)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
