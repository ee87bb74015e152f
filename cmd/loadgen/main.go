package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	addrFlag := &cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", EnvVars: []string{"VENUE_ADDR"}, Usage: "venue order gateway"}
	seedFlag := &cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano(), Usage: "seed for deterministic random streams"}

	app := &cli.App{
		Name:  "loadgen",
		Usage: "drive order flow into the venue",
		Commands: []*cli.Command{
			{
				Name:  "inproc",
				Usage: "measure raw engine throughput without the network",
				Flags: []cli.Flag{
					seedFlag,
					&cli.IntFlag{Name: "orders", Value: 500000, Usage: "number of orders to submit"},
					&cli.Int64Flag{Name: "price-levels", Value: 200, Usage: "unique price levels around the mid"},
					&cli.Int64Flag{Name: "base-price", Value: 10000, Usage: "mid price used for randomization"},
					&cli.IntFlag{Name: "market-ratio", Value: 5, Usage: "1 in N orders will be market instead of limit"},
					&cli.StringFlag{Name: "cpuprofile", Usage: "write cpu profile to file"},
					&cli.StringFlag{Name: "memprofile", Usage: "write heap profile to file"},
				},
				Action: runInproc,
			},
			{
				Name:  "feeder",
				Usage: "send random limit orders, each on its own connection",
				Flags: []cli.Flag{
					addrFlag,
					seedFlag,
					&cli.IntFlag{Name: "orders", Value: 50},
					&cli.Int64Flag{Name: "min-price", Value: 80},
					&cli.Int64Flag{Name: "max-price", Value: 150},
					&cli.Int64Flag{Name: "max-qty", Value: 10},
				},
				Action: runFeeder,
			},
			{
				Name:  "burst",
				Usage: "fire market orders from several connections at once and print the replies",
				Flags: []cli.Flag{
					addrFlag,
					&cli.IntFlag{Name: "clients", Value: 2},
					&cli.StringFlag{Name: "side", Value: "sell"},
					&cli.Int64Flag{Name: "qty", Value: 10},
					&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second},
				},
				Action: runBurst,
			},
			{
				Name:  "bots",
				Usage: "run the simulated trader swarm",
				Flags: []cli.Flag{
					addrFlag,
					seedFlag,
					&cli.Int64Flag{Name: "start-price", Value: 100},
					&cli.DurationFlag{Name: "order-interval", Value: 20 * time.Millisecond},
					&cli.DurationFlag{Name: "duration", Value: 10 * time.Second},
					&cli.StringFlag{Name: "log-level", Value: "info"},
				},
				Action: runBots,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
