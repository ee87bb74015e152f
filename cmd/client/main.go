// Command client is an interactive terminal for placing orders on the venue.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	"venue/protocol"
)

const prompt = "orderbook> "

const usage = `Commands:
  buy|sell market <qty>
  buy|sell limit <price> <qty>
  help
  quit`

func main() {
	app := &cli.App{
		Name:  "client",
		Usage: "interactive order entry",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", EnvVars: []string{"VENUE_ADDR"}},
		},
		Action: func(c *cli.Context) error {
			conn, err := net.Dial("tcp", c.String("addr"))
			if err != nil {
				return fmt.Errorf("connect %s: %w", c.String("addr"), err)
			}
			defer conn.Close()
			fmt.Printf("connected to %s\n%s\n", c.String("addr"), usage)
			return session(os.Stdin, os.Stdout, conn)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session validates each input line locally before sending it and echoes every
// line the venue sends back. It returns when in is exhausted, the user quits or
// the venue hangs up.
func session(in io.Reader, out io.Writer, conn net.Conn) error {
	var mu sync.Mutex
	printf := func(format string, args ...interface{}) {
		mu.Lock()
		fmt.Fprintf(out, format, args...)
		mu.Unlock()
	}

	serverGone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			printf("\n%s\n%s", scanner.Text(), prompt)
		}
		serverGone <- scanner.Err()
		close(serverGone)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	printf(prompt)
	for {
		select {
		case err := <-serverGone:
			if err == nil || errors.Is(err, net.ErrClosed) {
				return errors.New("venue closed the connection")
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "":
				printf(prompt)
				continue
			case "quit", "exit":
				return nil
			case "help":
				printf("%s\n%s", usage, prompt)
				continue
			}
			cmd, err := protocol.Parse(line)
			if err != nil {
				printf("Error: %v\n%s", err, prompt)
				continue
			}
			if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			printf(prompt)
		}
	}
}
