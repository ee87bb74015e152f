// Package protocol parses the line-oriented order commands clients send.
//
//	buy|sell market <qty>
//	buy|sell limit <price> <qty>
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"venue/engine"
)

var (
	ErrEmpty       = errors.New("empty command")
	ErrUnknownSide = errors.New("invalid side: choose 'buy' or 'sell'")
	ErrUnknownKind = errors.New("invalid order type: choose 'market' or 'limit'")
	ErrArgCount    = errors.New("wrong number of arguments")
	ErrBadNumber   = errors.New("invalid number")
	ErrLineTooLong = errors.New("line too long")
)

// Command is a parsed client request.
type Command struct {
	Side  engine.Side
	Kind  engine.Kind
	Price int64 // zero for market orders
	Size  int64
}

// Parse reads one command line. Tokens are case-insensitive.
func Parse(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, ErrEmpty
	}
	if len(parts) < 3 {
		return Command{}, fmt.Errorf("%w: got %d", ErrArgCount, len(parts))
	}

	var cmd Command
	switch strings.ToLower(parts[0]) {
	case "buy":
		cmd.Side = engine.Bid
	case "sell":
		cmd.Side = engine.Ask
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownSide, parts[0])
	}

	var err error
	switch strings.ToLower(parts[1]) {
	case "market":
		if len(parts) != 3 {
			return Command{}, fmt.Errorf("%w: format is buy/sell market <qty>", ErrArgCount)
		}
		cmd.Kind = engine.Market
		if cmd.Size, err = parsePositive("quantity", parts[2]); err != nil {
			return Command{}, err
		}
	case "limit":
		if len(parts) != 4 {
			return Command{}, fmt.Errorf("%w: format is buy/sell limit <price> <qty>", ErrArgCount)
		}
		cmd.Kind = engine.Limit
		if cmd.Price, err = parsePositive("price", parts[2]); err != nil {
			return Command{}, err
		}
		if cmd.Size, err = parsePositive("quantity", parts[3]); err != nil {
			return Command{}, err
		}
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownKind, parts[1])
	}
	return cmd, nil
}

func parsePositive(field, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrBadNumber, field, s)
	}
	return v, nil
}

// String renders the canonical command line, without the trailing newline.
func (c Command) String() string {
	side := "buy"
	if c.Side == engine.Ask {
		side = "sell"
	}
	if c.Kind == engine.Market {
		return fmt.Sprintf("%s market %d", side, c.Size)
	}
	return fmt.Sprintf("%s limit %d %d", side, c.Price, c.Size)
}

// Order builds the engine order owned by client.
func (c Command) Order(client *engine.Client, ts time.Time) (engine.Order, error) {
	return engine.NewOrder(c.Side, c.Kind, c.Size, c.Price, client, ts)
}

// Reason maps a parse error to a short label for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, ErrUnknownSide):
		return "side"
	case errors.Is(err, ErrUnknownKind):
		return "kind"
	case errors.Is(err, ErrArgCount):
		return "arity"
	case errors.Is(err, ErrBadNumber):
		return "number"
	case errors.Is(err, ErrLineTooLong):
		return "length"
	default:
		return "other"
	}
}
