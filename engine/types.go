package engine

import (
	"errors"
	"fmt"
	"time"
)

// Side represents the direction of an order.
type Side int

const (
	// Bid indicates buy interest.
	Bid Side = iota
	// Ask indicates sell interest.
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the side an order on s trades against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// Kind is the execution style requested at the ingestion boundary.
type Kind int

const (
	// Limit orders rest on the book until filled.
	Limit Kind = iota
	// Market orders consume available liquidity immediately and never rest.
	Market
)

func (k Kind) String() string {
	if k == Limit {
		return "limit"
	}
	return "market"
}

var (
	// ErrInvalidSize is returned for non-positive order sizes.
	ErrInvalidSize = errors.New("order size must be positive")
	// ErrInvalidPrice is returned for non-positive limit prices.
	ErrInvalidPrice = errors.New("limit price must be positive")
	// ErrUnknownKind is returned for order kinds the book cannot handle.
	ErrUnknownKind = errors.New("unknown order kind")
	// ErrStopped is returned when submitting to an engine that has shut down.
	ErrStopped = errors.New("engine stopped")
)

// LimitOrder rests in the book until Filled reaches Size.
type LimitOrder struct {
	Timestamp time.Time
	Size      int64
	Filled    int64
	Side      Side
	Price     int64 // in ticks
	Client    *Client
}

// Remaining is the quantity still open.
func (o LimitOrder) Remaining() int64 {
	return o.Size - o.Filled
}

func (o LimitOrder) String() string {
	return fmt.Sprintf("[%d/%d %s]", o.Filled, o.Size, o.Client.label())
}

// MarketOrder consumes resting liquidity and is discarded after one matching pass.
type MarketOrder struct {
	Timestamp time.Time
	Size      int64
	Filled    int64
	Side      Side
	Client    *Client
}

// Remaining is the quantity still open.
func (o MarketOrder) Remaining() int64 {
	return o.Size - o.Filled
}

// OrderHandler receives an order dispatched by kind. Adding an order kind adds a
// method here, so every handler must be updated before the module compiles.
type OrderHandler interface {
	HandleLimit(LimitOrder)
	HandleMarket(MarketOrder)
}

// Order is either a LimitOrder or a MarketOrder.
type Order interface {
	Dispatch(OrderHandler)
	Kind() Kind
	OrderSide() Side
}

// Dispatch hands the order to h.HandleLimit.
func (o LimitOrder) Dispatch(h OrderHandler) { h.HandleLimit(o) }

// Kind reports Limit.
func (o LimitOrder) Kind() Kind { return Limit }

// OrderSide reports the order's side.
func (o LimitOrder) OrderSide() Side { return o.Side }

// Dispatch hands the order to h.HandleMarket.
func (o MarketOrder) Dispatch(h OrderHandler) { h.HandleMarket(o) }

// Kind reports Market.
func (o MarketOrder) Kind() Kind { return Market }

// OrderSide reports the order's side.
func (o MarketOrder) OrderSide() Side { return o.Side }

// NewOrder validates an ingestion request and builds the matching order value.
// Price is ignored for market orders.
func NewOrder(side Side, kind Kind, size, price int64, client *Client, ts time.Time) (Order, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	switch kind {
	case Limit:
		if price <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidPrice, price)
		}
		return LimitOrder{Timestamp: ts, Size: size, Side: side, Price: price, Client: client}, nil
	case Market:
		return MarketOrder{Timestamp: ts, Size: size, Side: side, Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// Trade captures one transaction between an aggressor and a resting order.
type Trade struct {
	Price         int64
	Size          int64
	AggressorSide Side
	Timestamp     time.Time
}
