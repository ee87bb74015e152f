// Package bots runs simulated traders against a venue over its TCP gateway.
package bots

import (
	"context"

	"venue/protocol"
)

// Bot represents a trading agent that can be run under a supervisor.
type Bot interface {
	Name() string
	Start(ctx context.Context, client VenueClient)
}

// VenueClient abstracts the minimal surface bots need from a venue connection.
type VenueClient interface {
	Send(ctx context.Context, cmd protocol.Command) error
	Notifications() <-chan string
	// Reference is the price bots quote around: the last traded price seen by
	// the swarm, or the configured starting price.
	Reference() int64
}
