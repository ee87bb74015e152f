// Package engine implements the single-book matching engine: limit orders rest in
// price-time priority, market orders consume them, and one goroutine owns the book
// while any number of sessions submit orders and receive fill notifications.
package engine
