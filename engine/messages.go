package engine

import "fmt"

// Notification lines sent to clients.
const filledMsg = "Order filled!"

func partialFillMsg(filled, requested int64) string {
	return fmt.Sprintf("Order filled [%d/%d]", filled, requested)
}

func marketFillMsg(filled, requested, price int64) string {
	return fmt.Sprintf("Order filled [%d/%d] at %d", filled, requested, price)
}

func unfilledMsg(remainder, requested int64) string {
	return fmt.Sprintf("Unfilled [%d/%d]", remainder, requested)
}
