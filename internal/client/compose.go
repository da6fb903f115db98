package client

import "fmt"

// ComposeTradeMessage builds the text message that seeds a fresh chat, e.g.
// "I want to trade 50$ of Bitcoin".
func ComposeTradeMessage(amount int, categoryTitle string) string {
	return fmt.Sprintf("I want to trade %d$ of %s", amount, categoryTitle)
}
