package service

import (
	"fmt"
	"strings"
)

// Callback names carried in inline button data as "name:arg:arg".
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionBuy     = "buy"
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionMenu    = "menu"
	ActionSell    = "sell"
	ActionBrowse  = "browse"
	ActionPage    = "page"
	ActionCard    = "card"
)

func ActionData(name string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

// DeepLink is the start payload that opens a listing card.
func DeepLink(botUsername string, listingID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=listing_%d", botUsername, listingID)
}
