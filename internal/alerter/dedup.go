package alerter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DedupStrategy decides which alerts collapse onto the same store entry
type DedupStrategy string

const (
	// DedupNone never suppresses anything
	DedupNone DedupStrategy = "none"
	// DedupMessageWindow keys on the message text alone
	DedupMessageWindow DedupStrategy = "message_window"
	// DedupCategorySymbolWindow keys on category, symbol and message
	DedupCategorySymbolWindow DedupStrategy = "category_symbol_window"
)

const anySymbol = "*"

// ParseDedupStrategy accepts the strategy names case-insensitively.
// An empty value selects the default.
func ParseDedupStrategy(value string) (DedupStrategy, error) {
	switch DedupStrategy(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return DedupCategorySymbolWindow, nil
	case DedupNone:
		return DedupNone, nil
	case DedupMessageWindow:
		return DedupMessageWindow, nil
	case DedupCategorySymbolWindow:
		return DedupCategorySymbolWindow, nil
	}
	return "", fmt.Errorf("unknown dedup strategy %q", value)
}

// dedupKey maps a request to its store key
func dedupKey(strategy DedupStrategy, req Request, unique func() string) string {
	message := strings.ToLower(req.Message)
	switch strategy {
	case DedupNone:
		return "none|" + unique()
	case DedupMessageWindow:
		return "msg|" + message
	default:
		symbol := req.Symbol
		if symbol == "" {
			symbol = anySymbol
		}
		return req.Category + "|" + symbol + "|" + message
	}
}

func newUniqueID() string {
	return uuid.NewString()
}
