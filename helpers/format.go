package helpers

import (
	"fmt"
	"strings"
)

// FormatPercent formats a fractional value as a signed percentage,
// e.g. 0.45 -> "+45.0%", -0.033 -> "-3.3%".
func FormatPercent(v float64) string {
	return fmt.Sprintf("%+.1f%%", v*100)
}

// FormatMultiplier formats a sizing multiplier, e.g. 1.93 -> "x1.93".
func FormatMultiplier(v float64) string {
	return fmt.Sprintf("x%.2f", v)
}

// FormatEdge formats an edge statistic with four decimals and an
// explicit sign so weak and strong edges read differently at a glance.
func FormatEdge(v float64) string {
	return fmt.Sprintf("%+.4f", v)
}

// FormatScope renders a canonical dim=value|dim=value scope for humans,
// e.g. "asset=BTC|timeframe=1h" -> "BTC 1h". An empty scope reads as
// "all contexts".
func FormatScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "all contexts"
	}
	parts := strings.Split(scope, "|")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if idx := strings.Index(p, "="); idx >= 0 {
			values = append(values, p[idx+1:])
		} else if p != "" {
			values = append(values, p)
		}
	}
	if len(values) == 0 {
		return "all contexts"
	}
	return strings.Join(values, " ")
}
