package binding

import (
	"fmt"
	"strconv"
	"strings"
)

// formatVolume formats a share count with comma separators.
func formatVolume(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatTurnover formats a traded value with Cr/L/K suffixes, the units
// used on Indian exchanges, or B/M/K for other markets.
func formatTurnover(v float64, indian bool) string {
	if indian {
		switch {
		case v >= 1e7:
			return fmt.Sprintf("%.2f Cr", v/1e7)
		case v >= 1e5:
			return fmt.Sprintf("%.2f L", v/1e5)
		}
	} else {
		switch {
		case v >= 1e9:
			return fmt.Sprintf("%.1fB", v/1e9)
		case v >= 1e6:
			return fmt.Sprintf("%.1fM", v/1e6)
		}
	}
	if v >= 1e3 {
		return fmt.Sprintf("%.1fK", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}

// formatPrice formats a price with two decimals, or "-" for zero.
func formatPrice(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}
