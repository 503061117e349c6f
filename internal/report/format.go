package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const notAvailable = "N/A"

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
}

// formatMillis formats a trend value recorded in milliseconds.
func formatMillis(v *float64) string {
	if v == nil {
		return notAvailable
	}
	ms := *v
	switch {
	case ms >= 60000:
		return fmt.Sprintf("%.2fm", ms/60000)
	case ms >= 1000:
		return fmt.Sprintf("%.2fs", ms/1000)
	case ms >= 1 || ms == 0:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.2fµs", ms*1000)
	}
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := strconv.FormatInt(n, 10)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes float64) string {
	const (
		KB = 1000
		MB = KB * 1000
		GB = MB * 1000
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", bytes/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", bytes/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f kB", bytes/KB)
	default:
		return fmt.Sprintf("%.0f B", bytes)
	}
}

func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// formatValue formats a threshold's actual value.
func formatValue(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(math.Round(*v*100)/100, 'f', -1, 64)
}
