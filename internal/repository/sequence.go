// Package repository implements PostgreSQL persistence for the
// laboratory core: the parameter catalog, samples and their lifecycle
// transaction, test results, result-status overrides and consultant
// reviews.
package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	displayIDTag    = "WL"
	reportNumberTag = "RPT"
	sequenceWidth   = 4
)

// DisplayIDPrefix returns the yearly display-ID prefix, e.g. "WL2026-".
func DisplayIDPrefix(year int) string {
	return fmt.Sprintf("%s%d-", displayIDTag, year)
}

// ReportNumberPrefix returns the yearly report-number prefix,
// e.g. "RPT2026-".
func ReportNumberPrefix(year int) string {
	return fmt.Sprintf("%s%d-", reportNumberTag, year)
}

// NextInSequence computes the identifier following last within the
// given yearly prefix group. An empty last starts the sequence at 1,
// and an unparsable suffix restarts it at 1 rather than failing. The
// numeric part is zero-padded to four digits; wider values keep their
// natural width.
func NextInSequence(last, prefix string) string {
	next := 1
	if suffix, ok := strings.CutPrefix(last, prefix); ok {
		if n, err := strconv.Atoi(suffix); err == nil && n > 0 {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, sequenceWidth, next)
}

// yearOf extracts the year used for prefix grouping.
func yearOf(t time.Time) int {
	return t.UTC().Year()
}
