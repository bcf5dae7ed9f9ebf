package ratelimit

import (
	"github.com/dustin/go-humanize"
)

// FormatBytes formats a byte count in IEC binary units (KiB, MiB, ...).
// Negative counts are formatted as zero.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
