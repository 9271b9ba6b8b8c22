// Package numerator provides domain contracts for document auto-numbering.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds numbering configuration.
// Numbers always follow PREFIX-YEAR-NNNN and reset every calendar year.
type Config struct {
	// Prefix added to all numbers (e.g., "INV")
	Prefix string

	// PadWidth is the minimum width of the sequence part (default 4)
	PadWidth int

	// SeedTable and SeedColumn name where already issued numbers live.
	// A yearly sequence that does not exist yet starts after the highest number found there.
	SeedTable  string
	SeedColumn string
}

// Generator generates sequential document numbers.
//
// Next must be called inside the business transaction that persists the
// document, so a rollback also returns the number and no gap is produced.
type Generator interface {
	Next(ctx context.Context, cfg Config, period time.Time) (string, error)
}

// Key is the sequence key for cfg in the year of period.
func Key(cfg Config, period time.Time) string {
	return fmt.Sprintf("%s_%04d", cfg.Prefix, period.Year())
}

// Format renders a sequence value.
func Format(cfg Config, period time.Time, num int64) string {
	width := cfg.PadWidth
	if width <= 0 {
		width = 4
	}
	return fmt.Sprintf("%s-%04d-%0*d", cfg.Prefix, period.Year(), width, num)
}

// Parse extracts year and sequence from a formatted number.
func Parse(formatted string) (year int, num int64, ok bool) {
	parts := strings.Split(formatted, "-")
	if len(parts) != 3 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	n, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return y, n, true
}
