// Package idhash computes deterministic identifiers for runs and trades.
//
// Identifiers are base58-encoded SHA256 digests of a pipe-joined key, so the
// same inputs always produce the same ID and reruns are idempotent in storage.
package idhash

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// RunKey holds the inputs that identify a backtest run.
type RunKey struct {
	StrategyID     string
	Symbols        []string
	FirstBar       int64 // unix ms of the first bar
	LastBar        int64 // unix ms of the last bar
	InitialCapital float64
	CostRate       float64
	Allocation     float64
}

// ComputeRunID computes a deterministic run_id.
// Formula: SHA256(strategy_id|symbols|first_bar|last_bar|capital|cost_rate|allocation)
// Returns base58-encoded hash (about 44 characters).
func ComputeRunID(k RunKey) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%s|%s|%s",
		k.StrategyID,
		strings.Join(k.Symbols, ","),
		k.FirstBar,
		k.LastBar,
		formatFloat(k.InitialCapital),
		formatFloat(k.CostRate),
		formatFloat(k.Allocation),
	)
	return encode(data)
}

func encode(data string) string {
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
