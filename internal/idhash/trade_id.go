package idhash

import "fmt"

// ComputeTradeID computes a deterministic trade_id.
// Formula: SHA256(run_id|leg|entry_index|exit_index)
// Returns base58-encoded hash.
func ComputeTradeID(runID string, leg, entryIndex, exitIndex int) string {
	data := fmt.Sprintf("%s|%d|%d|%d",
		runID,
		leg,
		entryIndex,
		exitIndex,
	)
	return encode(data)
}
