package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRunID computes a deterministic id for a strategy x timeframe run.
// Formula: SHA256(strategy_id|timeframe|baseline|starting_capital)
func ComputeRunID(strategyID, timeframe string, baseline int64, startingCapital float64) string {
	data := fmt.Sprintf("%s|%s|%d|%.2f", strategyID, timeframe, baseline, startingCapital)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
