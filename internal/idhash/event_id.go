package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"shadow-index-lab/internal/domain"
)

// ComputeEventID computes the identity of a trader action.
// Formula: SHA256(trader_id|tx_hash), both lower-cased.
// Returns hex-encoded hash (64 characters).
func ComputeEventID(traderID, txHash string) string {
	data := fmt.Sprintf("%s|%s", strings.ToLower(traderID), strings.ToLower(txHash))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeFallbackEventID identifies rows that carry no transaction hash.
// Formula: SHA256(trader_id|market_key|kind|timestamp|price|notional).
func ComputeFallbackEventID(
	traderID string,
	marketKey string,
	kind domain.EventKind,
	timestamp int64,
	price float64,
	notional float64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		strings.ToLower(traderID),
		marketKey,
		string(kind),
		timestamp,
		strconv.FormatFloat(price, 'g', -1, 64),
		strconv.FormatFloat(notional, 'g', -1, 64),
	)
	hash := sha256.Sum256([]byte(data))
	return "nohash:" + hex.EncodeToString(hash[:])
}
