package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/algoforge/backtest/pkg/types"
)

// DatasetHash computes the deterministic content hash of a bar series:
// bars sorted ascending by timestamp, each rendered as
// "ts,o,h,l,c,v,d|" and concatenated, then SHA-256'd. Identical bar data
// always yields the same hash regardless of input ordering.
func DatasetHash(bars []types.Bar) string {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var sb strings.Builder
	for _, b := range sorted {
		fmt.Fprintf(&sb, "%d,%v,%v,%v,%v,%v,%d|",
			b.Timestamp.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume, b.BarDirection)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// StrategyHash computes the deterministic content hash of a strategy
// definition: canonical JSON with keys sorted and no ASCII escaping,
// then SHA-256'd. definition is typically the JSON-shaped map or struct
// persisted as strategies.definition_json.
func StrategyHash(definition interface{}) (string, error) {
	raw, err := json.Marshal(definition)
	if err != nil {
		return "", fmt.Errorf("marshaling strategy definition: %w", err)
	}
	canonical, err := canonicalizeJSON(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing strategy definition: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalizeJSON re-marshals raw through a map so object keys come out
// sorted, matching Python's json.dumps(sort_keys=True). A HTML-escaping
// encoder is avoided so output matches ensure_ascii=False byte-for-byte
// for non-ASCII content.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(sb.String(), "\n")), nil
}
