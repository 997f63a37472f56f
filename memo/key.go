package memo

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// MaxKeyLength is the length above which Key hashes the parameters. The
// prefix is never shortened, so a prefix longer than MaxKeyLength yields a
// key of len(prefix)+16.
const MaxKeyLength = 250

// Key builds a cache key from a prefix and the JSON encoding of params,
// e.g. Key("feedback_stats_", filter) = `feedback_stats_{"user":"1"}`.
// When the result would exceed MaxKeyLength the JSON is replaced by its
// 16 hex digits of its xxhash64 so the key keeps its prefix for
// InvalidateByPrefix.
func Key(prefix string, params any) string {
	if params == nil {
		return prefix
	}
	buf, err := json.Marshal(params)
	if err != nil {
		buf = []byte(fmt.Sprintf("%+v", params))
	}
	if len(prefix)+len(buf) <= MaxKeyLength {
		return prefix + string(buf)
	}
	return fmt.Sprintf("%s%016x", prefix, xxhash.Sum64(buf))
}
