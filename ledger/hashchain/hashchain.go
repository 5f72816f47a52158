// Package hashchain builds the per-step content hashes that chain a sample's
// custody steps together. Each hash covers the step payload, the previous
// step's hash and the caller-supplied timestamp, so recomputing the chain
// from the recorded timeline must reproduce it exactly.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Genesis is the previous-hash sentinel for the first step of a chain.
const Genesis = ""

// Compute returns the hex-encoded SHA-256 digest for one custody step.
// previousHash is Genesis for step 1. The timestamp is caller-supplied so the
// function stays pure. Deterministic for identical inputs: the payload is
// encoded canonically (sorted keys, no insignificant whitespace).
func Compute(previousHash string, payload map[string]any, ts time.Time) string {
	var b strings.Builder
	b.WriteString(`{"payload":`)
	writeCanonical(&b, payload)
	b.WriteString(`,"previous_hash":`)
	writeJSONString(&b, previousHash)
	b.WriteString(`,"timestamp":`)
	writeJSONString(&b, ts.UTC().Format(time.RFC3339Nano))
	b.WriteString(`}`)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeCanonical encodes v with map keys sorted, recursively. Values other
// than maps and slices go through encoding/json, which is already
// deterministic for scalars.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		enc, err := json.Marshal(val)
		if err != nil {
			// Unencodable payload values are the caller's responsibility to
			// screen out; fall back to the string form so the hash is still
			// deterministic rather than panicking mid-chain.
			enc, _ = json.Marshal(fmt.Sprintf("%v", val))
		}
		b.Write(enc)
	}
}

func writeJSONString(b *strings.Builder, s string) {
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// PayloadDigest returns the hex SHA-256 of the canonical payload encoding
// alone, without the chain linkage. Stored on audit records so a payload can
// be checked against the log without replaying the whole chain.
func PayloadDigest(payload map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, payload)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest for one step and reports whether it matches
// the recorded hash. Used by audit tooling and tests.
func Verify(recordedHash, previousHash string, payload map[string]any, ts time.Time) bool {
	return recordedHash == Compute(previousHash, payload, ts)
}
