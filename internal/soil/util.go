package soil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalizeJSON re-encodes data with sorted object keys and compact
// separators — Go's encoding/json already sorts map keys when marshaling a
// map[string]any, so a decode/re-encode round trip is sufficient.
func canonicalizeJSON(data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func contentSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
