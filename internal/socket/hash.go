// File: internal/socket/hash.go
// Quiz Engine - cheap pre-diff check on broadcast state blobs

package socket

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// hashBlob gives BroadcastState a fast way to tell "definitely
// unchanged" from "needs the field-by-field diff" without re-walking
// every key on every broadcast.
func hashBlob(blob map[string]any) uint64 {
	encoded, err := json.Marshal(blob)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(encoded)
}
