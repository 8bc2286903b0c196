package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const maxNameLength = 128

// Sanitize maps name onto the [a-z0-9-] alphabet used for index and
// indexer names: lowercase, other characters become dashes, runs of dashes
// collapse and the result is capped at 128 characters. A name with nothing
// left after cleaning gets a short hash instead.
func Sanitize(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		default:
			if !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(sb.String(), "-")
	if out == "" {
		sum := md5.Sum([]byte(name))
		out = "idx-" + hex.EncodeToString(sum[:])[:8]
	}
	if len(out) > maxNameLength {
		out = strings.TrimRight(out[:maxNameLength], "-")
	}
	return out
}

// IndexName is the per-compound index all of its documents are written to.
func IndexName(compoundID string) string {
	return Sanitize("compound-" + compoundID)
}

// IndexerName labels the indexing job of one document.
func IndexerName(documentID string) string {
	return Sanitize("idx-doc-" + documentID)
}
