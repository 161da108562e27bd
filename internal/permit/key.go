package permit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// NaturalKey derives the deterministic permit identifier from its immutable
// source fields: permit number and issue date. Re-running the same raw input
// always yields the same key, so re-extraction upserts instead of
// duplicating.
func NaturalKey(number string, issueDate *time.Time) string {
	date := ""
	if issueDate != nil {
		date = issueDate.UTC().Format("2006-01-02")
	}
	h := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(number)) + "|" + date))
	return hex.EncodeToString(h[:])
}
