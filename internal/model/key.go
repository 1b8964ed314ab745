package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// IssueKey is the stable identity of a finding, derived from its category,
// line and description. Two issues are the same logical issue iff their keys
// are equal. Keys are deterministic across processes and safe to use as map
// keys or wire identifiers.
type IssueKey string

// keySep cannot occur in category names or line numbers, so hashing the
// joined triple never conflates distinct inputs even when descriptions
// contain separators of their own.
const keySep = "\x1f"

// Key derives the identity of an issue within a category.
func Key(category string, iss Issue) IssueKey {
	raw := strings.Join([]string{category, strconv.Itoa(iss.Line), iss.Description}, keySep)
	sum := sha256.Sum256([]byte(raw))
	return IssueKey(hex.EncodeToString(sum[:8]))
}
