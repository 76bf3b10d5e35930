// Package transform turns decoded cube cells and flattened job ads
// into tidy fact rows keyed for idempotent upserts.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// surrogateKeyLen is the number of hex characters kept from the hash.
// 64 bits of key space is far beyond any plausible row count here.
const surrogateKeyLen = 16

// SurrogateKey derives the deterministic row key from the identifying
// tuple. Identical logical facts always produce identical keys, so
// re-runs overwrite rather than duplicate. The field order and the
// separator are part of the storage contract; changing either orphans
// every existing row.
func SurrogateKey(year int, occupation, region, gender, measure string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(year))
	for _, part := range []string{occupation, region, gender, measure} {
		b.WriteByte('|')
		b.WriteString(part)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:surrogateKeyLen]
}
