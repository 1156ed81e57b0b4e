package plancache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives a stable identity for a schema's shape: the SHA-256 of
// the sorted "name:type" pairs joined by commas. Field order in the request
// does not affect the result; renaming a field or changing its type does.
func Fingerprint(schema map[string]string) string {
	pairs := make([]string, 0, len(schema))
	for name, typ := range schema {
		pairs = append(pairs, name+":"+typ)
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, ",")))
	return hex.EncodeToString(sum[:])
}
