// Package paramhash computes a deterministic FNV-1a hash of a grid
// candidate's normalised parameters (SPEC_FULL §12), so two optimizer runs
// over identical inputs produce identical RunManifest.ParameterHash values
// — the idempotence property spec.md §8 requires.
package paramhash

import (
	"hash/fnv"
	"sort"
	"strconv"
)

// Hash returns the hex-encoded FNV-1a hash of params, iterated in sorted
// key order so map iteration order never affects the result.
func Hash(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(params[k], 'g', -1, 64)))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
