package comparator

import (
	"strings"

	"github.com/luissimon96/migration-validation-voe/internal/normalization"
)

// candidate is one element (of any category) reduced to the fields the
// pairing layers need: its index into the owning Representation slice
// (preserved so the earliest-input-order tie-break is well defined), its
// normalized identity key, and — for functions — a normalized signature.
type candidate struct {
	index     int
	identity  string
	signature string
}

// pair links a source candidate to a target candidate by index.
type pair struct {
	sourceIndex int
	targetIndex int
}

// pairByIdentityAndSignature runs §4.4.1 layers 1–2: identity match first,
// then (for candidates carrying a non-empty signature) signature match on
// what identity left unpaired. Ties at either layer are broken by the
// earliest target index.
func pairByIdentityAndSignature(source, target []candidate) (pairs []pair, unpairedSource, unpairedTarget []candidate) {
	targetByIdentity := indexByKey(target, func(c candidate) string { return c.identity })
	usedTarget := make(map[int]bool, len(target))

	var remainingSource []candidate
	for _, s := range source {
		if ts, ok := earliest(targetByIdentity[s.identity], usedTarget); ok {
			pairs = append(pairs, pair{sourceIndex: s.index, targetIndex: target[ts].index})
			usedTarget[ts] = true
			continue
		}
		remainingSource = append(remainingSource, s)
	}

	targetBySignature := indexByKey(target, func(c candidate) string { return c.signature })
	var stillUnpairedSource []candidate
	for _, s := range remainingSource {
		if s.signature == "" {
			stillUnpairedSource = append(stillUnpairedSource, s)
			continue
		}
		if ts, ok := earliest(targetBySignature[s.signature], usedTarget); ok {
			pairs = append(pairs, pair{sourceIndex: s.index, targetIndex: target[ts].index})
			usedTarget[ts] = true
			continue
		}
		stillUnpairedSource = append(stillUnpairedSource, s)
	}

	for i, t := range target {
		if !usedTarget[i] {
			unpairedTarget = append(unpairedTarget, t)
		}
	}
	return pairs, stillUnpairedSource, unpairedTarget
}

func indexByKey(items []candidate, key func(candidate) string) map[string][]int {
	out := make(map[string][]int)
	for i, c := range items {
		k := key(c)
		if k == "" {
			continue
		}
		out[k] = append(out[k], i)
	}
	return out
}

// earliest returns the lowest-indexed candidate in idxs not already used.
func earliest(idxs []int, used map[int]bool) (int, bool) {
	best := -1
	for _, i := range idxs {
		if used[i] {
			continue
		}
		if best == -1 || i < best {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func identityKey(name string) string {
	return normalization.NormalizeIdentifier(name)
}

// normalizeType folds known-equivalent scalar type spellings onto a
// canonical form so "int"≡"int32" and "string"≡"varchar" compare equal.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimPrefix(t, "*")
	t = strings.TrimPrefix(t, "[]")
	if canon, ok := typeEquivalence[t]; ok {
		return canon
	}
	return t
}

// isNumericWideningPair reports whether a and b are both numeric types
// under a widening relationship (e.g. int -> float), distinct from an
// outright type mismatch. Spellings that normalizeType folds together
// (int32/int64) are equivalent, not a widening pair.
func isNumericWideningPair(a, b string) bool {
	na, oka := numericRank[normalizeType(a)]
	nb, okb := numericRank[normalizeType(b)]
	return oka && okb && na != nb
}

var typeEquivalence = map[string]string{
	"int32":   "int",
	"int64":   "int",
	"integer": "int",
	"varchar": "string",
	"text":    "string",
	"str":     "string",
	"bool":    "boolean",
	"float32": "float",
	"float64": "float",
	"double":  "float",
	"number":  "float",
}

var numericRank = map[string]int{
	"int":   1,
	"float": 2,
}

// signatureKey captures §4.4.1 layer 2: arity and ordered-type equivalence.
// Return type is compared separately during element comparison, not as
// part of the pairing signature.
func signatureKey(paramTypes []string) string {
	norm := make([]string, len(paramTypes))
	for i, t := range paramTypes {
		norm[i] = normalizeType(t)
	}
	return strings.Join(norm, ",")
}
