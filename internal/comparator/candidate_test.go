package comparator

import "testing"

func TestPairByIdentityAndSignatureIdentityLayer(t *testing.T) {
	source := []candidate{{index: 0, identity: "create user"}}
	target := []candidate{{index: 0, identity: "create_user"}, {index: 1, identity: "create user"}}

	pairs, unpairedSource, unpairedTarget := pairByIdentityAndSignature(source, target)
	if len(pairs) != 1 {
		t.Fatalf("expected one identity pair, got %+v", pairs)
	}
	if pairs[0].targetIndex != 1 {
		t.Fatalf("expected the exact-identity target (index 1) to win, got %+v", pairs[0])
	}
	if len(unpairedSource) != 0 || len(unpairedTarget) != 1 {
		t.Fatalf("expected target[0] to remain unpaired, got source=%+v target=%+v", unpairedSource, unpairedTarget)
	}
}

func TestPairByIdentityAndSignatureSignatureLayer(t *testing.T) {
	source := []candidate{{index: 0, identity: "create", signature: "string,int"}}
	target := []candidate{{index: 0, identity: "make", signature: "string,int"}}

	pairs, _, _ := pairByIdentityAndSignature(source, target)
	if len(pairs) != 1 {
		t.Fatalf("expected the signature layer to pair a renamed function, got %+v", pairs)
	}
}

func TestPairByIdentityAndSignatureEarliestTieBreak(t *testing.T) {
	source := []candidate{{index: 0, identity: "handler"}}
	target := []candidate{{index: 0, identity: "handler"}, {index: 1, identity: "handler"}}

	pairs, _, unpairedTarget := pairByIdentityAndSignature(source, target)
	if len(pairs) != 1 || pairs[0].targetIndex != 0 {
		t.Fatalf("expected a tie to break toward the earliest target index, got %+v", pairs)
	}
	if len(unpairedTarget) != 1 || unpairedTarget[0].index != 1 {
		t.Fatalf("expected target[1] to remain unpaired, got %+v", unpairedTarget)
	}
}

func TestNormalizeTypeFoldsEquivalentSpellings(t *testing.T) {
	if normalizeType("int32") != normalizeType("integer") {
		t.Fatalf("expected int32 and integer to normalize identically")
	}
	if normalizeType("varchar") != normalizeType("string") {
		t.Fatalf("expected varchar and string to normalize identically")
	}
}

func TestIsNumericWideningPair(t *testing.T) {
	if !isNumericWideningPair("int32", "float64") {
		t.Fatalf("expected int32->float64 to be a numeric widening pair")
	}
	if isNumericWideningPair("string", "int") {
		t.Fatalf("expected string/int to not be a numeric widening pair")
	}
}
