package utils

import "testing"

func TestRandomStringLengthAndAlphabet(t *testing.T) {
	gen := CreateRandomstringGenerator(42)

	s := gen.GetRandomString(8)
	if len(s) != 8 {
		t.Fatalf("expected 8 characters, got %d (%q)", len(s), s)
	}
	for _, r := range s {
		if !Contains(r, letters) {
			t.Fatalf("unexpected rune %q in %q", r, s)
		}
	}
}

func TestRandomStringSameSeedIsDeterministic(t *testing.T) {
	a := CreateRandomstringGenerator(7).GetRandomString(12)
	b := CreateRandomstringGenerator(7).GetRandomString(12)
	if a != b {
		t.Fatalf("expected equal strings for equal seeds, got %q and %q", a, b)
	}
}

func TestContains(t *testing.T) {
	hosts := []string{"a.example", "b.example"}
	if !Contains("b.example", hosts) {
		t.Fatal("expected b.example to be found")
	}
	if Contains("c.example", hosts) {
		t.Fatal("did not expect c.example to be found")
	}
	if Contains("x", nil) {
		t.Fatal("nil haystack should contain nothing")
	}
}
