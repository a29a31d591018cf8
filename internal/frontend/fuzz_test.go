package frontend

import (
	"fmt"
	"strings"
	"testing"
	"unicode"

	fuzz "github.com/google/gofuzz"

	"zkyulc/internal/ast"
)

// TestParseRoundTripFuzz supplements TestParseRoundTrip (property P1) with a much wider set of
// literal/identifier fragments than that single hand-written fixture covers, generated with
// github.com/google/gofuzz the way ProbeChain-go-probe's randomized property tests draw their
// inputs instead of enumerating fixtures by hand.
func TestParseRoundTripFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 1).Funcs(
		func(s *string, c fuzz.Continue) {
			// RandString draws from gofuzz's own default alphabet; sanitizeIdent below filters
			// whatever it returns down to a valid Yul identifier.
			*s = c.RandString()
		},
	)

	for i := 0; i < 64; i++ {
		var ident string
		var n uint32
		f.Fuzz(&ident)
		f.Fuzz(&n)
		name := sanitizeIdent(ident, i)

		src := fmt.Sprintf(`object "F" {
    code {
        let %s := %d
        switch %s
        case 0 { sstore(0, 1) }
        default { sstore(0, %s) }
    }
}`, name, n, name, name)

		obj1, err := Parse(src)
		if err != nil {
			t.Fatalf("round %d: first parse failed: %v\n%s", i, err, src)
		}
		printed := ast.Print(obj1)
		obj2, err := Parse(printed)
		if err != nil {
			t.Fatalf("round %d: reparse of printed source failed: %v\n%s", i, err, printed)
		}
		reprinted := ast.Print(obj2)
		if printed != reprinted {
			t.Fatalf("round %d: round trip mismatch:\n--- first ---\n%s\n--- second ---\n%s", i, printed, reprinted)
		}
	}
}

// sanitizeIdent coerces a fuzzed string into a valid Yul identifier: a leading letter or
// underscore followed by letters, digits, or underscores. An empty or otherwise unusable result
// falls back to a positional name so every round still has something to parse.
func sanitizeIdent(s string, i int) string {
	var b strings.Builder
	for _, r := range s {
		if isAlpha(r) || isDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) || keyword[out] != 0 {
		return fmt.Sprintf("v%d", i)
	}
	return out
}
