package frontend

import (
	"testing"

	"zkyulc/internal/ast"
)

func TestParseRoundTrip(t *testing.T) {
	// P1: parse(print(parse(src))) == parse(src), checked via Print output equality.
	src := `object "C" {
    code {
        function selector() -> s {
            s := div(calldataload(0), 0x100000000000000000000000000000000000000000000000000000000)
        }
        switch selector()
        case 0x12345678 {
            sstore(0, 1)
        }
        default {
            revert(0, 0)
        }
    }
    data ".metadata" hex"1234"
}`
	obj1, err := Parse(src)
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	if len(obj1.Datas) != 1 || len(obj1.Datas[0].Bytes) != 2 {
		t.Fatalf("expected hex\"1234\" to decode to 2 bytes, got %v", obj1.Datas[0].Bytes)
	}
	printed := ast.Print(obj1)
	obj2, err := Parse(printed)
	if err != nil {
		t.Fatalf("second parse failed on reprinted source: %v\n%s", err, printed)
	}
	if ast.Print(obj2) != printed {
		t.Fatalf("round trip mismatch:\n--- first ---\n%s\n--- second ---\n%s", printed, ast.Print(obj2))
	}
}

func TestParseForLoopAndControlFlow(t *testing.T) {
	src := `object "C" {
    code {
        for { let i := 0 } lt(i, 10) { i := add(i, 1) } {
            if eq(i, 5) { continue }
            if eq(i, 8) { break }
            sstore(i, i)
        }
        leave
    }
}`
	if _, err := Parse(src); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
}

func TestParseRejectsDefaultBeforeCase(t *testing.T) {
	src := `object "C" {
    code {
        switch calldataload(0)
        default { revert(0, 0) }
        case 1 { stop() }
    }
}`
	if _, err := Parse(src); err == nil {
		t.Fatal("expected parse error for default-before-case, got nil")
	}
}

func TestParseNestedObjectAndData(t *testing.T) {
	src := `object "Outer" {
    code { stop() }
    object "Outer_deployed" {
        code { stop() }
        data ".metadata" hex"cafe"
    }
}`
	obj, err := Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(obj.Objects) != 1 || obj.Objects[0].Name != "Outer_deployed" {
		t.Fatalf("expected one nested object Outer_deployed, got %+v", obj.Objects)
	}
	if len(obj.Objects[0].Datas) != 1 {
		t.Fatalf("expected one data block in nested object")
	}
	if got := obj.Objects[0].Datas[0].Bytes; len(got) != 2 {
		t.Fatalf("expected hex\"cafe\" to decode to 2 bytes, got %v", got)
	}
}
