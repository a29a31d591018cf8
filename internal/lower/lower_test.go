package lower_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"zkyulc/internal/ast"
	"zkyulc/internal/build"
	"zkyulc/internal/build/evalbuilder"
	"zkyulc/internal/frontend"
	"zkyulc/internal/lower"
)

// runYul parses src, lowers it against a fresh evalbuilder.Builder, and executes the resulting
// Program's top-level object function (always declared with zero params/results by
// internal/lower/object.go) against calldata. It is the harness every scenario/property test below
// drives spec.md's six worked examples and testable properties through, the same way the teacher's
// own ir_test.go drives a snippet through its generic backend instead of a real target.
func runYul(t *testing.T, src string, calldata []byte) (*evalbuilder.Machine, evalbuilder.Result) {
	t.Helper()
	root, err := frontend.Parse(src)
	require.NoError(t, err, "parse")

	out, err := lower.LowerObject(evalbuilder.NewBuilder(nil), root)
	require.NoError(t, err, "lower")

	prog := out.(*evalbuilder.Program)
	m := evalbuilder.NewMachine(prog, calldata, evalbuilder.Environment{})
	res, err := m.Run(root.Name, nil)
	require.NoError(t, err, "run")
	return m, res
}

func slot(i uint64) [32]byte { return ast.NewFieldValue(i).Bytes32() }

func requireSlot(t *testing.T, m *evalbuilder.Machine, i uint64, want uint64) {
	t.Helper()
	requireSlotField(t, m, i, ast.NewFieldValue(want))
}

func requireSlotField(t *testing.T, m *evalbuilder.Machine, i uint64, want *ast.FieldValue) {
	t.Helper()
	v, ok := m.Storage()[slot(i)]
	require.True(t, ok, "storage slot %d was never written", i)
	require.Zero(t, v.Cmp(want), "slot %d: got %s, want %s", i, v, want)
}

// Scenario 1 (spec §8.1): a function call's result stored directly.
func TestScenarioFunctionCallResult(t *testing.T) {
	src := `object "T" { code {
		function f() -> x { x := add(2, 3) }
		sstore(0, f())
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 5)
}

// Scenario 2 (spec §8.2) and property P3: division by zero yields 0 rather than trapping.
func TestScenarioDivisionByZero(t *testing.T) {
	src := `object "T" { code { sstore(0, div(10, 0)) } }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 0)
}

// Property P3, broadened: every division-family builtin is safe against a zero divisor/modulus.
func TestDivisionFamilySafety(t *testing.T) {
	src := `object "T" { code {
		sstore(0, div(7, 0))
		sstore(1, mod(7, 0))
		sstore(2, sdiv(7, 0))
		sstore(3, smod(7, 0))
		sstore(4, addmod(7, 1, 0))
		sstore(5, mulmod(7, 1, 0))
	} }`
	m, _ := runYul(t, src, nil)
	for i := uint64(0); i < 6; i++ {
		requireSlot(t, m, i, 0)
	}
}

// Scenario 3 (spec §8.3): a for loop summing 0..4 into storage slot 0.
func TestScenarioForLoopSum(t *testing.T) {
	src := `object "T" { code {
		let s := 0
		for { let i := 0 } lt(i, 5) { i := add(i, 1) } { s := add(s, i) }
		sstore(0, s)
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 10)
}

// Scenario 4 (spec §8.4) and property P7: a switch with a non-zero scrutinee falls to its default
// arm, never the case 0 arm. calldata here carries a non-zero selector word (a real call always
// carries one, even with no further arguments), matching the scenario's "selector non-zero" note.
func TestScenarioSwitchDefaultOnNonzeroSelector(t *testing.T) {
	src := `object "T" { code {
		switch calldataload(0)
		case 0 { sstore(0, 1) }
		default { sstore(0, 2) }
	} }`
	calldata := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	m, _ := runYul(t, src, calldata)
	requireSlot(t, m, 0, 2)
}

// Property P7, the zero-selector counterpart: the case 0 arm runs, and only it, when there is
// truly no calldata at all.
func TestScenarioSwitchCaseOnZeroSelector(t *testing.T) {
	src := `object "T" { code {
		switch calldataload(0)
		case 0 { sstore(0, 1) }
		default { sstore(0, 2) }
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 1)
}

// Scenario 5 (spec §8.5) and property P8: a compound-return function's two results bind to two
// separate local variables in declaration order.
func TestScenarioCompoundReturn(t *testing.T) {
	src := `object "T" { code {
		function g(a, b) -> p, q { p := add(a, b) q := sub(a, b) }
		let u, v := g(10, 3)
		sstore(0, u)
		sstore(1, v)
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 13)
	requireSlot(t, m, 1, 7)
}

// Scenario 6 (spec §8.6): a one-armed if whose condition holds.
func TestScenarioIfTrue(t *testing.T) {
	src := `object "T" { code {
		if iszero(0) { sstore(0, 42) }
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 42)
}

// A one-armed if whose condition does not hold never runs its body.
func TestScenarioIfFalseSkipsBody(t *testing.T) {
	src := `object "T" { code {
		if iszero(1) { sstore(0, 42) }
	} }`
	m, _ := runYul(t, src, nil)
	_, ok := m.Storage()[slot(0)]
	require.False(t, ok, "if body ran despite a false condition")
}

// Property P2: forward references compile. f is called before its own FunctionDefinition appears
// in source order, which only works because declareFunctions (declare.go) runs a full pass before
// any body is lowered.
func TestForwardFunctionReference(t *testing.T) {
	src := `object "T" { code {
		sstore(0, f())
		function f() -> x { x := 7 }
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 7)
}

// Property P2, the recursive case: a function may call itself before its own definition has
// finished lowering, because it was already declared in pass one.
func TestRecursiveFunctionReference(t *testing.T) {
	src := `object "T" { code {
		function fact(n) -> r {
			switch n
			case 0 { r := 1 }
			default { r := mul(n, fact(sub(n, 1))) }
		}
		sstore(0, fact(5))
	} }`
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 120)
}

// Property P4: calldataload(0) is always the selector cell; calldataload(4) reads the first
// argument word, shifted by the -4 selector-tail convention (spec §9).
func TestCalldataLoadSelectorAndArgument(t *testing.T) {
	src := `object "T" { code {
		sstore(0, calldataload(0))
		sstore(1, calldataload(4))
	} }`
	// Parent layout: cell 0 (selector) begins with 0xAA, cell 2 (the first argument word once the
	// -4 shift is applied) begins with 0x07.
	calldata := make([]byte, 96)
	calldata[0] = 0xAA
	calldata[64] = 0x07

	var selector, arg [32]byte
	selector[0] = 0xAA
	arg[0] = 0x07

	m, _ := runYul(t, src, calldata)
	requireSlotField(t, m, 0, ast.FieldValueFromBytes32(selector))
	requireSlotField(t, m, 1, ast.FieldValueFromBytes32(arg))
}

// Property P5: calldatasize is the argument-buffer cell count scaled to bytes, plus the 4-byte
// selector that occupies no cell of its own.
func TestCalldataSize(t *testing.T) {
	src := `object "T" { code { sstore(0, calldatasize()) } }`
	calldata := make([]byte, 64)
	calldata[63] = 3 // the cellCalldataSize cell holds 3 cells
	m, _ := runYul(t, src, calldata)
	requireSlot(t, m, 0, 3*32+4)
}

// Property P6: break exits to the statement after the loop; continue skips straight to the post
// step without running the rest of the body.
func TestBreakAndContinue(t *testing.T) {
	src := `object "T" { code {
		let s := 0
		for { let i := 0 } lt(i, 10) { i := add(i, 1) } {
			if eq(i, 3) { continue }
			if eq(i, 5) { break }
			s := add(s, i)
		}
		sstore(0, s)
	} }`
	// i=0,1,2 add (sum 3); i=3 continues before its add; i=4 adds (sum 7); i=5 breaks.
	m, _ := runYul(t, src, nil)
	requireSlot(t, m, 0, 7)
}

// Property P6, the rejection half: break/continue outside any for loop is a semantic error caught
// before any IR is emitted, never a panic or a silently-accepted no-op.
func TestBreakOutsideLoopRejected(t *testing.T) {
	src := `object "T" { code { break } }`
	root, err := frontend.Parse(src)
	require.NoError(t, err)
	_, err = lower.LowerObject(evalbuilder.NewBuilder(nil), root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not inside a for loop")
}

func TestContinueOutsideLoopRejected(t *testing.T) {
	src := `object "T" { code { continue } }`
	root, err := frontend.Parse(src)
	require.NoError(t, err)
	_, err = lower.LowerObject(evalbuilder.NewBuilder(nil), root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not inside a for loop")
}

// A function cannot nest a definition of itself (invariant I3).
func TestFunctionSelfNestingRejected(t *testing.T) {
	src := `object "T" { code {
		function f() {
			function f() { }
		}
	} }`
	root, err := frontend.Parse(src)
	require.NoError(t, err)
	_, err = lower.LowerObject(evalbuilder.NewBuilder(nil), root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nests inside its own definition")
}

// Nested objects (the "_deployed" convention, spec §4.7) lower independently: both the constructor
// and its runtime object are reachable as separate functions in the same Program.
func TestNestedDeployedObjectLowersBothBodies(t *testing.T) {
	src := `object "Outer" {
		code { sstore(0, 1) }
		object "Outer_deployed" {
			code { sstore(0, 2) }
		}
	}`
	root, err := frontend.Parse(src)
	require.NoError(t, err)
	out, err := lower.LowerObject(evalbuilder.NewBuilder(nil), root)
	require.NoError(t, err)
	prog := out.(*evalbuilder.Program)

	m1 := evalbuilder.NewMachine(prog, nil, evalbuilder.Environment{})
	_, err = m1.Run("Outer", nil)
	require.NoError(t, err)
	requireSlot(t, m1, 0, 1)

	m2 := evalbuilder.NewMachine(prog, nil, evalbuilder.Environment{})
	_, err = m2.Run("Outer_deployed", nil)
	require.NoError(t, err)
	requireSlot(t, m2, 0, 2)
}

// A factory-dependency object nested identically under two sibling contract objects is lowered
// exactly once; the golang-lru dedup cache in object.go (keyed by object name) is what keeps the
// second sighting from tripping DeclareFunction's duplicate-name error.
func TestSharedDependencyObjectLoweredOnce(t *testing.T) {
	src := `object "Outer" {
		code { stop() }
		object "Outer_deployed" {
			code { stop() }
			object "Lib" { code { stop() } }
		}
		object "Lib" { code { stop() } }
	}`
	root, err := frontend.Parse(src)
	require.NoError(t, err)
	_, err = lower.LowerObject(evalbuilder.NewBuilder(nil), root)
	require.NoError(t, err)
}

// LowerBatch lowers independent compilation units concurrently without cross-talk: each gets its
// own Builder/Program, so the same top-level object name recurring across several batch entries
// never collides (spec §5's "no shared mutable state between contracts once the parser has
// finished").
func TestLowerBatchConcurrent(t *testing.T) {
	const n = 8
	roots := make([]*ast.Object, n)
	for i := range roots {
		root, err := frontend.Parse(`object "T" { code { sstore(0, add(1, 1)) } }`)
		require.NoError(t, err)
		roots[i] = root
	}

	newBuilder := func() build.Builder { return evalbuilder.NewBuilder(nil) }
	outs, err := lower.LowerBatch(newBuilder, roots, 4)
	require.NoError(t, err)
	require.Len(t, outs, n)

	for _, out := range outs {
		prog := out.(*evalbuilder.Program)
		m := evalbuilder.NewMachine(prog, nil, evalbuilder.Environment{})
		_, err := m.Run("T", nil)
		require.NoError(t, err)
		requireSlot(t, m, 0, 2)
	}
}
