// Package build declares the IR-builder contract that internal/lower is written against (spec §6).
// Two implementations satisfy it: build/llvmbuilder, which emits real LLVM IR addressed at the
// zkEVM target via tinygo.org/x/go-llvm (grounded on the teacher's ir/llvm/transform.go), and
// build/evalbuilder, an in-memory interpreting backend used only by tests — the "generic backend
// used for testing" spec §1 itself allows, which is what makes the testable properties in spec §8
// assertable in ordinary Go tests without a real LLVM/zkEVM toolchain.
package build

import "zkyulc/internal/ast"

// AddressSpace is the capability-carrying numbered address space a pointer Value was allocated in.
// Every pointer's address space is fixed at allocation time and never changes; spec §3/§9 treats
// the address space itself as the access-control mechanism (a Storage pointer can never alias a
// Heap one), which both builders must preserve.
type AddressSpace int

const (
	Stack AddressSpace = iota
	Heap
	Storage
	Parent // the calldata/ABI buffer this call was invoked with
	Child  // the calldata/ABI buffer for an outgoing inter-contract call
)

func (a AddressSpace) String() string {
	switch a {
	case Stack:
		return "stack"
	case Heap:
		return "heap"
	case Storage:
		return "storage"
	case Parent:
		return "parent"
	case Child:
		return "child"
	default:
		return "unknown"
	}
}

// Value, Function, and BasicBlock are opaque handles a Builder hands back to the caller and later
// accepts as arguments; their concrete dynamic type is private to each builder implementation, the
// same role llvm.Value/llvm.BasicBlock play in the teacher's transform.go.
type Value interface{}
type Function interface{}
type BasicBlock interface{}

// Builder is the contract internal/lower is written against. Every method that can fail returns an
// error instead of panicking, per spec §7's IRError category.
type Builder interface {
	// DeclareFunction registers a function with numParams parameters and numResults results (all
	// field-valued). No block is created here: the first block appended to the function with
	// AppendBlock is its entry block. Matches the teacher's genFuncHeader/genFuncBody
	// split: declaration happens before any body is lowered, enabling forward/recursive calls.
	DeclareFunction(name string, numParams, numResults int) (Function, error)

	// AppendBlock creates a new, empty basic block within fn.
	AppendBlock(fn Function, label string) BasicBlock

	// SetInsertPoint directs all subsequent emitting calls to append to the end of blk.
	SetInsertPoint(fn Function, blk BasicBlock)

	// Param returns the i'th parameter value of fn.
	Param(fn Function, i int) Value

	// ConstantFromField materializes a compile-time-known field element as a Value.
	ConstantFromField(v *ast.FieldValue) Value

	// Alloca reserves a new named Stack-space slot for one field value, initialized to zero.
	Alloca(name string) Value

	// Load reads the field value addressed by addr in the given address space.
	Load(space AddressSpace, addr Value) (Value, error)

	// Store writes val to the field addressed by addr in the given address space.
	Store(space AddressSpace, addr Value, val Value) error

	// Offset computes addr+byteOffset within space, used by mload/mstore/calldataload and friends
	// where the operand is itself a runtime-computed byte offset rather than a fixed slot.
	Offset(space AddressSpace, base Value, byteOffset Value) Value

	// BinOp emits one of the dyadic arithmetic/comparison/bitwise builtins (e.g. ast.Add, ast.Lt).
	BinOp(op ast.BuiltinTag, a, b Value) (Value, error)

	// TriOp emits one of the triadic builtins (addmod, mulmod).
	TriOp(op ast.BuiltinTag, a, b, c Value) (Value, error)

	// UnOp emits a monadic builtin (not, iszero).
	UnOp(op ast.BuiltinTag, a Value) (Value, error)

	// Br emits an unconditional branch, terminating the current block.
	Br(target BasicBlock)

	// CondBr emits a conditional branch, terminating the current block.
	CondBr(cond Value, then, els BasicBlock)

	// Call invokes a user-defined function, returning one Value per declared result. Multi-result
	// calls are realized via the compound-return hidden-pointer ABI (spec §9) inside the concrete
	// builder, not visible at this interface level.
	Call(fn Function, args []Value) ([]Value, error)

	// Intrinsic emits one of the environment/call/log/create/hash/data builtins that has no
	// user-function analogue (spec §4.6). numResults tells the builder how many Values to return.
	Intrinsic(tag ast.BuiltinTag, args []Value, numResults int) ([]Value, error)

	// Ret emits a return of the given result values, terminating the current block.
	Ret(results []Value) error

	// Halt emits one of the terminal zero-arg/two-arg control builtins: stop, invalid, or
	// return/revert (offset, length already resolved to Values; nil offset/length for stop/invalid).
	Halt(tag ast.BuiltinTag, offset, length Value) error

	// CurrentBlockTerminated reports whether the block at the current insertion point already has
	// a terminator, letting statement lowering skip dead code after leave/break/continue/return
	// the same way the teacher's genIf/genWhile track a nil "conv" block.
	CurrentBlockTerminated() bool

	// Finish finalizes the module and returns a backend-specific artifact: LLVM IR bytes for
	// llvmbuilder, an executable program for evalbuilder.
	Finish() (interface{}, error)
}
