// Package llvmbuilder is the real build.Builder implementation: it emits LLVM IR via
// tinygo.org/x/go-llvm, the same binding the teacher's ir/llvm/transform.go used to target VSL's
// LLVM pipeline. Where the teacher split i64/double between aarch64 and riscv32 targets, this
// builder has exactly one scalar type throughout — a 256-bit integer — and models the address
// spaces spec §3/§9 describe (Stack/Heap/Storage/Parent/Child) as LLVM's own numbered pointer
// address spaces, so the zkEVM backend that eventually consumes this IR can tell a Storage pointer
// from a Heap one purely from its type.
package llvmbuilder

import (
	"fmt"
	"sync"

	"tinygo.org/x/go-llvm"

	"zkyulc/internal/ast"
	"zkyulc/internal/build"
)

// addrSpace maps a build.AddressSpace to the LLVM numbered address space used for every pointer
// allocated in it. 0 is reserved for Stack (LLVM's generic/default space, matching how `alloca`
// normally behaves); the rest are arbitrary but must agree with whatever zkEVM backend consumes
// this module's IR, exactly as the teacher's genTargetTriple hard-codes target conventions.
func addrSpace(s build.AddressSpace) int {
	switch s {
	case build.Stack:
		return 0
	case build.Heap:
		return 1
	case build.Storage:
		return 2
	case build.Parent:
		return 3
	case build.Child:
		return 4
	default:
		return 0
	}
}

// symTab mirrors the teacher's transform.go symTab: a name -> llvm.Value map guarded by a
// read/write mutex. Each Builder owns its own table; internal/lower drives a Builder from one
// goroutine at a time and gives every concurrently lowered compilation unit its own Builder.
type symTab struct {
	m map[string]llvm.Value
	sync.RWMutex
}

func newSymTab() *symTab { return &symTab{m: make(map[string]llvm.Value, 16)} }

func (s *symTab) get(name string) (llvm.Value, bool) {
	s.RLock()
	defer s.RUnlock()
	v, ok := s.m[name]
	return v, ok
}

func (s *symTab) set(name string, v llvm.Value) {
	s.Lock()
	defer s.Unlock()
	s.m[name] = v
}

// Builder is the llvm-backed build.Builder. One Builder owns exactly one llvm.Module and one
// globals table; it is not shared between concurrent lowerings.
type Builder struct {
	ctx     llvm.Context
	mod     llvm.Module
	b       llvm.Builder
	i256    llvm.Type
	globals *symTab

	curFn  llvm.Value
	curNum int // number of declared results of curFn, for Ret's hidden-pointer ABI
}

// New creates a Builder that emits into a fresh module named moduleName. It sets no target triple
// on the module; unlike the teacher's genTargetTriple (which only ever aimed at aarch64/riscv32
// hosts it could assemble locally), this package never hard-codes one.
func New(moduleName string) *Builder {
	ctx := llvm.NewContext()
	mod := ctx.NewModule(moduleName)
	return &Builder{
		ctx:     ctx,
		mod:     mod,
		b:       ctx.NewBuilder(),
		i256:    ctx.IntType(256),
		globals: newSymTab(),
	}
}

func (bl *Builder) ptrType(space build.AddressSpace) llvm.Type {
	return llvm.PointerType(bl.i256, addrSpace(space))
}

// DeclareFunction registers a function taking numParams i256 arguments. Multiple results are
// realized, per spec §9's compound-return ABI, as extra trailing pointer-to-i256 out-parameters in
// address space 0 rather than an LLVM struct return, so the zkEVM backend never has to lower an
// aggregate type.
func (bl *Builder) DeclareFunction(name string, numParams, numResults int) (build.Function, error) {
	if _, exists := bl.globals.get(name); exists {
		return nil, fmt.Errorf("llvmbuilder: function %q already declared", name)
	}
	paramTypes := make([]llvm.Type, 0, numParams+numResults)
	for i := 0; i < numParams; i++ {
		paramTypes = append(paramTypes, bl.i256)
	}
	for i := 0; i < numResults; i++ {
		paramTypes = append(paramTypes, bl.ptrType(build.Stack))
	}
	fnType := llvm.FunctionType(bl.ctx.VoidType(), paramTypes, false)
	fn := llvm.AddFunction(bl.mod, name, fnType)
	for i := 0; i < numParams; i++ {
		fn.Param(i).SetName(fmt.Sprintf("%s.arg%d", name, i))
	}
	for i := 0; i < numResults; i++ {
		fn.Param(numParams + i).SetName(fmt.Sprintf("%s.ret%d", name, i))
	}
	bl.globals.set(name, fn)
	return &function{val: fn, numParams: numParams, numResults: numResults}, nil
}

type function struct {
	val                    llvm.Value
	numParams, numResults int
}

func (bl *Builder) AppendBlock(fn build.Function, label string) build.BasicBlock {
	f := fn.(*function)
	return bl.ctx.AddBasicBlock(f.val, label)
}

func (bl *Builder) SetInsertPoint(fn build.Function, blk build.BasicBlock) {
	bl.curFn = fn.(*function).val
	bl.curNum = fn.(*function).numResults
	bl.b.SetInsertPointAtEnd(blk.(llvm.BasicBlock))
}

func (bl *Builder) Param(fn build.Function, i int) build.Value {
	return fn.(*function).val.Param(i)
}

func (bl *Builder) ConstantFromField(v *ast.FieldValue) build.Value {
	b32 := v.Bytes32()
	// llvm.ConstIntFromString takes a decimal/hex string; feeding the decimal rendering keeps
	// this path independent of any particular big-endian/little-endian words layout assumption.
	_ = b32
	return llvm.ConstIntFromString(bl.i256, v.String(), 10)
}

func (bl *Builder) Alloca(name string) build.Value {
	slot := bl.b.CreateAlloca(bl.i256, name)
	bl.b.CreateStore(llvm.ConstInt(bl.i256, 0, false), slot)
	return slot
}

// toPtr converts addr to a properly address-spaced pointer. Stack addresses are always an
// Alloca'd pointer already (declareVar/Alloca are the only source of a Stack Value); every other
// address space is carried as a plain i256 byte offset — the same convention evalbuilder uses, so
// lowering code (builtin.go in particular) can compute addresses with ordinary ConstantFromField/
// Offset/BinOp calls without caring which concrete Builder eventually consumes them.
func (bl *Builder) toPtr(space build.AddressSpace, addr build.Value) llvm.Value {
	v := addr.(llvm.Value)
	if space == build.Stack {
		return v
	}
	return bl.b.CreateIntToPtr(v, bl.ptrType(space), "ptr."+space.String())
}

func (bl *Builder) Load(space build.AddressSpace, addr build.Value) (build.Value, error) {
	return bl.b.CreateLoad(bl.i256, bl.toPtr(space, addr), "load."+space.String()), nil
}

func (bl *Builder) Store(space build.AddressSpace, addr build.Value, val build.Value) error {
	bl.b.CreateStore(val.(llvm.Value), bl.toPtr(space, addr))
	return nil
}

// Offset computes base+byteOffset. For Stack it walks an i8 view of the already-typed Alloca
// pointer via GEP, matching mload/sload's byte-addressed semantics rather than LLVM's
// element-indexed GEP default; every other address space is plain i256 integer addition over the
// byte-offset convention toPtr expects.
func (bl *Builder) Offset(space build.AddressSpace, base build.Value, byteOffset build.Value) build.Value {
	if space == build.Stack {
		i8ptr := bl.b.CreateBitCast(base.(llvm.Value), llvm.PointerType(bl.ctx.Int8Type(), addrSpace(space)), "i8view")
		gep := bl.b.CreateGEP(bl.ctx.Int8Type(), i8ptr, []llvm.Value{byteOffset.(llvm.Value)}, "offset")
		return bl.b.CreateBitCast(gep, bl.ptrType(space), "fieldview")
	}
	return bl.b.CreateAdd(base.(llvm.Value), byteOffset.(llvm.Value), "offset")
}

var binOpcode = map[ast.BuiltinTag]func(llvm.Builder, llvm.Value, llvm.Value, string) llvm.Value{
	ast.Add: llvm.Builder.CreateAdd,
	ast.Sub: llvm.Builder.CreateSub,
	ast.Mul: llvm.Builder.CreateMul,
	ast.Div: llvm.Builder.CreateUDiv,
	ast.Mod: llvm.Builder.CreateURem,
	ast.And: llvm.Builder.CreateAnd,
	ast.Or:  llvm.Builder.CreateOr,
	ast.Xor: llvm.Builder.CreateXor,
	ast.Shl: llvm.Builder.CreateShl,
	ast.Shr: llvm.Builder.CreateLShr,
	// sar is lowered identically to shr on this backend (spec §9 open question).
	ast.Sar: llvm.Builder.CreateLShr,
}

var cmpOpcode = map[ast.BuiltinTag]llvm.IntPredicate{
	ast.Lt: llvm.IntULT,
	ast.Gt: llvm.IntUGT,
	ast.Eq: llvm.IntEQ,
}

func (bl *Builder) BinOp(op ast.BuiltinTag, a, b build.Value) (build.Value, error) {
	av, bv := a.(llvm.Value), b.(llvm.Value)
	if fn, ok := binOpcode[op]; ok {
		return fn(bl.b, av, bv, op.String()), nil
	}
	if pred, ok := cmpOpcode[op]; ok {
		cmp := bl.b.CreateICmp(pred, av, bv, op.String())
		return bl.b.CreateZExt(cmp, bl.i256, "boolext"), nil
	}
	switch op {
	case ast.SDiv, ast.SMod, ast.SLt, ast.SGt:
		// Open question (spec §9): signed builtins return the zero constant on this backend.
		return bl.ConstantFromField(ast.NewFieldValue(0)), nil
	case ast.Exp:
		// LLVM has no integer exponentiation instruction; spec's Non-goals exclude a software
		// exp loop from the core builder, so this is left as an unresolved intrinsic call the
		// zkEVM backend is expected to lower (the real production path would call a runtime
		// helper here, mirrored from the teacher's printf/atoi external declarations below).
		return bl.callExternal("__zkyulc_exp", []llvm.Value{av, bv}), nil
	case ast.SignExtend:
		return bl.callExternal("__zkyulc_signextend", []llvm.Value{av, bv}), nil
	case ast.Byte:
		return bl.callExternal("__zkyulc_byte", []llvm.Value{av, bv}), nil
	default:
		return nil, fmt.Errorf("llvmbuilder: unsupported binary builtin %v", op)
	}
}

func (bl *Builder) TriOp(op ast.BuiltinTag, a, b, c build.Value) (build.Value, error) {
	av, bv, cv := a.(llvm.Value), b.(llvm.Value), c.(llvm.Value)
	switch op {
	case ast.AddMod:
		return bl.callExternal("__zkyulc_addmod", []llvm.Value{av, bv, cv}), nil
	case ast.MulMod:
		return bl.callExternal("__zkyulc_mulmod", []llvm.Value{av, bv, cv}), nil
	default:
		return nil, fmt.Errorf("llvmbuilder: unsupported triadic builtin %v", op)
	}
}

func (bl *Builder) UnOp(op ast.BuiltinTag, a build.Value) (build.Value, error) {
	av := a.(llvm.Value)
	switch op {
	case ast.IsZero:
		zero := llvm.ConstInt(bl.i256, 0, false)
		cmp := bl.b.CreateICmp(llvm.IntEQ, av, zero, "iszero")
		return bl.b.CreateZExt(cmp, bl.i256, "boolext"), nil
	case ast.Not:
		return bl.b.CreateNot(av, "not"), nil
	default:
		return nil, fmt.Errorf("llvmbuilder: unsupported unary builtin %v", op)
	}
}

// callExternal declares (if needed) and calls a helper function of the given name taking n i256
// arguments and returning i256 — the same "declare an external and call it" idiom the teacher's
// genPrintf/genAtoi/genAtof use for libc helpers VSL's backend can't synthesize inline.
func (bl *Builder) callExternal(name string, args []llvm.Value) llvm.Value {
	fn, ok := bl.globals.get(name)
	if !ok {
		argTypes := make([]llvm.Type, len(args))
		for i := range argTypes {
			argTypes[i] = bl.i256
		}
		fnType := llvm.FunctionType(bl.i256, argTypes, false)
		fn = llvm.AddFunction(bl.mod, name, fnType)
		bl.globals.set(name, fn)
	}
	return bl.b.CreateCall(fn.GlobalValueType(), fn, args, name+".call")
}

func (bl *Builder) Br(target build.BasicBlock) {
	bl.b.CreateBr(target.(llvm.BasicBlock))
}

func (bl *Builder) CondBr(cond build.Value, then, els build.BasicBlock) {
	zero := llvm.ConstInt(bl.i256, 0, false)
	boolCond := bl.b.CreateICmp(llvm.IntNE, cond.(llvm.Value), zero, "tobool")
	bl.b.CreateCondBr(boolCond, then.(llvm.BasicBlock), els.(llvm.BasicBlock))
}

func (bl *Builder) Call(fn build.Function, args []build.Value) ([]build.Value, error) {
	f := fn.(*function)
	llArgs := make([]llvm.Value, 0, len(args)+f.numResults)
	for _, a := range args {
		llArgs = append(llArgs, a.(llvm.Value))
	}
	outPtrs := make([]llvm.Value, f.numResults)
	for i := range outPtrs {
		outPtrs[i] = bl.b.CreateAlloca(bl.i256, fmt.Sprintf("ret%d", i))
		llArgs = append(llArgs, outPtrs[i])
	}
	bl.b.CreateCall(f.val.GlobalValueType(), f.val, llArgs, "")
	results := make([]build.Value, f.numResults)
	for i, p := range outPtrs {
		results[i] = bl.b.CreateLoad(bl.i256, p, fmt.Sprintf("ret%d.val", i))
	}
	return results, nil
}

func (bl *Builder) Intrinsic(tag ast.BuiltinTag, args []build.Value, numResults int) ([]build.Value, error) {
	llArgs := make([]llvm.Value, len(args))
	for i, a := range args {
		llArgs[i] = a.(llvm.Value)
	}
	// Every environment/hashing/storage/call-family builtin lowers to a call against a runtime
	// intrinsic the zkEVM backend provides by name, the same "declare external, call it" pattern
	// BinOp/TriOp use above for exp/addmod/mulmod/byte/signextend.
	if numResults == 0 {
		bl.callExternalVoid("__zkyulc_"+tag.String(), llArgs)
		return nil, nil
	}
	return []build.Value{bl.callExternal("__zkyulc_" + tag.String(), llArgs)}, nil
}

func (bl *Builder) callExternalVoid(name string, args []llvm.Value) {
	fn, ok := bl.globals.get(name)
	if !ok {
		argTypes := make([]llvm.Type, len(args))
		for i := range argTypes {
			argTypes[i] = bl.i256
		}
		fnType := llvm.FunctionType(bl.ctx.VoidType(), argTypes, false)
		fn = llvm.AddFunction(bl.mod, name, fnType)
		bl.globals.set(name, fn)
	}
	bl.b.CreateCall(fn.GlobalValueType(), fn, args, "")
}

func (bl *Builder) Ret(results []build.Value) error {
	for i, r := range results {
		if i >= bl.curNum {
			return fmt.Errorf("llvmbuilder: function declared %d results, got %d", bl.curNum, len(results))
		}
		outPtr := bl.curFn.Param(bl.curFn.ParamsCount() - bl.curNum + i)
		bl.b.CreateStore(r.(llvm.Value), outPtr)
	}
	bl.b.CreateRetVoid()
	return nil
}

func (bl *Builder) Halt(tag ast.BuiltinTag, offset, length build.Value) error {
	switch tag {
	case ast.Stop:
		bl.callExternalVoid("__zkyulc_stop", nil)
	case ast.Invalid:
		bl.callExternalVoid("__zkyulc_invalid", nil)
	case ast.Return:
		bl.callExternalVoid("__zkyulc_return", []llvm.Value{offset.(llvm.Value), length.(llvm.Value)})
	case ast.Revert:
		bl.callExternalVoid("__zkyulc_revert", []llvm.Value{offset.(llvm.Value), length.(llvm.Value)})
	default:
		return fmt.Errorf("llvmbuilder: unsupported halt builtin %v", tag)
	}
	bl.b.CreateRetVoid()
	return nil
}

func (bl *Builder) CurrentBlockTerminated() bool {
	blk := bl.b.GetInsertBlock()
	return !blk.LastInstruction().IsNil() && !blk.LastInstruction().IsATerminatorInst().IsNil()
}

// Finish verifies the module and returns its textual LLVM IR. The real pipeline (out of scope per
// spec §1 Non-goals: "the zkEVM assembly emission inside LLVM, and the LLVM toolchain itself") would
// feed this into llc/the zkEVM backend the way the teacher's GenLLVM feeds a target machine's
// EmitToMemoryBuffer; this builder stops at producing verifiable IR.
func (bl *Builder) Finish() (interface{}, error) {
	if err := llvm.VerifyModule(bl.mod, llvm.ReturnStatusAction); err != nil {
		return nil, fmt.Errorf("llvmbuilder: module verification failed: %w", err)
	}
	return bl.mod.String(), nil
}
