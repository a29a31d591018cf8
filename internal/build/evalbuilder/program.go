// Package evalbuilder is the in-memory interpreting implementation of build.Builder. It exists
// purely for tests: spec §1 explicitly allows "a generic x86 backend used for testing" alongside
// the real zkEVM/LLVM path, and this is that allowance realized as a pure-Go interpreter instead of
// a second native backend, since the task forbids invoking any actual compiler toolchain. Every
// testable property in spec §8 and all six worked scenarios are asserted against this builder.
package evalbuilder

import (
	"fmt"

	"zkyulc/internal/ast"
	"zkyulc/internal/build"
)

type reg int

type opcode int

const (
	opConst opcode = iota
	opAlloca
	opLoad
	opStore
	opOffset
	opBin
	opTri
	opUn
	opCall
	opIntrinsic
)

type instr struct {
	op     opcode
	dst    reg
	dsts   []reg
	tag    ast.BuiltinTag
	args   []reg
	space  build.AddressSpace
	fv     *ast.FieldValue
	callee *function
	slot   string
}

type termKind int

const (
	termNone termKind = iota
	termBr
	termCondBr
	termRet
	termHalt
)

type terminator struct {
	kind         termKind
	cond         reg
	thenB, elseB *block
	brB          *block
	results      []reg
	haltTag      ast.BuiltinTag
	offset, len_ reg
	hasOffset    bool
}

type block struct {
	label  string
	instrs []instr
	term   *terminator
}

type function struct {
	name                   string
	numParams, numResults  int
	blocks                 []*block
	entry                  *block
	nextSlot               int
}

// Program is the artifact build.Builder.Finish returns: every function the lowering package
// declared, ready to execute via Machine.
type Program struct {
	Functions map[string]*function
	Order     []string
}

// Builder assembles a Program by recording instructions in call order, exactly as
// internal/lower emits them; it performs no optimization and no verification beyond what is
// needed to keep the interpreter from indexing out of bounds.
type Builder struct {
	prog    *Program
	curFn   *function
	curBlk  *block
	regSeq  reg
	strings map[string]reg // allocated empty by NewBuilder; nothing reads or fills it
	data    map[string][]byte
}

// NewBuilder constructs an empty Builder. data is stored on the Builder keyed by object/data name,
// but no builtin reads it: datasize/dataoffset are resolved to constants by internal/lower, and the
// datacopy intrinsic copies nothing.
func NewBuilder(data map[string][]byte) *Builder {
	return &Builder{
		prog:    &Program{Functions: map[string]*function{}},
		strings: map[string]reg{},
		data:    data,
	}
}

func (b *Builder) newReg() reg {
	b.regSeq++
	return b.regSeq
}

func (b *Builder) DeclareFunction(name string, numParams, numResults int) (build.Function, error) {
	if _, exists := b.prog.Functions[name]; exists {
		return nil, fmt.Errorf("evalbuilder: function %q already declared", name)
	}
	fn := &function{name: name, numParams: numParams, numResults: numResults}
	b.prog.Functions[name] = fn
	b.prog.Order = append(b.prog.Order, name)
	return fn, nil
}

func (b *Builder) AppendBlock(fn build.Function, label string) build.BasicBlock {
	f := fn.(*function)
	blk := &block{label: label}
	f.blocks = append(f.blocks, blk)
	if f.entry == nil {
		f.entry = blk
	}
	return blk
}

func (b *Builder) SetInsertPoint(fn build.Function, blk build.BasicBlock) {
	b.curFn = fn.(*function)
	b.curBlk = blk.(*block)
}

func (b *Builder) Param(fn build.Function, i int) build.Value {
	// Parameters are passed into Machine.Run as an explicit slice and read by a reserved negative
	// "virtual" register range; paramReg keeps the encoding local to this file.
	return paramReg(i)
}

type paramReg int

func (b *Builder) ConstantFromField(v *ast.FieldValue) build.Value {
	r := b.newReg()
	b.emit(instr{op: opConst, dst: r, fv: v})
	return r
}

func (b *Builder) Alloca(name string) build.Value {
	r := b.newReg()
	slot := fmt.Sprintf("%s.%d", name, b.curFn.nextSlot)
	b.curFn.nextSlot++
	b.emit(instr{op: opAlloca, dst: r, slot: slot})
	return r
}

func (b *Builder) Load(space build.AddressSpace, addr build.Value) (build.Value, error) {
	r := b.newReg()
	b.emit(instr{op: opLoad, dst: r, args: []reg{toReg(addr)}, space: space})
	return r, nil
}

func (b *Builder) Store(space build.AddressSpace, addr build.Value, val build.Value) error {
	b.emit(instr{op: opStore, args: []reg{toReg(addr), toReg(val)}, space: space})
	return nil
}

func (b *Builder) Offset(space build.AddressSpace, base build.Value, byteOffset build.Value) build.Value {
	r := b.newReg()
	b.emit(instr{op: opOffset, dst: r, args: []reg{toReg(base), toReg(byteOffset)}, space: space})
	return r
}

func (b *Builder) BinOp(op ast.BuiltinTag, a, bv build.Value) (build.Value, error) {
	r := b.newReg()
	b.emit(instr{op: opBin, dst: r, tag: op, args: []reg{toReg(a), toReg(bv)}})
	return r, nil
}

func (b *Builder) TriOp(op ast.BuiltinTag, a, bv, c build.Value) (build.Value, error) {
	r := b.newReg()
	b.emit(instr{op: opTri, dst: r, tag: op, args: []reg{toReg(a), toReg(bv), toReg(c)}})
	return r, nil
}

func (b *Builder) UnOp(op ast.BuiltinTag, a build.Value) (build.Value, error) {
	r := b.newReg()
	b.emit(instr{op: opUn, dst: r, tag: op, args: []reg{toReg(a)}})
	return r, nil
}

func (b *Builder) Br(target build.BasicBlock) {
	b.curBlk.term = &terminator{kind: termBr, brB: target.(*block)}
}

func (b *Builder) CondBr(cond build.Value, then, els build.BasicBlock) {
	b.curBlk.term = &terminator{kind: termCondBr, cond: toReg(cond), thenB: then.(*block), elseB: els.(*block)}
}

func (b *Builder) Call(fn build.Function, args []build.Value) ([]build.Value, error) {
	f := fn.(*function)
	argRegs := make([]reg, len(args))
	for i, a := range args {
		argRegs[i] = toReg(a)
	}
	dsts := make([]reg, f.numResults)
	for i := range dsts {
		dsts[i] = b.newReg()
	}
	b.emit(instr{op: opCall, dsts: dsts, callee: f, args: argRegs})
	out := make([]build.Value, len(dsts))
	for i, d := range dsts {
		out[i] = d
	}
	return out, nil
}

func (b *Builder) Intrinsic(tag ast.BuiltinTag, args []build.Value, numResults int) ([]build.Value, error) {
	argRegs := make([]reg, len(args))
	for i, a := range args {
		argRegs[i] = toReg(a)
	}
	dsts := make([]reg, numResults)
	for i := range dsts {
		dsts[i] = b.newReg()
	}
	b.emit(instr{op: opIntrinsic, dsts: dsts, tag: tag, args: argRegs})
	out := make([]build.Value, len(dsts))
	for i, d := range dsts {
		out[i] = d
	}
	return out, nil
}

func (b *Builder) Ret(results []build.Value) error {
	regs := make([]reg, len(results))
	for i, r := range results {
		regs[i] = toReg(r)
	}
	b.curBlk.term = &terminator{kind: termRet, results: regs}
	return nil
}

func (b *Builder) Halt(tag ast.BuiltinTag, offset, length build.Value) error {
	t := &terminator{kind: termHalt, haltTag: tag}
	if offset != nil {
		t.offset = toReg(offset)
		t.len_ = toReg(length)
		t.hasOffset = true
	}
	b.curBlk.term = t
	return nil
}

func (b *Builder) CurrentBlockTerminated() bool {
	return b.curBlk.term != nil
}

func (b *Builder) Finish() (interface{}, error) {
	for name, fn := range b.prog.Functions {
		for _, blk := range fn.blocks {
			if blk.term == nil {
				return nil, fmt.Errorf("evalbuilder: function %q block %q has no terminator", name, blk.label)
			}
		}
	}
	return b.prog, nil
}

func (b *Builder) emit(i instr) {
	b.curBlk.instrs = append(b.curBlk.instrs, i)
}

func toReg(v build.Value) reg {
	switch t := v.(type) {
	case reg:
		return t
	case paramReg:
		return reg(-int(t) - 1) // negative range encodes "read from the current frame's params"
	default:
		panic(fmt.Sprintf("evalbuilder: value of unexpected type %T", v))
	}
}
