package ast

import "fmt"

// BuiltinTag enumerates every EVM opcode identifier that the Yul grammar treats as a built-in
// function call rather than a user-defined reference. A FunctionCall whose Name does not resolve
// to one of these tags is a UserDefined reference into the function registry.
type BuiltinTag int

// Name identifies the callee of a FunctionCall. Exactly one of User or Builtin is meaningful;
// IsBuiltin reports which.
type Name struct {
	User    string
	Builtin BuiltinTag
}

// IsBuiltin reports whether n resolves to a built-in opcode rather than a user-defined function.
func (n Name) IsBuiltin() bool {
	return n.Builtin != notBuiltin
}

// String returns the textual spelling of the name, suitable for re-emission by the pretty printer.
func (n Name) String() string {
	if n.IsBuiltin() {
		return builtinText[n.Builtin]
	}
	return n.User
}

const notBuiltin BuiltinTag = 0

// Builtin tags. notBuiltin occupies the zero value so a zero Name is never mistaken for a builtin.
const (
	_ BuiltinTag = iota // notBuiltin
	// Arithmetic
	Add
	Sub
	Mul
	Div
	SDiv
	Mod
	SMod
	AddMod
	MulMod
	Exp
	SignExtend
	// Comparison
	Lt
	Gt
	SLt
	SGt
	Eq
	IsZero
	// Bitwise
	And
	Or
	Xor
	Not
	Shl
	Shr
	Sar
	Byte
	Pop
	// Hashing
	Keccak256
	// Memory
	MLoad
	MStore
	MStore8
	MSize
	// Storage
	SLoad
	SStore
	LoadImmutable
	SetImmutable
	// Calldata
	CallDataLoad
	CallDataSize
	CallDataCopy
	// Code
	CodeSize
	CodeCopy
	ExtCodeSize
	ExtCodeCopy
	ExtCodeHash
	// Returndata
	ReturnDataSize
	ReturnDataCopy
	// Control
	Return
	Revert
	Stop
	Invalid
	SelfDestruct
	// Logs
	Log0
	Log1
	Log2
	Log3
	Log4
	// Environment
	Address
	Caller
	CallValue
	Timestamp
	Number
	Gas
	Origin
	GasPrice
	BlockHash
	CoinBase
	Difficulty
	GasLimit
	ChainID
	Balance
	SelfBalance
	// Calls
	Call
	CallCode
	DelegateCall
	StaticCall
	// Creation
	Create
	Create2
	// Data/object linkage
	DataSize
	DataOffset
	DataCopy
	// Linkage stubs
	LinkerSymbol
	MemoryGuard
	PC

	numBuiltins
)

// builtinText gives the source spelling for every builtin tag, indexed by tag value.
var builtinText = [numBuiltins]string{
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", SDiv: "sdiv", Mod: "mod", SMod: "smod",
	AddMod: "addmod", MulMod: "mulmod", Exp: "exp", SignExtend: "signextend",
	Lt: "lt", Gt: "gt", SLt: "slt", SGt: "sgt", Eq: "eq", IsZero: "iszero",
	And: "and", Or: "or", Xor: "xor", Not: "not", Shl: "shl", Shr: "shr", Sar: "sar",
	Byte: "byte", Pop: "pop",
	Keccak256: "keccak256",
	MLoad:     "mload", MStore: "mstore", MStore8: "mstore8", MSize: "msize",
	SLoad: "sload", SStore: "sstore", LoadImmutable: "loadimmutable", SetImmutable: "setimmutable",
	CallDataLoad: "calldataload", CallDataSize: "calldatasize", CallDataCopy: "calldatacopy",
	CodeSize: "codesize", CodeCopy: "codecopy", ExtCodeSize: "extcodesize",
	ExtCodeCopy: "extcodecopy", ExtCodeHash: "extcodehash",
	ReturnDataSize: "returndatasize", ReturnDataCopy: "returndatacopy",
	Return: "return", Revert: "revert", Stop: "stop", Invalid: "invalid", SelfDestruct: "selfdestruct",
	Log0: "log0", Log1: "log1", Log2: "log2", Log3: "log3", Log4: "log4",
	Address: "address", Caller: "caller", CallValue: "callvalue", Timestamp: "timestamp",
	Number: "number", Gas: "gas", Origin: "origin", GasPrice: "gasprice", BlockHash: "blockhash",
	CoinBase: "coinbase", Difficulty: "difficulty", GasLimit: "gaslimit", ChainID: "chainid",
	Balance: "balance", SelfBalance: "selfbalance",
	Call: "call", CallCode: "callcode", DelegateCall: "delegatecall", StaticCall: "staticcall",
	Create: "create", Create2: "create2",
	DataSize: "datasize", DataOffset: "dataoffset", DataCopy: "datacopy",
	LinkerSymbol: "linkersymbol", MemoryGuard: "memoryguard", PC: "pc",
}

// Arity reports the (argument count, return count) of a builtin, used by the expression lowerer
// (lowerCall) to validate call sites without consulting the function registry, and by the -v
// builtin-coverage table.
func (t BuiltinTag) Arity() (args, rets int) {
	switch a := builtinArity[t]; {
	case a.args >= 0:
		return a.args, a.rets
	default:
		return 0, 0
	}
}

type arity struct{ args, rets int }

var builtinArity = map[BuiltinTag]arity{
	Add: {2, 1}, Sub: {2, 1}, Mul: {2, 1}, Div: {2, 1}, SDiv: {2, 1}, Mod: {2, 1}, SMod: {2, 1},
	AddMod: {3, 1}, MulMod: {3, 1}, Exp: {2, 1}, SignExtend: {2, 1},
	Lt: {2, 1}, Gt: {2, 1}, SLt: {2, 1}, SGt: {2, 1}, Eq: {2, 1}, IsZero: {1, 1},
	And: {2, 1}, Or: {2, 1}, Xor: {2, 1}, Not: {1, 1}, Shl: {2, 1}, Shr: {2, 1}, Sar: {2, 1},
	Byte: {2, 1}, Pop: {1, 0},
	Keccak256: {2, 1},
	MLoad:     {1, 1}, MStore: {2, 0}, MStore8: {2, 0}, MSize: {0, 1},
	SLoad: {1, 1}, SStore: {2, 0}, LoadImmutable: {1, 1}, SetImmutable: {3, 0},
	CallDataLoad: {1, 1}, CallDataSize: {0, 1}, CallDataCopy: {3, 0},
	CodeSize: {0, 1}, CodeCopy: {3, 0}, ExtCodeSize: {1, 1}, ExtCodeCopy: {4, 0}, ExtCodeHash: {1, 1},
	ReturnDataSize: {0, 1}, ReturnDataCopy: {3, 0},
	Return: {2, 0}, Revert: {2, 0}, Stop: {0, 0}, Invalid: {0, 0}, SelfDestruct: {1, 0},
	Log0: {2, 0}, Log1: {3, 0}, Log2: {4, 0}, Log3: {5, 0}, Log4: {6, 0},
	Address: {0, 1}, Caller: {0, 1}, CallValue: {0, 1}, Timestamp: {0, 1}, Number: {0, 1},
	Gas: {0, 1}, Origin: {0, 1}, GasPrice: {0, 1}, BlockHash: {1, 1}, CoinBase: {0, 1},
	Difficulty: {0, 1}, GasLimit: {0, 1}, ChainID: {0, 1}, Balance: {1, 1}, SelfBalance: {0, 1},
	Call: {7, 1}, CallCode: {7, 1}, DelegateCall: {6, 1}, StaticCall: {6, 1},
	Create: {3, 1}, Create2: {4, 1},
	DataSize: {1, 1}, DataOffset: {1, 1}, DataCopy: {3, 0},
	LinkerSymbol: {1, 1}, MemoryGuard: {1, 1}, PC: {0, 1},
}

// builtinsByLength buckets the name lookup table by identifier length, the same scheme the
// teacher's frontend/lang.go uses for VSL's much smaller keyword set. With ~85 builtins the
// bucketing keeps the scan short without reaching for a full hash map.
var builtinsByLength [16][]BuiltinTag

func init() {
	for t := BuiltinTag(1); t < numBuiltins; t++ {
		s := builtinText[t]
		if len(s) == 0 || len(s) >= len(builtinsByLength) {
			panic(fmt.Sprintf("ast: builtin tag %d has no (or too long a) text entry", t))
		}
		builtinsByLength[len(s)] = append(builtinsByLength[len(s)], t)
	}
}

// LookupBuiltin returns the BuiltinTag for identifier s, or ok == false if s is not a built-in
// name (in which case the caller should treat it as a UserDefined reference).
func LookupBuiltin(s string) (tag BuiltinTag, ok bool) {
	if len(s) == 0 || len(s) >= len(builtinsByLength) {
		return notBuiltin, false
	}
	for _, t := range builtinsByLength[len(s)] {
		if builtinText[t] == s {
			return t, true
		}
	}
	return notBuiltin, false
}

// AllBuiltins enumerates the full builtin table, used by the completeness self-check test that
// verifies every tag has a translation case in the lowering package.
func AllBuiltins() []BuiltinTag {
	out := make([]BuiltinTag, 0, numBuiltins-1)
	for t := BuiltinTag(1); t < numBuiltins; t++ {
		out = append(out, t)
	}
	return out
}
