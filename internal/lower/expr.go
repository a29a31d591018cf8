package lower

import (
	"zkyulc/internal/ast"
	"zkyulc/internal/build"
)

// lowerExpression lowers e and requires it to produce exactly one value (the common case: an If
// condition, a Switch scrutinee, a For condition, an operand of another call).
func lowerExpression(ctx *Context, e ast.Expression) (build.Value, error) {
	vals, err := lowerExpressionN(ctx, e, 1)
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

// lowerExpressionN lowers e in a context expecting exactly want results (want may be 0 for a
// discarded call). Only a FunctionCall can legitimately produce something other than exactly one
// value; every other Expression variant is always single-valued.
func lowerExpressionN(ctx *Context, e ast.Expression, want int) ([]build.Value, error) {
	switch e := e.(type) {
	case *ast.Identifier:
		if want != 1 {
			return nil, semErrf("identifier %q used where %d values are expected", e.Name, want)
		}
		slot, ok := ctx.lookupVar(e.Name)
		if !ok {
			return nil, semErrf("reference to undeclared variable %q", e.Name)
		}
		v, err := ctx.b.Load(build.Stack, slot)
		if err != nil {
			return nil, irErrf(err, "loading variable %q", e.Name)
		}
		return []build.Value{v}, nil

	case *ast.Literal:
		if want != 1 {
			return nil, semErrf("literal used where %d values are expected", want)
		}
		return []build.Value{ctx.b.ConstantFromField(e.Value)}, nil

	case *ast.FunctionCall:
		return lowerCall(ctx, e, want)

	default:
		return nil, semErrf("unhandled expression type %T", e)
	}
}

// lowerArgs evaluates each argument expression as a single value, in left-to-right order.
func lowerArgs(ctx *Context, args []ast.Expression) ([]build.Value, error) {
	out := make([]build.Value, len(args))
	for i, a := range args {
		v, err := lowerExpression(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lowerCall lowers a FunctionCall, dispatching to the builtin translator (builtin.go, spec §4.6) or
// to a user-defined call through the function registry. want is the number of results the caller
// expects; it is validated against the callee's declared arity here so every later package can
// assume arity has already been checked.
func lowerCall(ctx *Context, call *ast.FunctionCall, want int) ([]build.Value, error) {
	if call.Name.IsBuiltin() {
		tag := call.Name.Builtin
		wantArgs, wantRets := tag.Arity()
		if len(call.Args) != wantArgs {
			return nil, semErrf("%s expects %d arguments, got %d", tag, wantArgs, len(call.Args))
		}
		if want != wantRets {
			return nil, semErrf("%s produces %d results, %d expected", tag, wantRets, want)
		}
		if tag == ast.DataSize || tag == ast.DataOffset {
			return lowerDataBuiltin(ctx, call)
		}
		args, err := lowerArgs(ctx, call.Args)
		if err != nil {
			return nil, err
		}
		return translateBuiltin(ctx, tag, args)
	}

	f, ok := ctx.getFunc(call.Name.User)
	if !ok {
		return nil, semErrf("call to undeclared function %q", call.Name.User)
	}
	if len(call.Args) != f.numParams() {
		return nil, semErrf("function %q expects %d arguments, got %d", call.Name.User, f.numParams(), len(call.Args))
	}
	if want != f.numResults() {
		return nil, semErrf("function %q produces %d results, %d expected", call.Name.User, f.numResults(), want)
	}
	args, err := lowerArgs(ctx, call.Args)
	if err != nil {
		return nil, err
	}
	results, err := ctx.b.Call(f.handle, args)
	if err != nil {
		return nil, irErrf(err, "calling %q", call.Name.User)
	}
	return results, nil
}

// lowerDataBuiltin resolves datasize/dataoffset against the precomputed Data-blob length table (the
// only two data-linkage builtins whose argument is a literal name rather than a Value; datacopy
// takes three ordinary expressions, typically fed by a prior datasize/dataoffset call, so it is
// translated as a plain 3-arg Intrinsic in builtin.go instead). A nested object name (as opposed to
// a plain Data blob) cannot be sized before its own code has been generated; spec's Non-goals
// exclude the post-emission linker pass a real zkEVM compiler would run to patch these in, so an
// unresolved name lowers to the zero constant instead of erroring.
func lowerDataBuiltin(ctx *Context, call *ast.FunctionCall) ([]build.Value, error) {
	name, ok := literalStringArg(call.Args[0])
	if !ok {
		return nil, semErrf("%s requires a string literal naming a data object", call.Name.Builtin)
	}
	switch call.Name.Builtin {
	case ast.DataSize:
		return []build.Value{ctx.b.ConstantFromField(ast.NewFieldValue(ctx.dataSizes[name]))}, nil
	case ast.DataOffset:
		// This evaluator assigns no real memory layout to data segments (no artifact linking,
		// per Non-goals), so every offset is zero.
		return []build.Value{ctx.b.ConstantFromField(ast.NewFieldValue(0))}, nil
	}
	return nil, semErrf("unreachable data builtin %v", call.Name.Builtin)
}

func literalStringArg(e ast.Expression) (string, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok {
		return "", false
	}
	if len(lit.Raw) >= 2 && (lit.Raw[0] == '"' || lit.Raw[0] == '\'') {
		return lit.Raw[1 : len(lit.Raw)-1], true
	}
	return "", false
}
