package lower

import (
	"zkyulc/internal/ast"
	"zkyulc/internal/build"
	"zkyulc/internal/util"
)

// lowerBlock lowers every statement in blk in order, stopping early if a statement terminates the
// current basic block (leave/break/continue/return/revert/stop), the same short-circuit the
// teacher's gen() signals by returning true on RETURN_STATEMENT. It reports whether the block ended
// terminated, so callers (If/For/Switch arms, function bodies) know whether they still need to
// emit a falling-through branch or a final Ret.
func lowerBlock(ctx *Context, blk *ast.Block) (terminated bool, err error) {
	for _, s := range blk.Statements {
		if err := lowerStatement(ctx, s); err != nil {
			return false, err
		}
		if ctx.b.CurrentBlockTerminated() {
			return true, nil
		}
	}
	return false, nil
}

func lowerStatement(ctx *Context, s ast.Statement) error {
	switch s := s.(type) {
	case *ast.Block:
		ctx.pushScope()
		defer ctx.popScope()
		_, err := lowerBlock(ctx, s)
		return err

	case *ast.VariableDeclaration:
		return lowerVariableDeclaration(ctx, s)

	case *ast.Assignment:
		return lowerAssignment(ctx, s)

	case *ast.ExpressionStatement:
		return lowerExpressionStatement(ctx, s)

	case *ast.If:
		return lowerIf(ctx, s)

	case *ast.Switch:
		return lowerSwitch(ctx, s)

	case *ast.For:
		return lowerFor(ctx, s)

	case *ast.Break:
		lt, ok := ctx.currentLoop()
		if !ok {
			return semErrf("break outside of a for loop")
		}
		ctx.b.Br(lt.brkBlk)
		return nil

	case *ast.Continue:
		lt, ok := ctx.currentLoop()
		if !ok {
			return semErrf("continue outside of a for loop")
		}
		ctx.b.Br(lt.contBlk)
		return nil

	case *ast.Leave:
		return lowerLeave(ctx)

	case *ast.FunctionDefinition:
		return lowerFunctionDefinition(ctx, s)

	default:
		return semErrf("unhandled statement type %T", s)
	}
}

func lowerVariableDeclaration(ctx *Context, s *ast.VariableDeclaration) error {
	var values []build.Value
	if s.Value != nil {
		vs, err := lowerExpressionN(ctx, s.Value, len(s.Names))
		if err != nil {
			return err
		}
		values = vs
	}
	for i, n := range s.Names {
		slot := ctx.declareVar(n.Name)
		if i < len(values) {
			if err := ctx.b.Store(build.Stack, slot, values[i]); err != nil {
				return irErrf(err, "storing initializer for %q", n.Name)
			}
		}
	}
	return nil
}

func lowerAssignment(ctx *Context, s *ast.Assignment) error {
	values, err := lowerExpressionN(ctx, s.Value, len(s.Targets))
	if err != nil {
		return err
	}
	for i, name := range s.Targets {
		slot, ok := ctx.lookupVar(name)
		if !ok {
			return semErrf("assignment to undeclared variable %q", name)
		}
		if i >= len(values) {
			return semErrf("assignment to %q has no matching value", name)
		}
		if err := ctx.b.Store(build.Stack, slot, values[i]); err != nil {
			return irErrf(err, "storing assignment to %q", name)
		}
	}
	return nil
}

func lowerExpressionStatement(ctx *Context, s *ast.ExpressionStatement) error {
	if s.Call.Name.IsBuiltin() {
		switch s.Call.Name.Builtin {
		case ast.Stop, ast.Invalid:
			return ctx.b.Halt(s.Call.Name.Builtin, nil, nil)
		case ast.Return, ast.Revert:
			args, err := lowerArgs(ctx, s.Call.Args)
			if err != nil {
				return err
			}
			return ctx.b.Halt(s.Call.Name.Builtin, args[0], args[1])
		case ast.SelfDestruct:
			// selfdestruct terminates execution like stop/invalid (spec §4.6), but Halt's contract
			// only covers the four EVM halting opcodes; emit the side-effecting intrinsic first,
			// then terminate the block the same way an unconditional invalid would.
			args, err := lowerArgs(ctx, s.Call.Args)
			if err != nil {
				return err
			}
			if _, err := ctx.b.Intrinsic(ast.SelfDestruct, args, 0); err != nil {
				return irErrf(err, "lowering selfdestruct")
			}
			return ctx.b.Halt(ast.Invalid, nil, nil)
		}
	}
	_, err := lowerCall(ctx, s.Call, 0)
	return err
}

func lowerIf(ctx *Context, s *ast.If) error {
	cond, err := lowerExpression(ctx, s.Cond)
	if err != nil {
		return err
	}
	thenBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelIfThen))
	mergeBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelIfEnd))
	ctx.b.CondBr(cond, thenBlk, mergeBlk)

	ctx.setInsertPoint(ctx.curFn, thenBlk)
	ctx.pushScope()
	terminated, err := lowerBlock(ctx, s.Body)
	ctx.popScope()
	if err != nil {
		return err
	}
	if !terminated {
		ctx.b.Br(mergeBlk)
	}
	ctx.setInsertPoint(ctx.curFn, mergeBlk)
	return nil
}

// lowerSwitch lowers to a cascade of equality comparisons against s.Value, per spec §4.4 (no
// jump-table requirement); a trailing default (if present) is the final else-arm, otherwise falling
// through all cases reaches an empty merge block.
func lowerSwitch(ctx *Context, s *ast.Switch) error {
	scrut, err := lowerExpression(ctx, s.Value)
	if err != nil {
		return err
	}
	mergeBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelSwitchEnd))

	for i, c := range s.Cases {
		if c.Value == nil {
			// Default arm: lower unconditionally in the current block (parser already enforces
			// this is the last case).
			ctx.pushScope()
			terminated, err := lowerBlock(ctx, c.Body)
			ctx.popScope()
			if err != nil {
				return err
			}
			if !terminated {
				ctx.b.Br(mergeBlk)
			}
			continue
		}
		caseVal := ctx.b.ConstantFromField(c.Value.Value)
		eq, err := ctx.b.BinOp(ast.Eq, scrut, caseVal)
		if err != nil {
			return err
		}
		caseBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelSwitchCase))
		nextBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelSwitchNext))
		ctx.b.CondBr(eq, caseBlk, nextBlk)

		ctx.setInsertPoint(ctx.curFn, caseBlk)
		ctx.pushScope()
		terminated, err := lowerBlock(ctx, c.Body)
		ctx.popScope()
		if err != nil {
			return err
		}
		if !terminated {
			ctx.b.Br(mergeBlk)
		}

		ctx.setInsertPoint(ctx.curFn, nextBlk)
		if i == len(s.Cases)-1 {
			// Ran out of cases with no default: the final "next" block is the fallthrough merge.
			ctx.b.Br(mergeBlk)
		}
	}
	ctx.setInsertPoint(ctx.curFn, mergeBlk)
	return nil
}

func lowerFor(ctx *Context, s *ast.For) error {
	ctx.pushScope()
	if _, err := lowerBlock(ctx, s.Init); err != nil {
		ctx.popScope()
		return err
	}

	headBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelForHead))
	bodyBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelForBody))
	postBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelForPost))
	exitBlk := ctx.b.AppendBlock(ctx.curFn, util.NewLabel(util.LabelForEnd))

	ctx.b.Br(headBlk)
	ctx.setInsertPoint(ctx.curFn, headBlk)
	cond, err := lowerExpression(ctx, s.Cond)
	if err != nil {
		ctx.popScope()
		return err
	}
	ctx.b.CondBr(cond, bodyBlk, exitBlk)

	ctx.pushLoop(loopTarget{contBlk: postBlk, brkBlk: exitBlk})
	ctx.setInsertPoint(ctx.curFn, bodyBlk)
	ctx.pushScope()
	terminated, err := lowerBlock(ctx, s.Body)
	ctx.popScope()
	ctx.popLoop()
	if err != nil {
		ctx.popScope()
		return err
	}
	if !terminated {
		ctx.b.Br(postBlk)
	}

	ctx.setInsertPoint(ctx.curFn, postBlk)
	if _, err := lowerBlock(ctx, s.Post); err != nil {
		ctx.popScope()
		return err
	}
	ctx.b.Br(headBlk)

	ctx.setInsertPoint(ctx.curFn, exitBlk)
	ctx.popScope()
	return nil
}

func lowerLeave(ctx *Context) error {
	if ctx.frame == nil {
		return semErrf("leave outside of a function body")
	}
	vals := make([]build.Value, len(ctx.frame.returnSlots))
	for i, slot := range ctx.frame.returnSlots {
		v, err := ctx.b.Load(build.Stack, slot)
		if err != nil {
			return irErrf(err, "loading named return %q", ctx.frame.self.returns[i].Name)
		}
		vals[i] = v
	}
	return ctx.b.Ret(vals)
}

func lowerFunctionDefinition(ctx *Context, s *ast.FunctionDefinition) error {
	f, ok := ctx.getFunc(s.Name)
	if !ok {
		return semErrf("function %q was not declared (internal error: declare pass missed it)", s.Name)
	}

	savedFn, savedBlk, savedFrame := ctx.curFn, ctx.curBlk, ctx.frame

	entry := ctx.b.AppendBlock(f.handle, "entry")
	ctx.setInsertPoint(f.handle, entry)
	ctx.pushScope()

	for i, p := range s.Params {
		slot := ctx.declareVar(p.Name)
		if err := ctx.b.Store(build.Stack, slot, ctx.b.Param(f.handle, i)); err != nil {
			return irErrf(err, "binding parameter %q", p.Name)
		}
	}
	returnSlots := make([]build.Value, len(s.Returns))
	for i, r := range s.Returns {
		slot := ctx.declareVar(r.Name)
		if err := ctx.b.Store(build.Stack, slot, ctx.b.ConstantFromField(ast.NewFieldValue(0))); err != nil {
			return irErrf(err, "zero-initializing named return %q", r.Name)
		}
		returnSlots[i] = slot
	}
	ctx.frame = &funcFrame{self: f, returnSlots: returnSlots}

	terminated, err := lowerBlock(ctx, s.Body)
	ctx.popScope()
	if err != nil {
		return err
	}
	if !terminated {
		if err := lowerLeave(ctx); err != nil {
			return err
		}
	}

	ctx.frame = savedFrame
	ctx.setInsertPoint(savedFn, savedBlk)
	return nil
}
