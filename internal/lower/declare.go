package lower

import "zkyulc/internal/ast"

// declareFunctions is pass one of the two-pass declarator (spec §4.3): it walks blk and every
// block nested inside it, declaring every ast.FunctionDefinition it finds with the underlying
// Builder before pass two (lowerBlock in stmt.go) lowers any statement body. This is what lets a
// function call a sibling defined later in the same block, or itself, exactly like the teacher's
// genFuncHeader pass running before any genFuncBody.
func declareFunctions(ctx *Context, blk *ast.Block) error {
	for _, s := range blk.Statements {
		if err := declareFunctionsInStatement(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func declareFunctionsInStatement(ctx *Context, s ast.Statement) error {
	switch s := s.(type) {
	case *ast.FunctionDefinition:
		if _, exists := ctx.getFunc(s.Name); exists {
			return semErrf("function %q declared more than once", s.Name)
		}
		handle, err := ctx.b.DeclareFunction(s.Name, len(s.Params), len(s.Returns))
		if err != nil {
			return irErrf(err, "declaring function %q", s.Name)
		}
		ctx.putFunc(s.Name, &fn{handle: handle, params: s.Params, returns: s.Returns})
		// A function's own body can itself declare further nested functions (Yul allows function
		// definitions anywhere a statement is valid); fold its body into the same pass so nested
		// declarations are visible everywhere, matching the single global registry spec §9 calls
		// for rather than a registry scoped per enclosing function.
		return declareFunctions(ctx, s.Body)
	case *ast.Block:
		return declareFunctions(ctx, s)
	case *ast.If:
		return declareFunctions(ctx, s.Body)
	case *ast.For:
		if err := declareFunctions(ctx, s.Init); err != nil {
			return err
		}
		if err := declareFunctions(ctx, s.Post); err != nil {
			return err
		}
		return declareFunctions(ctx, s.Body)
	case *ast.Switch:
		for _, c := range s.Cases {
			if err := declareFunctions(ctx, c.Body); err != nil {
				return err
			}
		}
	}
	return nil
}
