package lower

import "zkyulc/internal/ast"

// Validate checks the structural invariants spec §4 calls I1-I5 against root, before any IR is
// emitted. It is adapted from the teacher's ir/validate.go parallel-walk shape (one recursive
// Node.validate call per statement kind) but checks Yul's structural shape rather than VSL's
// int/float type-compatibility table, since every Yul value is a single untyped 256-bit word and
// there is nothing to type-check.
//
// I1 (every block is lexically balanced) and I5 (a switch has at least one case or default) are
// already guaranteed by construction: the parser never returns an *ast.Block without a matching
// closing brace, and parseSwitch already rejects an empty case list. They are not re-checked here.
// I2 (unique renaming, no shadowing detection required) holds by the Solidity toolchain's contract
// with its IR and is likewise not something this core can verify; it is documented, not coded. I3
// and I4 are real structural properties this tree can violate, so they are checked below.
func Validate(root *ast.Object) error {
	return validateObject(root, nil)
}

func validateObject(o *ast.Object, enclosing []string) error {
	if o.Code != nil {
		if err := validateBlock(o.Code.Block, enclosing, false); err != nil {
			return err
		}
	}
	for _, child := range o.Objects {
		if err := validateObject(child, enclosing); err != nil {
			return err
		}
	}
	return nil
}

// validateBlock walks blk's statements. enclosing is the stack of function names whose bodies blk
// is nested inside (for I3); inLoop is whether blk is reachable without crossing a function
// boundary from a *ast.For body (for I4's break/continue half).
func validateBlock(blk *ast.Block, enclosing []string, inLoop bool) error {
	for _, s := range blk.Statements {
		if err := validateStatement(s, enclosing, inLoop); err != nil {
			return err
		}
	}
	return nil
}

func validateStatement(s ast.Statement, enclosing []string, inLoop bool) error {
	switch s := s.(type) {
	case *ast.Block:
		return validateBlock(s, enclosing, inLoop)

	case *ast.If:
		return validateBlock(s.Body, enclosing, inLoop)

	case *ast.Switch:
		for _, c := range s.Cases {
			if err := validateBlock(c.Body, enclosing, inLoop); err != nil {
				return err
			}
		}
		return nil

	case *ast.For:
		if err := validateBlock(s.Init, enclosing, inLoop); err != nil {
			return err
		}
		if err := validateBlock(s.Body, enclosing, true); err != nil {
			return err
		}
		return validateBlock(s.Post, enclosing, inLoop)

	case *ast.Break:
		if !inLoop {
			p := s.Position()
			return semErrf("break at %d:%d is not inside a for loop", p.Line, p.Col)
		}
		return nil

	case *ast.Continue:
		if !inLoop {
			p := s.Position()
			return semErrf("continue at %d:%d is not inside a for loop", p.Line, p.Col)
		}
		return nil

	case *ast.Leave:
		if len(enclosing) == 0 {
			p := s.Position()
			return semErrf("leave at %d:%d is not inside a function body", p.Line, p.Col)
		}
		return nil

	case *ast.FunctionDefinition:
		for _, name := range enclosing {
			if name == s.Name {
				p := s.Position()
				return semErrf("function %q at %d:%d nests inside its own definition", s.Name, p.Line, p.Col)
			}
		}
		// A nested function body starts its own fresh loop context: break/continue inside it
		// cannot target a for loop in an enclosing function (spec's I4 is scoped per function,
		// matching the teacher's validate treating FUNCTION as its own walk root).
		return validateBlock(s.Body, append(append([]string(nil), enclosing...), s.Name), false)

	case *ast.VariableDeclaration, *ast.Assignment, *ast.ExpressionStatement:
		return nil

	default:
		return semErrf("unhandled statement type %T during validation", s)
	}
}
