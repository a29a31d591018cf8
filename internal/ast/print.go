package ast

import (
	"fmt"
	"strings"
)

// Print renders an Object back to Yul source text. It exists for two reasons: debug dumps (the
// teacher's nodetype.go carries the same kind of recursive Print(depth) for its generic Node), and
// the round-trip testable property P1 (parse(print(parse(src))) == parse(src)).
func Print(o *Object) string {
	var b strings.Builder
	printObject(&b, o, 0)
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("    ")
	}
}

func printObject(b *strings.Builder, o *Object, depth int) {
	indent(b, depth)
	fmt.Fprintf(b, "object %q {\n", o.Name)
	if o.Code != nil {
		indent(b, depth+1)
		b.WriteString("code ")
		printBlock(b, o.Code.Block, depth+1)
		b.WriteString("\n")
	}
	for _, d := range o.Datas {
		indent(b, depth+1)
		fmt.Fprintf(b, "data %q hex\"%x\"\n", d.Name, d.Bytes)
	}
	for _, child := range o.Objects {
		printObject(b, child, depth+1)
	}
	indent(b, depth)
	b.WriteString("}\n")
}

func printBlock(b *strings.Builder, blk *Block, depth int) {
	b.WriteString("{\n")
	for _, s := range blk.Statements {
		printStatement(b, s, depth+1)
	}
	indent(b, depth)
	b.WriteString("}")
}

func printTypedNames(names []TypedName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		if n.Type != "" {
			parts[i] = n.Name + ":" + n.Type
		} else {
			parts[i] = n.Name
		}
	}
	return strings.Join(parts, ", ")
}

func printStatement(b *strings.Builder, s Statement, depth int) {
	indent(b, depth)
	switch s := s.(type) {
	case *ExpressionStatement:
		b.WriteString(printExpr(s.Call))
		b.WriteString("\n")
	case *VariableDeclaration:
		fmt.Fprintf(b, "let %s", printTypedNames(s.Names))
		if s.Value != nil {
			fmt.Fprintf(b, " := %s", printExpr(s.Value))
		}
		b.WriteString("\n")
	case *Assignment:
		fmt.Fprintf(b, "%s := %s\n", strings.Join(s.Targets, ", "), printExpr(s.Value))
	case *If:
		fmt.Fprintf(b, "if %s ", printExpr(s.Cond))
		printBlock(b, s.Body, depth)
		b.WriteString("\n")
	case *Switch:
		fmt.Fprintf(b, "switch %s\n", printExpr(s.Value))
		for _, c := range s.Cases {
			indent(b, depth)
			if c.Value != nil {
				fmt.Fprintf(b, "case %s ", c.Value.Raw)
			} else {
				b.WriteString("default ")
			}
			printBlock(b, c.Body, depth)
			b.WriteString("\n")
		}
	case *For:
		b.WriteString("for ")
		printBlock(b, s.Init, depth)
		fmt.Fprintf(b, " %s ", printExpr(s.Cond))
		printBlock(b, s.Post, depth)
		b.WriteString(" ")
		printBlock(b, s.Body, depth)
		b.WriteString("\n")
	case *Break:
		b.WriteString("break\n")
	case *Continue:
		b.WriteString("continue\n")
	case *Leave:
		b.WriteString("leave\n")
	case *Block:
		printBlock(b, s, depth)
		b.WriteString("\n")
	case *FunctionDefinition:
		fmt.Fprintf(b, "function %s(%s)", s.Name, printTypedNames(s.Params))
		if len(s.Returns) > 0 {
			fmt.Fprintf(b, " -> %s", printTypedNames(s.Returns))
		}
		b.WriteString(" ")
		printBlock(b, s.Body, depth)
		b.WriteString("\n")
	default:
		fmt.Fprintf(b, "/* unknown statement %T */\n", s)
	}
}

func printExpr(e Expression) string {
	switch e := e.(type) {
	case *Identifier:
		return e.Name
	case *Literal:
		return e.Raw
	case *FunctionCall:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = printExpr(a)
		}
		return fmt.Sprintf("%s(%s)", e.Name.String(), strings.Join(args, ", "))
	default:
		return fmt.Sprintf("/* unknown expression %T */", e)
	}
}
