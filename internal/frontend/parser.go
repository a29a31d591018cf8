package frontend

import (
	"fmt"

	"zkyulc/internal/ast"
)

// parser is a hand-written recursive-descent parser with a single token of lookahead, per spec
// §4.2. The teacher's tree.go instead fed tokens to a goyacc-generated grammar; Yul's grammar is
// small and irregular enough (statement-level ambiguity between an assignment and a bare call,
// optional type annotations, a default-only-if-last switch arm) that a hand-written descent reads
// more directly than a yacc table would, which is also what spec.md calls for.
type parser struct {
	lex *lexer
	tok item
}

// Parse lexes and parses a complete Yul source unit into a single root Object.
func Parse(src string) (*ast.Object, error) {
	p := &parser{lex: newLexer(src)}
	p.advance()
	obj, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	if !p.at(itemEOF) {
		return nil, p.errorf("unexpected trailing input after top-level object")
	}
	return obj, nil
}

func (p *parser) advance() {
	p.tok = p.lex.nextItem()
	if p.tok.typ == itemError {
		// Surface the lexer's failure as our own error type rather than letting the parser try
		// (and fail confusingly) to make grammar sense of it.
		p.tok = item{typ: itemError, val: p.tok.val, line: p.tok.line, pos: p.tok.pos}
	}
}

func (p *parser) at(t itemType) bool { return p.tok.typ == t }

func (p *parser) errorf(format string, args ...interface{}) error {
	if p.tok.typ == itemError {
		return &LexError{Line: p.tok.line, Col: p.tok.pos, Msg: p.tok.val}
	}
	return &ParseError{Line: p.tok.line, Col: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

// take_or_next: if the current lookahead matches want, consume it (returning its item) and
// advance the lookahead to the token after it; otherwise report a parse error without advancing.
// Every grammar production below is built out of calls to this one primitive plus p.at for
// lookahead decisions, matching spec §4.2's single-token-lookahead discipline.
func (p *parser) takeOrNext(want itemType) (item, error) {
	if p.tok.typ != want {
		return item{}, p.errorf("expected %s, got %s %q", want, p.tok.typ, p.tok.val)
	}
	tok := p.tok
	p.advance()
	return tok, nil
}

func (p *parser) pos() ast.Position { return ast.Position{Line: p.tok.line, Col: p.tok.pos} }

func (p *parser) parseObject() (*ast.Object, error) {
	pos := p.pos()
	if _, err := p.takeOrNext(itemObject); err != nil {
		return nil, err
	}
	name, err := p.takeOrNext(itemString)
	if err != nil {
		return nil, err
	}
	if _, err := p.takeOrNext(itemLBrace); err != nil {
		return nil, err
	}
	obj := &ast.Object{Name: unquote(name.val), Pos: pos}
	for !p.at(itemRBrace) {
		switch {
		case p.at(itemCode):
			p.advance()
			blk, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			obj.Code = &ast.Code{Pos: pos, Block: blk}
		case p.at(itemData):
			p.advance()
			d, err := p.parseData()
			if err != nil {
				return nil, err
			}
			obj.Datas = append(obj.Datas, d)
		case p.at(itemObject):
			child, err := p.parseObject()
			if err != nil {
				return nil, err
			}
			obj.Objects = append(obj.Objects, child)
		default:
			return nil, p.errorf("expected code, data, or nested object, got %s %q", p.tok.typ, p.tok.val)
		}
	}
	if _, err := p.takeOrNext(itemRBrace); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *parser) parseData() (*ast.Data, error) {
	pos := p.pos()
	name, err := p.takeOrNext(itemString)
	if err != nil {
		return nil, err
	}
	var raw []byte
	switch {
	case p.at(itemHexString):
		raw = decodeHex(p.tok.val)
		p.advance()
	case p.at(itemString):
		raw = []byte(unquote(p.tok.val))
		p.advance()
	default:
		return nil, p.errorf("expected string or hex string literal for data block")
	}
	return &ast.Data{Name: unquote(name.val), Pos: pos, Bytes: raw}, nil
}

func (p *parser) parseBlock() (*ast.Block, error) {
	pos := p.pos()
	if _, err := p.takeOrNext(itemLBrace); err != nil {
		return nil, err
	}
	blk := &ast.Block{Pos: pos}
	for !p.at(itemRBrace) {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		blk.Statements = append(blk.Statements, s)
	}
	if _, err := p.takeOrNext(itemRBrace); err != nil {
		return nil, err
	}
	return blk, nil
}

func (p *parser) parseStatement() (ast.Statement, error) {
	pos := p.pos()
	switch {
	case p.at(itemLBrace):
		return p.parseBlock()
	case p.at(itemLet):
		return p.parseVariableDeclaration()
	case p.at(itemIf):
		p.advance()
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.If{Pos: pos, Cond: cond, Body: body}, nil
	case p.at(itemSwitch):
		return p.parseSwitch()
	case p.at(itemFor):
		return p.parseFor()
	case p.at(itemBreak):
		p.advance()
		return &ast.Break{Pos: pos}, nil
	case p.at(itemContinue):
		p.advance()
		return &ast.Continue{Pos: pos}, nil
	case p.at(itemLeave):
		p.advance()
		return &ast.Leave{Pos: pos}, nil
	case p.at(itemFunction):
		return p.parseFunctionDefinition()
	case p.at(itemIdentifier):
		return p.parseIdentifierLedStatement()
	default:
		return nil, p.errorf("expected statement, got %s %q", p.tok.typ, p.tok.val)
	}
}

// parseIdentifierLedStatement resolves the assignment-vs-call ambiguity: an identifier starting a
// statement is either the head of a (possibly multi-target) assignment if a ':=' or ',' follows the
// first name, or a bare call used as an ExpressionStatement otherwise.
func (p *parser) parseIdentifierLedStatement() (ast.Statement, error) {
	pos := p.pos()
	first := p.tok.val
	p.advance()
	if p.at(itemLParen) {
		call, err := p.parseCallTail(ast.Identifier{Name: first, Pos: pos})
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStatement{Pos: pos, Call: call}, nil
	}
	targets := []string{first}
	for p.at(itemComma) {
		p.advance()
		id, err := p.takeOrNext(itemIdentifier)
		if err != nil {
			return nil, err
		}
		targets = append(targets, id.val)
	}
	if _, err := p.takeOrNext(itemAssign); err != nil {
		return nil, err
	}
	val, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Assignment{Pos: pos, Targets: targets, Value: val}, nil
}

func (p *parser) parseVariableDeclaration() (ast.Statement, error) {
	pos := p.pos()
	p.advance() // consume 'let'
	var names []ast.TypedName
	for {
		n, err := p.parseTypedName()
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		if !p.at(itemComma) {
			break
		}
		p.advance()
	}
	decl := &ast.VariableDeclaration{Pos: pos, Names: names}
	if p.at(itemAssign) {
		p.advance()
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		decl.Value = val
	}
	return decl, nil
}

func (p *parser) parseTypedName() (ast.TypedName, error) {
	pos := p.pos()
	id, err := p.takeOrNext(itemIdentifier)
	if err != nil {
		return ast.TypedName{}, err
	}
	tn := ast.TypedName{Name: id.val, Pos: pos}
	if p.at(itemColon) {
		p.advance()
		typ, err := p.takeOrNext(itemIdentifier)
		if err != nil {
			return ast.TypedName{}, err
		}
		tn.Type = typ.val
	}
	return tn, nil
}

func (p *parser) parseTypedNameList() ([]ast.TypedName, error) {
	var out []ast.TypedName
	if p.at(itemRParen) {
		return out, nil
	}
	for {
		n, err := p.parseTypedName()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		if !p.at(itemComma) {
			break
		}
		p.advance()
	}
	return out, nil
}

func (p *parser) parseFunctionDefinition() (ast.Statement, error) {
	pos := p.pos()
	p.advance() // consume 'function'
	name, err := p.takeOrNext(itemIdentifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.takeOrNext(itemLParen); err != nil {
		return nil, err
	}
	params, err := p.parseTypedNameList()
	if err != nil {
		return nil, err
	}
	if _, err := p.takeOrNext(itemRParen); err != nil {
		return nil, err
	}
	var rets []ast.TypedName
	if p.at(itemArrow) {
		p.advance()
		rets, err = p.parseTypedNameList()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDefinition{Pos: pos, Name: name.val, Params: params, Returns: rets, Body: body}, nil
}

func (p *parser) parseSwitch() (ast.Statement, error) {
	pos := p.pos()
	p.advance() // consume 'switch'
	val, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	sw := &ast.Switch{Pos: pos, Value: val}
	sawDefault := false
	for p.at(itemCase) || p.at(itemDefault) {
		cpos := p.pos()
		if sawDefault {
			return nil, p.errorf("default case must be the last switch arm")
		}
		var lit *ast.Literal
		if p.at(itemCase) {
			p.advance()
			lit, err = p.parseLiteral()
			if err != nil {
				return nil, err
			}
		} else {
			p.advance()
			sawDefault = true
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		sw.Cases = append(sw.Cases, ast.Case{Pos: cpos, Value: lit, Body: body})
	}
	if len(sw.Cases) == 0 {
		return nil, p.errorf("switch requires at least one case or default arm")
	}
	return sw, nil
}

func (p *parser) parseFor() (ast.Statement, error) {
	pos := p.pos()
	p.advance() // consume 'for'
	init, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	post, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{Pos: pos, Init: init, Cond: cond, Post: post, Body: body}, nil
}

func (p *parser) parseExpression() (ast.Expression, error) {
	pos := p.pos()
	switch {
	case p.at(itemIdentifier):
		name := p.tok.val
		p.advance()
		if p.at(itemLParen) {
			return p.parseCallTail(ast.Identifier{Name: name, Pos: pos})
		}
		return &ast.Identifier{Name: name, Pos: pos}, nil
	case p.at(itemNumber), p.at(itemHexNumber), p.at(itemString), p.at(itemHexString), p.at(itemTrue), p.at(itemFalse):
		return p.parseLiteral()
	default:
		return nil, p.errorf("expected expression, got %s %q", p.tok.typ, p.tok.val)
	}
}

// parseCallTail parses the "(args...)" suffix of a call whose callee identifier has already been
// consumed (id carries its name and position); it resolves the callee against the builtin table
// here so the lowering package never needs to re-check spelling.
func (p *parser) parseCallTail(id ast.Identifier) (*ast.FunctionCall, error) {
	if _, err := p.takeOrNext(itemLParen); err != nil {
		return nil, err
	}
	var args []ast.Expression
	for !p.at(itemRParen) {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.at(itemComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.takeOrNext(itemRParen); err != nil {
		return nil, err
	}
	name := ast.Name{User: id.Name}
	if tag, ok := ast.LookupBuiltin(id.Name); ok {
		name = ast.Name{Builtin: tag}
	}
	return &ast.FunctionCall{Name: name, Args: args, Pos: id.Pos}, nil
}

func (p *parser) parseLiteral() (*ast.Literal, error) {
	pos := p.pos()
	tok := p.tok
	var raw string
	var fv *ast.FieldValue
	var err error
	switch tok.typ {
	case itemNumber, itemHexNumber:
		raw = tok.val
		fv, err = ast.ParseFieldValue(tok.val)
	case itemString:
		raw = tok.val
		fv, err = ast.ParseFieldValue(tok.val)
	case itemHexString:
		raw = `hex"` + tok.val + `"`
		bytes := decodeHex(tok.val)
		var buf [32]byte
		copy(buf[:], bytes)
		fv = ast.FieldValueFromBytes32(buf)
	case itemTrue:
		raw = "true"
		fv = ast.NewFieldValue(1)
	case itemFalse:
		raw = "false"
		fv = ast.NewFieldValue(0)
	default:
		return nil, p.errorf("expected literal, got %s %q", tok.typ, tok.val)
	}
	if err != nil {
		return nil, &ParseError{Line: pos.Line, Col: pos.Col, Msg: err.Error()}
	}
	p.advance()
	return &ast.Literal{Value: fv, Raw: raw, Pos: pos}, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

// decodeHex decodes the hex digits of a hex"..." literal. s carries only the inner digits: the
// lexer (lexHexString) already discards the "hex" prefix and both surrounding quotes before
// emitting itemHexString, so there is no quote pair left here to strip.
func decodeHex(s string) []byte {
	out := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		out = append(out, hexNibble(s[i])<<4|hexNibble(s[i+1]))
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
