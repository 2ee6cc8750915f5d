package parser

import (
	"fmt"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/lexer"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	rep      *util.Reporter
}

// syntaxError unwinds the parser to the nearest entry point
type syntaxError struct {
	tok token.Token
	msg string
}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token, rep *util.Reporter) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	return &Parser{tokens: tokens, current: tokens[0], rep: rep}
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) fail(tok token.Token, format string, args ...any) {
	panic(syntaxError{tok: tok, msg: fmt.Sprintf(format, args...)})
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.fail(p.current, "%s Found '%s'.", message, describe(p.current))
	return p.current
}

func describe(tok token.Token) string {
	if tok.Value != "" {
		return tok.Value
	}
	return tok.Type.String()
}

func (p *Parser) recoverInto(err *error) {
	if r := recover(); r != nil {
		se, ok := r.(syntaxError)
		if !ok {
			panic(r)
		}
		p.rep.Error(se.tok, "%s", se.msg)
		*err = fmt.Errorf("syntax error: %s", se.msg)
	}
}

// Parse parses a whole script. Only the first syntax error is reported.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer p.recoverInto(&err)
	tok := p.current
	var decls []*ast.Node
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		decls = append(decls, p.parseTopLevel()...)
	}
	return ast.NewScript(tok, decls), nil
}

func (p *Parser) parseTopLevel() []*ast.Node {
	switch p.current.Type {
	case token.Class:
		return []*ast.Node{p.parseClass()}
	case token.Enum:
		return []*ast.Node{p.parseEnum()}
	case token.Import:
		p.fail(p.current, "Import declarations are not supported.")
	}

	typ := p.parseType()
	isRef := p.match(token.Amp)
	nameTok := p.expect(token.Ident, "Expected a name after the type.")
	if p.check(token.LParen) {
		return []*ast.Node{p.parseFunctionRest(nameTok, typ, isRef, "", true)}
	}
	if isRef {
		p.fail(nameTok, "Global variables cannot be references.")
	}
	return p.parseDeclaratorsFrom(typ, nameTok)
}

// Types

// scanType checks, without consuming anything, whether a type starts at token index i.
// It returns the index just past the type.
func (p *Parser) scanType(i int) (int, bool) {
	at := func(n int) token.Type {
		if n < len(p.tokens) {
			return p.tokens[n].Type
		}
		return token.EOF
	}
	if at(i) == token.Const {
		i++
	}
	switch {
	case at(i).IsPrimitiveType():
		i++
	case at(i) == token.Scope && at(i+1) == token.Ident:
		i += 2
	case at(i) == token.Ident:
		i++
		for at(i) == token.Scope && at(i+1) == token.Ident {
			i += 2
		}
	default:
		return i, false
	}
	if at(i) == token.Lt {
		j, ok := p.scanType(i + 1)
		if !ok || at(j) != token.Gt {
			return i, false
		}
		i = j + 1
	}
	for at(i) == token.Handle {
		i++
		if at(i) == token.Const {
			i++
		}
	}
	return i, true
}

func (p *Parser) parseType() *ast.TypeSpec {
	spec := &ast.TypeSpec{Tok: p.current}
	spec.IsConst = p.match(token.Const)

	switch {
	case p.current.Type.IsPrimitiveType():
		spec.Tok = p.current
		spec.Name = p.current.Type.String()
		p.advance()
	case p.check(token.Scope) || p.check(token.Ident):
		if p.match(token.Scope) {
			spec.Scope = "::"
		}
		spec.Tok = p.current
		name := p.expect(token.Ident, "Expected a type name.").Value
		for p.check(token.Scope) && p.peekAt(1).Type == token.Ident {
			p.advance()
			if spec.Scope == "" || spec.Scope == "::" {
				spec.Scope = name
			} else {
				spec.Scope += "::" + name
			}
			name = p.expect(token.Ident, "Expected a type name.").Value
		}
		spec.Name = name
	case p.check(token.Question):
		// the variable type, only valid in host declarations
		spec.Name = "?"
		p.advance()
	default:
		p.fail(p.current, "Expected a data type. Found '%s'.", describe(p.current))
	}

	if p.match(token.Lt) {
		spec.SubType = p.parseType()
		p.expect(token.Gt, "Expected '>' to close the template argument list.")
	}
	if p.match(token.Handle) {
		spec.IsHandle = true
		spec.ConstHandle = p.match(token.Const)
	}
	return spec
}

// Declarations

func (p *Parser) parseParams() []*ast.Param {
	p.expect(token.LParen, "Expected '('.")
	var params []*ast.Param
	if p.check(token.Void) && p.peekAt(1).Type == token.RParen {
		p.advance()
	}
	if p.match(token.RParen) {
		return params
	}
	for {
		param := &ast.Param{Tok: p.current, Mode: token.EOF}
		param.Type = p.parseType()
		if p.match(token.Amp) {
			param.IsRef = true
			switch p.current.Type {
			case token.In, token.Out, token.InOut:
				param.Mode = p.current.Type
				p.advance()
			}
		}
		if p.check(token.Ident) {
			param.Name = p.current.Value
			p.advance()
		}
		params = append(params, param)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "Expected ')' after the parameter list.")
	return params
}

func (p *Parser) parseFunctionRest(nameTok token.Token, ret *ast.TypeSpec, retRef bool, class string, needBody bool) *ast.Node {
	decl := ast.FuncDeclNode{ReturnType: ret, ReturnRef: retRef, Name: nameTok.Value, Class: class}
	decl.Params = p.parseParams()
	decl.IsConst = p.match(token.Const)
	if needBody {
		decl.Body = p.parseBlock()
	}
	return ast.NewFuncDecl(nameTok, decl)
}

func (p *Parser) parseClass() *ast.Node {
	tok := p.expect(token.Class, "Expected 'class'.")
	name := p.expect(token.Ident, "Expected a class name.").Value
	var bases []string
	if p.match(token.Colon) {
		for {
			bases = append(bases, p.expect(token.Ident, "Expected a base class or interface name.").Value)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.LBrace, "Expected '{' to open the class body.")

	var members []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		if p.check(token.Complement) {
			tildeTok := p.current
			p.advance()
			nameTok := p.expect(token.Ident, "Expected the destructor name after '~'.")
			if nameTok.Value != name {
				p.fail(nameTok, "The destructor name must match the class name '%s'.", name)
			}
			nameTok.Pos, nameTok.Column = tildeTok.Pos, tildeTok.Column
			nameTok.Value = "~" + name
			fn := p.parseFunctionRest(nameTok, nil, false, name, true)
			d := fn.Data.(ast.FuncDeclNode)
			d.IsDestructor = true
			fn.Data = d
			members = append(members, fn)
			continue
		}
		if p.check(token.Ident) && p.current.Value == name && p.peekAt(1).Type == token.LParen {
			nameTok := p.current
			p.advance()
			members = append(members, p.parseFunctionRest(nameTok, nil, false, name, true))
			continue
		}

		typ := p.parseType()
		isRef := p.match(token.Amp)
		nameTok := p.expect(token.Ident, "Expected a member name.")
		if p.check(token.LParen) {
			members = append(members, p.parseFunctionRest(nameTok, typ, isRef, name, true))
			continue
		}
		for {
			members = append(members, ast.NewVarDecl(nameTok, typ, nameTok.Value, nil, nil, false))
			if !p.match(token.Comma) {
				break
			}
			nameTok = p.expect(token.Ident, "Expected a member name.")
		}
		p.expect(token.Semi, "Expected ';' after the member declaration.")
	}
	p.expect(token.RBrace, "Expected '}' to close the class body.")
	return ast.NewClassDecl(tok, name, bases, members)
}

func (p *Parser) parseEnum() *ast.Node {
	tok := p.expect(token.Enum, "Expected 'enum'.")
	name := p.expect(token.Ident, "Expected an enum name.").Value
	p.expect(token.LBrace, "Expected '{' to open the enum body.")
	var values []ast.EnumValueDecl
	for !p.check(token.RBrace) {
		vtok := p.expect(token.Ident, "Expected an enum value name.")
		v := ast.EnumValueDecl{Tok: vtok, Name: vtok.Value}
		if p.match(token.Eq) {
			v.Value = p.parseTernary()
		}
		values = append(values, v)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "Expected '}' to close the enum body.")
	return ast.NewEnumDecl(tok, name, values)
}

// parseDeclaratorsFrom parses the declarators of a variable declaration once the type and
// first name are consumed, through the closing ';'.
func (p *Parser) parseDeclaratorsFrom(typ *ast.TypeSpec, nameTok token.Token) []*ast.Node {
	var decls []*ast.Node
	for {
		decls = append(decls, p.parseDeclarator(typ, nameTok))
		if !p.match(token.Comma) {
			break
		}
		nameTok = p.expect(token.Ident, "Expected a variable name.")
	}
	p.expect(token.Semi, "Expected ';' after the variable declaration.")
	return decls
}

func (p *Parser) parseDeclarator(typ *ast.TypeSpec, nameTok token.Token) *ast.Node {
	switch {
	case p.match(token.Eq):
		if p.check(token.LBrace) {
			return ast.NewVarDecl(nameTok, typ, nameTok.Value, p.parseInitList(), nil, false)
		}
		return ast.NewVarDecl(nameTok, typ, nameTok.Value, p.parseAssignment(), nil, false)
	case p.check(token.LParen):
		args := p.parseArgs()
		return ast.NewVarDecl(nameTok, typ, nameTok.Value, nil, args, true)
	}
	return ast.NewVarDecl(nameTok, typ, nameTok.Value, nil, nil, false)
}

func (p *Parser) parseInitList() *ast.Node {
	tok := p.expect(token.LBrace, "Expected '{'.")
	var elems []*ast.Node
	for !p.check(token.RBrace) {
		elems = append(elems, p.parseAssignment())
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "Expected '}' to close the initialization list.")
	return ast.NewInitList(tok, elems)
}

// Statements

func (p *Parser) isVarDecl() bool {
	if p.current.Type.IsPrimitiveType() && p.peekAt(1).Type == token.LParen {
		return false
	}
	end, ok := p.scanType(p.pos)
	if !ok || end >= len(p.tokens) {
		return false
	}
	return p.tokens[end].Type == token.Ident
}

func (p *Parser) parseBlock() *ast.Node {
	tok := p.expect(token.LBrace, "Expected '{'.")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.RBrace, "Expected '}' to close the block.")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseDeclStmt() *ast.Node {
	tok := p.current
	typ := p.parseType()
	nameTok := p.expect(token.Ident, "Expected a variable name.")
	decls := p.parseDeclaratorsFrom(typ, nameTok)
	if len(decls) == 1 {
		return decls[0]
	}
	return ast.NewMultiVarDecl(tok, decls)
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.LBrace:
		return p.parseBlock()
	case token.Semi:
		p.advance()
		return ast.NewExprStmt(tok, nil)
	case token.If:
		p.advance()
		p.expect(token.LParen, "Expected '(' after 'if'.")
		cond := p.parseAssignment()
		p.expect(token.RParen, "Expected ')' after the if condition.")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)
	case token.For:
		return p.parseFor()
	case token.While:
		p.advance()
		p.expect(token.LParen, "Expected '(' after 'while'.")
		cond := p.parseAssignment()
		p.expect(token.RParen, "Expected ')' after the while condition.")
		return ast.NewWhile(tok, cond, p.parseStmt())
	case token.Do:
		p.advance()
		body := p.parseStmt()
		p.expect(token.While, "Expected 'while' after the do body.")
		p.expect(token.LParen, "Expected '(' after 'while'.")
		cond := p.parseAssignment()
		p.expect(token.RParen, "Expected ')' after the while condition.")
		p.expect(token.Semi, "Expected ';' after the do-while statement.")
		return ast.NewDoWhile(tok, body, cond)
	case token.Switch:
		return p.parseSwitch()
	case token.Break:
		p.advance()
		p.expect(token.Semi, "Expected ';' after 'break'.")
		return ast.NewBreak(tok)
	case token.Continue:
		p.advance()
		p.expect(token.Semi, "Expected ';' after 'continue'.")
		return ast.NewContinue(tok)
	case token.Return:
		p.advance()
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseAssignment()
		}
		p.expect(token.Semi, "Expected ';' after the return statement.")
		return ast.NewReturn(tok, expr)
	}

	if p.isVarDecl() {
		return p.parseDeclStmt()
	}
	expr := p.parseAssignment()
	p.expect(token.Semi, "Expected ';' after the expression.")
	return ast.NewExprStmt(tok, expr)
}

func (p *Parser) parseFor() *ast.Node {
	tok := p.expect(token.For, "Expected 'for'.")
	p.expect(token.LParen, "Expected '(' after 'for'.")

	var init *ast.Node
	if p.isVarDecl() {
		init = p.parseDeclStmt()
	} else {
		initTok := p.current
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseAssignment()
		}
		p.expect(token.Semi, "Expected ';' after the for initializer.")
		init = ast.NewExprStmt(initTok, expr)
	}

	var cond *ast.Node
	if !p.check(token.Semi) {
		cond = p.parseAssignment()
	}
	p.expect(token.Semi, "Expected ';' after the for condition.")

	var next []*ast.Node
	if !p.check(token.RParen) {
		for {
			next = append(next, p.parseAssignment())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after the for clauses.")
	return ast.NewFor(tok, init, cond, next, p.parseStmt())
}

func (p *Parser) parseSwitch() *ast.Node {
	tok := p.expect(token.Switch, "Expected 'switch'.")
	p.expect(token.LParen, "Expected '(' after 'switch'.")
	expr := p.parseAssignment()
	p.expect(token.RParen, "Expected ')' after the switch expression.")
	p.expect(token.LBrace, "Expected '{' to open the switch body.")

	var cases []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		caseTok := p.current
		var value *ast.Node
		switch {
		case p.match(token.Case):
			value = p.parseTernary()
		case p.match(token.Default):
		default:
			p.fail(p.current, "Expected 'case' or 'default'. Found '%s'.", describe(p.current))
		}
		p.expect(token.Colon, "Expected ':' after the case label.")
		var body []*ast.Node
		for !p.check(token.Case) && !p.check(token.Default) && !p.check(token.RBrace) && !p.check(token.EOF) {
			body = append(body, p.parseStmt())
		}
		cases = append(cases, ast.NewCase(caseTok, value, body))
	}
	p.expect(token.RBrace, "Expected '}' to close the switch body.")
	return ast.NewSwitch(tok, expr, cases)
}

// Expression Parsing

func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 11
	case token.Plus, token.Minus:
		return 10
	case token.Shl, token.Shr, token.Sra:
		return 9
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 8
	case token.EqEq, token.Neq, token.Is, token.NotIs:
		return 7
	case token.Amp:
		return 6
	case token.Xor:
		return 5
	case token.Or:
		return 4
	case token.AndAnd:
		return 3
	case token.XorXor:
		return 2
	case token.OrOr:
		return 1
	default:
		return -1
	}
}

func (p *Parser) parseAssignment() *ast.Node {
	lhs := p.parseTernary()
	if p.current.Type.IsAssignOp() {
		tok := p.current
		p.advance()
		rhs := p.parseAssignment()
		return ast.NewAssign(tok, tok.Type, lhs, rhs)
	}
	return lhs
}

func (p *Parser) parseTernary() *ast.Node {
	cond := p.parseBinary(1)
	if p.check(token.Question) {
		tok := p.current
		p.advance()
		thenExpr := p.parseAssignment()
		p.expect(token.Colon, "Expected ':' in the conditional expression.")
		elseExpr := p.parseAssignment()
		return ast.NewTernary(tok, cond, thenExpr, elseExpr)
	}
	return cond
}

func (p *Parser) parseBinary(minPrec int) *ast.Node {
	left := p.parseUnary()
	for {
		op := p.current
		prec := getBinaryOpPrecedence(op.Type)
		if prec < minPrec {
			return left
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		left = ast.NewBinaryOp(op, op.Type, left, right)
	}
}

func (p *Parser) parseUnary() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Minus, token.Plus, token.Not, token.Complement, token.Inc, token.Dec, token.Handle:
		p.advance()
		return ast.NewUnaryOp(tok, tok.Type, p.parseUnary())
	}
	return p.parsePostfix()
}

func (p *Parser) parseArgs() []*ast.Node {
	p.expect(token.LParen, "Expected '('.")
	var args []*ast.Node
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseAssignment())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after the arguments.")
	return args
}

func (p *Parser) parsePostfix() *ast.Node {
	expr := p.parsePrimary()
	for {
		tok := p.current
		switch {
		case p.match(token.Dot):
			nameTok := p.expect(token.Ident, "Expected a member name after '.'.")
			var call *ast.Node
			if p.check(token.LParen) {
				call = ast.NewFuncCall(nameTok, "", nameTok.Value, p.parseArgs())
			}
			expr = ast.NewMemberAccess(nameTok, expr, nameTok.Value, call)
		case p.match(token.LBracket):
			index := p.parseAssignment()
			p.expect(token.RBracket, "Expected ']' after the index.")
			expr = ast.NewSubscript(tok, expr, index)
		case p.check(token.Inc) || p.check(token.Dec):
			p.advance()
			expr = ast.NewPostfixOp(tok, tok.Type, expr)
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Number, token.HexNumber, token.FloatNumber, token.DoubleNumber:
		p.advance()
		return ast.NewNumber(tok, tok.Type, tok.Value)
	case token.String:
		p.advance()
		value := tok.Value
		for p.check(token.String) {
			value += p.current.Value
			p.advance()
		}
		return ast.NewString(tok, value)
	case token.True, token.False:
		p.advance()
		return ast.NewBool(tok, tok.Type == token.True)
	case token.Null:
		p.advance()
		return ast.NewNull(tok)
	case token.This:
		p.advance()
		return ast.NewThis(tok)
	case token.LParen:
		p.advance()
		expr := p.parseAssignment()
		p.expect(token.RParen, "Expected ')' after the expression.")
		return expr
	case token.Cast:
		p.advance()
		p.expect(token.Lt, "Expected '<' after 'cast'.")
		typ := p.parseType()
		p.expect(token.Gt, "Expected '>' after the cast type.")
		p.expect(token.LParen, "Expected '(' after the cast type.")
		expr := p.parseAssignment()
		p.expect(token.RParen, "Expected ')' after the cast expression.")
		return ast.NewCast(tok, typ, expr)
	case token.Super:
		p.advance()
		return ast.NewFuncCall(tok, "", "super", p.parseArgs())
	}

	if tok.Type.IsPrimitiveType() && p.peekAt(1).Type == token.LParen {
		typ := p.parseType()
		return ast.NewConstructCall(tok, typ, p.parseArgs())
	}

	if tok.Type == token.Ident || tok.Type == token.Scope {
		if end, ok := p.scanType(p.pos); ok && end < len(p.tokens) && p.tokens[end].Type == token.LParen && p.peekAt(1).Type == token.Lt {
			typ := p.parseType()
			return ast.NewConstructCall(tok, typ, p.parseArgs())
		}

		scope := ""
		if p.match(token.Scope) {
			scope = "::"
		}
		nameTok := p.expect(token.Ident, "Expected an identifier.")
		name := nameTok.Value
		for p.check(token.Scope) && p.peekAt(1).Type == token.Ident {
			p.advance()
			if scope == "" || scope == "::" {
				scope = name
			} else {
				scope += "::" + name
			}
			nameTok = p.expect(token.Ident, "Expected an identifier.")
			name = nameTok.Value
		}
		if p.check(token.LParen) {
			return ast.NewFuncCall(nameTok, scope, name, p.parseArgs())
		}
		return ast.NewIdent(nameTok, scope, name)
	}

	p.fail(tok, "Expected an expression. Found '%s'.", describe(tok))
	return nil
}

// Host declarations

func tokenize(src string, rep *util.Reporter) ([]token.Token, error) {
	idx := rep.AddFile("<declaration>", []rune(src))
	before := rep.ErrorCount()
	toks := lexer.NewLexer([]rune(src), idx, rep).Tokenize()
	if rep.ErrorCount() > before {
		return nil, fmt.Errorf("invalid declaration %q", src)
	}
	return toks, nil
}

// ParseDeclaration parses a host function or property declaration such as
// "string@ f(uint)", "T& opIndex(uint)" or "float x".
func ParseDeclaration(src string) (node *ast.Node, err error) {
	rep := util.NewReporter(nil, nil, nil)
	toks, err := tokenize(src, rep)
	if err != nil {
		return nil, err
	}
	p := NewParser(toks, rep)
	defer func() {
		if err != nil {
			err = fmt.Errorf("%q: %w", src, err)
		}
	}()
	defer p.recoverInto(&err)

	typ := p.parseType()
	isRef := p.match(token.Amp)
	nameTok := p.expect(token.Ident, "Expected a name after the type.")
	if p.check(token.LParen) {
		node = p.parseFunctionRest(nameTok, typ, isRef, "", false)
	} else {
		node = ast.NewVarDecl(nameTok, typ, nameTok.Value, nil, nil, false)
	}
	p.expect(token.EOF, "Unexpected text after the declaration.")
	return node, nil
}

// ParseDataType parses a lone type such as "const array<int>@".
func ParseDataType(src string) (spec *ast.TypeSpec, err error) {
	rep := util.NewReporter(nil, nil, nil)
	toks, err := tokenize(src, rep)
	if err != nil {
		return nil, err
	}
	p := NewParser(toks, rep)
	defer p.recoverInto(&err)
	spec = p.parseType()
	p.expect(token.EOF, "Unexpected text after the type.")
	return spec, nil
}
