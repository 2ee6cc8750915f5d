package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	rep       *util.Reporter
}

func NewLexer(source []rune, fileIndex int, rep *util.Reporter) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, rep: rep,
	}
}

// Tokenize lexes the whole source, always ending with an EOF token.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekNext())) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
		case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
		case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
		case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '?': return l.makeToken(token.Question, "", startPos, startCol, startLine)
		case '~': return l.makeToken(token.Complement, "", startPos, startCol, startLine)
		case '@': return l.makeToken(token.Handle, "", startPos, startCol, startLine)
		case '.': return l.makeToken(token.Dot, "", startPos, startCol, startLine)
		case ':': return l.matchThen(':', token.Scope, token.Colon, startPos, startCol, startLine)
		case '%': return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine)
		case '*': return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine)
		case '/': return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine)
		case '!':
			return l.bang(startPos, startCol, startLine)
		case '^':
			return l.caret(startPos, startCol, startLine)
		case '+':
			return l.plus(startPos, startCol, startLine)
		case '-':
			return l.minus(startPos, startCol, startLine)
		case '&':
			return l.ampersand(startPos, startCol, startLine)
		case '|':
			return l.pipe(startPos, startCol, startLine)
		case '<':
			return l.less(startPos, startCol, startLine)
		case '>':
			return l.greater(startPos, startCol, startLine)
		case '=':
			return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
		case '"':
			return l.stringLiteral(startPos, startCol, startLine)
		case '\'':
			return l.charLiteral(startPos, startCol, startLine)
		}

		l.rep.Error(l.makeToken(token.EOF, "", startPos, startCol, startLine), "Unexpected character: '%c'", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekAt(n int) rune {
	if l.pos+n >= len(l.source) {
		return 0
	}
	return l.source[l.pos+n]
}

func (l *Lexer) peekNext() rune { return l.peekAt(1) }

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex, Pos: startPos,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.rep.Error(startTok, "Unterminated block comment")
}

func isIdentRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for isIdentRune(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		return l.makeToken(tokType, value, startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
		tok := l.makeToken(token.HexNumber, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
		if tok.Len == 2 {
			l.rep.Error(tok, "Malformed hexadecimal literal")
			tok.Value = "0x0"
		}
		return tok
	}

	isFloat := false
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && unicode.IsDigit(l.peekNext()) || l.peek() == '.' && l.pos > startPos {
		isFloat = true
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !unicode.IsDigit(l.peek()) {
			l.rep.Error(l.makeToken(token.DoubleNumber, "", startPos, startCol, startLine), "Malformed floating-point literal: exponent has no digits")
		}
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	valueStr := string(l.source[startPos:l.pos])
	if l.peek() == 'f' || l.peek() == 'F' {
		l.advance()
		return l.makeToken(token.FloatNumber, valueStr, startPos, startCol, startLine)
	}
	if isFloat {
		return l.makeToken(token.DoubleNumber, valueStr, startPos, startCol, startLine)
	}
	return l.makeToken(token.Number, valueStr, startPos, startCol, startLine)
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.peek()
		if c == '\n' {
			break
		}
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
		}
		l.advance()
		if c == '\\' {
			sb.WriteRune(l.decodeEscape(startPos, startCol, startLine))
			continue
		}
		sb.WriteRune(c)
	}
	tok := l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
	l.rep.Error(tok, "Unterminated string literal")
	return tok
}

// charLiteral lexes 'c' as an integer constant holding the character code.
func (l *Lexer) charLiteral(startPos, startCol, startLine int) token.Token {
	var val rune
	if l.peek() == '\\' {
		l.advance()
		val = l.decodeEscape(startPos, startCol, startLine)
	} else {
		val = l.advance()
	}
	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	if !l.match('\'') {
		l.rep.Error(tok, "Unterminated character literal")
	}
	tok.Len = l.pos - startPos
	tok.Value = strconv.Itoa(int(val))
	return tok
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) rune {
	if l.isAtEnd() {
		l.rep.Error(l.makeToken(token.EOF, "", l.pos, l.column, l.line), "Unterminated escape sequence")
		return 0
	}
	c := l.advance()
	if c == 'x' {
		var val rune
		digits := 0
		for digits < 2 && isHexDigit(l.peek()) {
			d, _ := strconv.ParseInt(string(l.advance()), 16, 32)
			val = val*16 + rune(d)
			digits++
		}
		if digits == 0 {
			l.rep.Error(l.makeToken(token.String, "", startPos, startCol, startLine), "Invalid hex escape sequence")
		}
		return val
	}

	escapes := map[rune]rune{
		'n': '\n', 't': '\t', 'r': '\r', '0': 0, '\\': '\\', '\'': '\'', '"': '"',
	}
	if val, ok := escapes[c]; ok {
		return val
	}
	l.rep.Error(l.makeToken(token.String, "", startPos, startCol, startLine), "Unrecognized escape sequence '\\%c'", c)
	return c
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// bang lexes '!', '!=' and the '!is' operator.
func (l *Lexer) bang(sPos, sCol, sLine int) token.Token {
	if l.match('=') {
		return l.makeToken(token.Neq, "", sPos, sCol, sLine)
	}
	if l.peek() == 'i' && l.peekNext() == 's' && !isIdentRune(l.peekAt(2)) {
		l.advance()
		l.advance()
		return l.makeToken(token.NotIs, "", sPos, sCol, sLine)
	}
	return l.makeToken(token.Not, "", sPos, sCol, sLine)
}

func (l *Lexer) caret(sPos, sCol, sLine int) token.Token {
	if l.match('^') {
		return l.makeToken(token.XorXor, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.XorEq, token.Xor, sPos, sCol, sLine)
}

func (l *Lexer) plus(sPos, sCol, sLine int) token.Token {
	if l.match('+') {
		return l.makeToken(token.Inc, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.PlusEq, token.Plus, sPos, sCol, sLine)
}

func (l *Lexer) minus(sPos, sCol, sLine int) token.Token {
	if l.match('-') {
		return l.makeToken(token.Dec, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.MinusEq, token.Minus, sPos, sCol, sLine)
}

func (l *Lexer) ampersand(sPos, sCol, sLine int) token.Token {
	if l.match('&') {
		return l.makeToken(token.AndAnd, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.AndEq, token.Amp, sPos, sCol, sLine)
}

func (l *Lexer) pipe(sPos, sCol, sLine int) token.Token {
	if l.match('|') {
		return l.makeToken(token.OrOr, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.OrEq, token.Or, sPos, sCol, sLine)
}

func (l *Lexer) less(sPos, sCol, sLine int) token.Token {
	if l.match('<') {
		return l.matchThen('=', token.ShlEq, token.Shl, sPos, sCol, sLine)
	}
	return l.matchThen('=', token.Lte, token.Lt, sPos, sCol, sLine)
}

func (l *Lexer) greater(sPos, sCol, sLine int) token.Token {
	if l.match('>') {
		if l.match('>') {
			return l.matchThen('=', token.SraEq, token.Sra, sPos, sCol, sLine)
		}
		return l.matchThen('=', token.ShrEq, token.Shr, sPos, sCol, sLine)
	}
	return l.matchThen('=', token.Gte, token.Gt, sPos, sCol, sLine)
}
