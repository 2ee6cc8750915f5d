package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	HexNumber
	FloatNumber
	DoubleNumber
	String

	// Keywords
	Void
	Bool
	Int8
	Int16
	Int
	Int64
	Uint8
	Uint16
	Uint
	Uint64
	Float
	Double
	Const
	If
	Else
	For
	While
	Do
	Switch
	Case
	Default
	Break
	Continue
	Return
	True
	False
	Null
	Class
	Enum
	Cast
	This
	Super
	In
	Out
	InOut
	Import
	Is
	NotIs

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Scope
	Question
	Dot
	Handle
	Amp

	// Assignment operators, keep contiguous
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	SraEq

	// Binary and unary operators
	OrOr
	XorXor
	AndAnd
	Or
	Xor
	EqEq
	Neq
	Lt
	Lte
	Gt
	Gte
	Shl
	Shr
	Sra
	Plus
	Minus
	Star
	Slash
	Rem
	Not
	Complement
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"void":     Void,
	"bool":     Bool,
	"int8":     Int8,
	"int16":    Int16,
	"int":      Int,
	"int32":    Int,
	"int64":    Int64,
	"uint8":    Uint8,
	"uint16":   Uint16,
	"uint":     Uint,
	"uint32":   Uint,
	"uint64":   Uint64,
	"float":    Float,
	"double":   Double,
	"const":    Const,
	"if":       If,
	"else":     Else,
	"for":      For,
	"while":    While,
	"do":       Do,
	"switch":   Switch,
	"case":     Case,
	"default":  Default,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
	"true":     True,
	"false":    False,
	"null":     Null,
	"class":    Class,
	"enum":     Enum,
	"cast":     Cast,
	"this":     This,
	"super":    Super,
	"in":       In,
	"out":      Out,
	"inout":    InOut,
	"import":   Import,
	"is":       Is,
}

var symbols = map[Type]string{
	EOF: "<end of file>", Ident: "identifier", Number: "number", HexNumber: "number",
	FloatNumber: "number", DoubleNumber: "number", String: "string",
	NotIs: "!is", LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[",
	RBracket: "]", Semi: ";", Comma: ",", Colon: ":", Scope: "::", Question: "?", Dot: ".",
	Handle: "@", Amp: "&", Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=",
	RemEq: "%=", AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=", SraEq: ">>>=",
	OrOr: "||", XorXor: "^^", AndAnd: "&&", Or: "|", Xor: "^", EqEq: "==", Neq: "!=",
	Lt: "<", Lte: "<=", Gt: ">", Gte: ">=", Shl: "<<", Shr: ">>", Sra: ">>>", Plus: "+",
	Minus: "-", Star: "*", Slash: "/", Rem: "%", Not: "!", Complement: "~", Inc: "++", Dec: "--",
}

// Reverse mapping from Type to its source spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		if _, ok := TypeStrings[typ]; !ok || len(str) < len(TypeStrings[typ]) {
			TypeStrings[typ] = str
		}
	}
	for typ, str := range symbols {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "<unknown>"
}

// IsAssignOp reports whether t is '=' or a compound assignment.
func (t Type) IsAssignOp() bool { return t >= Eq && t <= SraEq }

// IsPrimitiveType reports whether t names a built-in primitive type.
func (t Type) IsPrimitiveType() bool { return t >= Void && t <= Double }

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Pos       int
	Line      int
	Column    int
	Len       int
}
