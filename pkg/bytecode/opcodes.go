// Package bytecode defines the instruction set emitted by the compiler and executed by the vm.
package bytecode

type Op uint8

const (
	// Stack
	Pop Op = iota
	PopPtr
	PshC4
	PshC8
	PshV4
	PshV8
	PshVPtr
	PSF
	PGA
	PshNull
	VAR
	GETREF
	GETOBJ
	GETOBJREF
	RDSPtr
	ADDSi
	PopRPtr
	PshRPtr
	CHKREF
	ChkRefS
	ChkNullV
	ChkNullS
	SwapPtr
	SWAP4
	SWAP8
	SWAP48
	SWAP84
	TYPEID
	OBJTYPE
	STR

	// Control flow
	RET
	JMP
	JZ
	JNZ
	JS
	JNS
	JP
	JNP
	JMPP
	TZ
	TNZ
	TS
	TNS
	TP
	TNP
	CMPi
	CMPu
	CMPi64
	CMPu64
	CMPf
	CMPd
	CMPp

	// Unary, in place on a variable
	NOT
	NEGi
	NEGi64
	NEGf
	NEGd
	BNOT
	BNOT64

	// Increment and decrement of the value the register points to
	INCi8
	INCi16
	INCi
	INCi64
	INCf
	INCd
	DECi8
	DECi16
	DECi
	DECi64
	DECf
	DECd

	// Three operand arithmetic: A = B op C
	ADDi
	SUBi
	MULi
	DIVi
	MODi
	DIVu
	MODu
	ADDi64
	SUBi64
	MULi64
	DIVi64
	MODi64
	DIVu64
	MODu64
	ADDf
	SUBf
	MULf
	DIVf
	MODf
	ADDd
	SUBd
	MULd
	DIVd
	MODd
	BAND
	BOR
	BXOR
	BSLL
	BSRL
	BSRA
	BAND64
	BOR64
	BXOR64
	BSLL64
	BSRL64
	BSRA64

	// Variables and the value register
	SetV1
	SetV2
	SetV4
	SetV8
	CpyVtoV4
	CpyVtoV8
	CpyVtoR4
	CpyVtoR8
	CpyRtoV4
	CpyRtoV8
	ClrHi
	RDR1
	RDR2
	RDR4
	RDR8
	WRTV1
	WRTV2
	WRTV4
	WRTV8
	LDG
	LDV

	// Conversions. In place forms take A, size changing forms write A from B.
	ITOF
	FTOI
	UTOF
	FTOU
	SBTOI
	SWTOI
	UBTOI
	UWTOI
	ITOB
	ITOW
	DTOI
	DTOU
	DTOF
	ITOD
	UTOD
	FTOD
	I64TOI
	UTOI64
	ITOI64
	FTOI64
	FTOU64
	DTOI64
	DTOU64
	I64TOF
	U64TOF
	I64TOD
	U64TOD

	// Calls and objects
	CALL
	CALLSYS
	CALLINTF
	ALLOC
	FREE
	LOADOBJ
	STOREOBJ
	REFCPY
	COPY
	Cast
	SUSPEND

	// Pseudo instructions, removed by Finalize
	Label
	Line

	opCount
)

// Form describes how an instruction uses its operand fields.
type Form int

const (
	FormNone Form = iota
	FormVar
	FormVarVar
	FormVarVarVar
	FormVarArg
	FormArg
	FormDW
	FormLabel
	FormFunc
	FormType
	FormVarType
	FormTypeFunc
)

type opInfo struct {
	name     string
	form     Form
	inc      int
	ptrInc   int
	variable bool
}

var opTable = [opCount]opInfo{
	Pop:       {name: "POP", form: FormDW, variable: true},
	PopPtr:    {name: "PopPtr", ptrInc: -1},
	PshC4:     {name: "PshC4", form: FormArg, inc: 1},
	PshC8:     {name: "PshC8", form: FormArg, inc: 2},
	PshV4:     {name: "PshV4", form: FormVar, inc: 1},
	PshV8:     {name: "PshV8", form: FormVar, inc: 2},
	PshVPtr:   {name: "PshVPtr", form: FormVar, ptrInc: 1},
	PSF:       {name: "PSF", form: FormVar, ptrInc: 1},
	PGA:       {name: "PGA", form: FormDW, ptrInc: 1},
	PshNull:   {name: "PshNull", ptrInc: 1},
	VAR:       {name: "VAR", form: FormVar, ptrInc: 1},
	GETREF:    {name: "GETREF", form: FormDW},
	GETOBJ:    {name: "GETOBJ", form: FormDW},
	GETOBJREF: {name: "GETOBJREF", form: FormDW},
	RDSPtr:    {name: "RDSPtr"},
	ADDSi:     {name: "ADDSi", form: FormDW},
	PopRPtr:   {name: "PopRPtr", ptrInc: -1},
	PshRPtr:   {name: "PshRPtr", ptrInc: 1},
	CHKREF:    {name: "CHKREF"},
	ChkRefS:   {name: "ChkRefS"},
	ChkNullV:  {name: "ChkNullV", form: FormVar},
	ChkNullS:  {name: "ChkNullS", form: FormDW},
	SwapPtr:   {name: "SwapPtr"},
	SWAP4:     {name: "SWAP4"},
	SWAP8:     {name: "SWAP8"},
	SWAP48:    {name: "SWAP48"},
	SWAP84:    {name: "SWAP84"},
	TYPEID:    {name: "TYPEID", form: FormArg, inc: 1},
	OBJTYPE:   {name: "OBJTYPE", form: FormType, ptrInc: 1},
	STR:       {name: "STR", form: FormDW, inc: 1},

	RET:  {name: "RET", form: FormDW},
	JMP:  {name: "JMP", form: FormLabel},
	JZ:   {name: "JZ", form: FormLabel},
	JNZ:  {name: "JNZ", form: FormLabel},
	JS:   {name: "JS", form: FormLabel},
	JNS:  {name: "JNS", form: FormLabel},
	JP:   {name: "JP", form: FormLabel},
	JNP:  {name: "JNP", form: FormLabel},
	JMPP: {name: "JMPP", form: FormVar},
	TZ:   {name: "TZ"},
	TNZ:  {name: "TNZ"},
	TS:   {name: "TS"},
	TNS:  {name: "TNS"},
	TP:   {name: "TP"},
	TNP:  {name: "TNP"},

	CMPi:   {name: "CMPi", form: FormVarVar},
	CMPu:   {name: "CMPu", form: FormVarVar},
	CMPi64: {name: "CMPi64", form: FormVarVar},
	CMPu64: {name: "CMPu64", form: FormVarVar},
	CMPf:   {name: "CMPf", form: FormVarVar},
	CMPd:   {name: "CMPd", form: FormVarVar},
	CMPp:   {name: "CMPp", form: FormVarVar},

	NOT:    {name: "NOT", form: FormVar},
	NEGi:   {name: "NEGi", form: FormVar},
	NEGi64: {name: "NEGi64", form: FormVar},
	NEGf:   {name: "NEGf", form: FormVar},
	NEGd:   {name: "NEGd", form: FormVar},
	BNOT:   {name: "BNOT", form: FormVar},
	BNOT64: {name: "BNOT64", form: FormVar},

	INCi8: {name: "INCi8"}, INCi16: {name: "INCi16"}, INCi: {name: "INCi"}, INCi64: {name: "INCi64"},
	INCf: {name: "INCf"}, INCd: {name: "INCd"},
	DECi8: {name: "DECi8"}, DECi16: {name: "DECi16"}, DECi: {name: "DECi"}, DECi64: {name: "DECi64"},
	DECf: {name: "DECf"}, DECd: {name: "DECd"},

	ADDi: {name: "ADDi", form: FormVarVarVar}, SUBi: {name: "SUBi", form: FormVarVarVar},
	MULi: {name: "MULi", form: FormVarVarVar}, DIVi: {name: "DIVi", form: FormVarVarVar},
	MODi: {name: "MODi", form: FormVarVarVar}, DIVu: {name: "DIVu", form: FormVarVarVar},
	MODu: {name: "MODu", form: FormVarVarVar},
	ADDi64: {name: "ADDi64", form: FormVarVarVar}, SUBi64: {name: "SUBi64", form: FormVarVarVar},
	MULi64: {name: "MULi64", form: FormVarVarVar}, DIVi64: {name: "DIVi64", form: FormVarVarVar},
	MODi64: {name: "MODi64", form: FormVarVarVar}, DIVu64: {name: "DIVu64", form: FormVarVarVar},
	MODu64: {name: "MODu64", form: FormVarVarVar},
	ADDf: {name: "ADDf", form: FormVarVarVar}, SUBf: {name: "SUBf", form: FormVarVarVar},
	MULf: {name: "MULf", form: FormVarVarVar}, DIVf: {name: "DIVf", form: FormVarVarVar},
	MODf: {name: "MODf", form: FormVarVarVar},
	ADDd: {name: "ADDd", form: FormVarVarVar}, SUBd: {name: "SUBd", form: FormVarVarVar},
	MULd: {name: "MULd", form: FormVarVarVar}, DIVd: {name: "DIVd", form: FormVarVarVar},
	MODd: {name: "MODd", form: FormVarVarVar},
	BAND: {name: "BAND", form: FormVarVarVar}, BOR: {name: "BOR", form: FormVarVarVar},
	BXOR: {name: "BXOR", form: FormVarVarVar}, BSLL: {name: "BSLL", form: FormVarVarVar},
	BSRL: {name: "BSRL", form: FormVarVarVar}, BSRA: {name: "BSRA", form: FormVarVarVar},
	BAND64: {name: "BAND64", form: FormVarVarVar}, BOR64: {name: "BOR64", form: FormVarVarVar},
	BXOR64: {name: "BXOR64", form: FormVarVarVar}, BSLL64: {name: "BSLL64", form: FormVarVarVar},
	BSRL64: {name: "BSRL64", form: FormVarVarVar}, BSRA64: {name: "BSRA64", form: FormVarVarVar},

	SetV1: {name: "SetV1", form: FormVarArg}, SetV2: {name: "SetV2", form: FormVarArg},
	SetV4: {name: "SetV4", form: FormVarArg}, SetV8: {name: "SetV8", form: FormVarArg},
	CpyVtoV4: {name: "CpyVtoV4", form: FormVarVar}, CpyVtoV8: {name: "CpyVtoV8", form: FormVarVar},
	CpyVtoR4: {name: "CpyVtoR4", form: FormVar}, CpyVtoR8: {name: "CpyVtoR8", form: FormVar},
	CpyRtoV4: {name: "CpyRtoV4", form: FormVar}, CpyRtoV8: {name: "CpyRtoV8", form: FormVar},
	ClrHi: {name: "ClrHi"},
	RDR1: {name: "RDR1", form: FormVar}, RDR2: {name: "RDR2", form: FormVar},
	RDR4: {name: "RDR4", form: FormVar}, RDR8: {name: "RDR8", form: FormVar},
	WRTV1: {name: "WRTV1", form: FormVar}, WRTV2: {name: "WRTV2", form: FormVar},
	WRTV4: {name: "WRTV4", form: FormVar}, WRTV8: {name: "WRTV8", form: FormVar},
	LDG: {name: "LDG", form: FormDW}, LDV: {name: "LDV", form: FormVar},

	ITOF: {name: "iTOf", form: FormVar}, FTOI: {name: "fTOi", form: FormVar},
	UTOF: {name: "uTOf", form: FormVar}, FTOU: {name: "fTOu", form: FormVar},
	SBTOI: {name: "sbTOi", form: FormVar}, SWTOI: {name: "swTOi", form: FormVar},
	UBTOI: {name: "ubTOi", form: FormVar}, UWTOI: {name: "uwTOi", form: FormVar},
	ITOB: {name: "iTOb", form: FormVar}, ITOW: {name: "iTOw", form: FormVar},
	DTOI: {name: "dTOi", form: FormVarVar}, DTOU: {name: "dTOu", form: FormVarVar},
	DTOF: {name: "dTOf", form: FormVarVar}, ITOD: {name: "iTOd", form: FormVarVar},
	UTOD: {name: "uTOd", form: FormVarVar}, FTOD: {name: "fTOd", form: FormVarVar},
	I64TOI: {name: "i64TOi", form: FormVarVar}, UTOI64: {name: "uTOi64", form: FormVarVar},
	ITOI64: {name: "iTOi64", form: FormVarVar}, FTOI64: {name: "fTOi64", form: FormVarVar},
	FTOU64: {name: "fTOu64", form: FormVarVar}, DTOI64: {name: "dTOi64", form: FormVar},
	DTOU64: {name: "dTOu64", form: FormVar}, I64TOF: {name: "i64TOf", form: FormVarVar},
	U64TOF: {name: "u64TOf", form: FormVarVar}, I64TOD: {name: "i64TOd", form: FormVar},
	U64TOD: {name: "u64TOd", form: FormVar},

	CALL:     {name: "CALL", form: FormFunc, variable: true},
	CALLSYS:  {name: "CALLSYS", form: FormFunc, variable: true},
	CALLINTF: {name: "CALLINTF", form: FormFunc, variable: true},
	ALLOC:    {name: "ALLOC", form: FormTypeFunc, variable: true},
	FREE:     {name: "FREE", form: FormVarType},
	LOADOBJ:  {name: "LOADOBJ", form: FormVar},
	STOREOBJ: {name: "STOREOBJ", form: FormVar},
	REFCPY:   {name: "REFCPY", form: FormType, ptrInc: -1},
	COPY:     {name: "COPY", form: FormType, ptrInc: -1},
	Cast:     {name: "Cast", form: FormType, ptrInc: -1},
	SUSPEND:  {name: "SUSPEND"},

	Label: {name: "Label", form: FormLabel},
	Line:  {name: "Line", form: FormDW},
}

func (op Op) String() string {
	if op < opCount {
		return opTable[op].name
	}
	return "<bad op>"
}

func (op Op) Form() Form {
	if op < opCount {
		return opTable[op].form
	}
	return FormNone
}

// IsJump reports whether the instruction's A operand is a label or jump target.
func (op Op) IsJump() bool {
	return op >= JMP && op <= JNP
}

// StackEffect is the fixed number of dwords the instruction pushes (negative for pops).
// The second result is false for instructions whose effect is recorded per instruction.
func (op Op) StackEffect(ptr int) (int, bool) {
	info := opTable[op]
	if info.variable {
		return 0, false
	}
	return info.inc + info.ptrInc*ptr, true
}
