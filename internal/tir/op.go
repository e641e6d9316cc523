// Package tir defines the typed intermediate representation the mid-end
// optimizer consumes and produces: a flat, ordered sequence of Op records
// per function, threaded through SSA-ish Values.
package tir

// OpKind tags the ~80 TIR opcodes the front-end may emit. New opcodes must
// be classified in internal/midend (purity, effect class, terminator-ness)
// before they are safe to add here.
type OpKind int

const (
	OpInvalid OpKind = iota

	// Constants
	OpConst
	OpConstBool
	OpConstStr
	OpConstNone

	// Arithmetic / comparison
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNot
	OpIs
	OpAnd
	OpOr

	// Introspection
	OpTypeOf
	OpLen

	// Containers / attributes
	OpIndex
	OpListNew
	OpListAppend
	OpDictNew
	OpDictSet
	OpTupleNew
	OpCodeNew
	OpModuleGetAttr
	OpGetAttrName
	OpGetAttrGenericObj

	// Calls / control transfer
	OpCallInternal
	OpRaise
	OpReturn
	OpJump
	OpLabel

	// Structured regions
	OpIf
	OpElse
	OpEndIf
	OpLoopStart
	OpLoopEnd
	OpLoopBreak
	OpLoopBreakIfTrue
	OpLoopBreakIfFalse
	OpLoopContinue
	OpLoopIndexStart
	OpTryStart
	OpTryEnd
	OpCheckException

	// SSA plumbing / metadata
	OpPhi
	OpGuardTag
	OpGuardDictShape
	OpLine
	OpStateLabel
	OpMissing
)

var opKindNames = map[OpKind]string{
	OpConst: "CONST", OpConstBool: "CONST_BOOL", OpConstStr: "CONST_STR", OpConstNone: "CONST_NONE",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpEq: "EQ", OpNe: "NE", OpLt: "LT", OpLe: "LE", OpGt: "GT", OpGe: "GE",
	OpNot: "NOT", OpIs: "IS", OpAnd: "AND", OpOr: "OR",
	OpTypeOf: "TYPE_OF", OpLen: "LEN",
	OpIndex: "INDEX", OpListNew: "LIST_NEW", OpListAppend: "LIST_APPEND",
	OpDictNew: "DICT_NEW", OpDictSet: "DICT_SET", OpTupleNew: "TUPLE_NEW", OpCodeNew: "CODE_NEW",
	OpModuleGetAttr: "MODULE_GET_ATTR", OpGetAttrName: "GETATTR_NAME", OpGetAttrGenericObj: "GETATTR_GENERIC_OBJ",
	OpCallInternal: "CALL_INTERNAL", OpRaise: "RAISE", OpReturn: "RETURN", OpJump: "JUMP", OpLabel: "LABEL",
	OpIf: "IF", OpElse: "ELSE", OpEndIf: "END_IF",
	OpLoopStart: "LOOP_START", OpLoopEnd: "LOOP_END", OpLoopBreak: "LOOP_BREAK",
	OpLoopBreakIfTrue: "LOOP_BREAK_IF_TRUE", OpLoopBreakIfFalse: "LOOP_BREAK_IF_FALSE",
	OpLoopContinue: "LOOP_CONTINUE", OpLoopIndexStart: "LOOP_INDEX_START",
	OpTryStart: "TRY_START", OpTryEnd: "TRY_END", OpCheckException: "CHECK_EXCEPTION",
	OpPhi: "PHI", OpGuardTag: "GUARD_TAG", OpGuardDictShape: "GUARD_DICT_SHAPE",
	OpLine: "LINE", OpStateLabel: "STATE_LABEL", OpMissing: "MISSING",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return "INVALID"
}

// ParseOpKind is the inverse of OpKind.String, used when decoding ops from
// the JSON shape the front-end emits (see cmd/molt-optctl).
func ParseOpKind(name string) (OpKind, bool) {
	for k, n := range opKindNames {
		if n == name {
			return k, true
		}
	}
	return OpInvalid, false
}

// Value is a named SSA-ish result. Names are unique within a function in
// canonical form; after rewriting, analyses must key on op index rather
// than Value identity (names may be reused across rounds).
type Value struct {
	Name string
}

// NoneValue is the distinguished result for ops that produce nothing.
var NoneValue = Value{Name: "none"}

func (v Value) IsNone() bool { return v.Name == "" || v.Name == "none" }

// Arg is either a reference to a Value or an immediate literal. Exactly one
// of the two is set; IsVal reports which.
type Arg struct {
	Val    Value
	Imm    any
	IsVal  bool
}

func ValueArg(v Value) Arg { return Arg{Val: v, IsVal: true} }
func ImmArg(v any) Arg     { return Arg{Imm: v, IsVal: false} }

// Op is an immutable record: a tagged kind, a positional argument vector,
// and a single named result (NoneValue when the op produces nothing).
type Op struct {
	Kind   OpKind
	Args   []Arg
	Result Value
}

// ValueArgs returns the Values referenced directly by this op's arguments,
// skipping immediates.
func (o Op) ValueArgs() []Value {
	var out []Value
	for _, a := range o.Args {
		if a.IsVal {
			out = append(out, a.Val)
		}
	}
	return out
}

// HasResult reports whether this op defines a (non-none) value.
func (o Op) HasResult() bool { return !o.Result.IsNone() }
