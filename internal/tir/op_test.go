package tir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"molt-midend/internal/tir"
)

func TestOpKindStringRoundTrips(t *testing.T) {
	for _, k := range []tir.OpKind{tir.OpConst, tir.OpIf, tir.OpLoopBreakIfTrue, tir.OpCheckException, tir.OpGuardTag} {
		name := k.String()
		parsed, ok := tir.ParseOpKind(name)
		assert.True(t, ok, "ParseOpKind(%q)", name)
		assert.Equal(t, k, parsed)
	}
}

func TestParseOpKindUnknown(t *testing.T) {
	_, ok := tir.ParseOpKind("NOT_A_REAL_OP")
	assert.False(t, ok)
}

func TestValueArgAndImmArg(t *testing.T) {
	v := tir.Value{Name: "x"}
	a := tir.ValueArg(v)
	assert.True(t, a.IsVal)
	assert.Equal(t, v, a.Val)

	b := tir.ImmArg(42)
	assert.False(t, b.IsVal)
	assert.Equal(t, 42, b.Imm)
}

func TestNoneValueIsNone(t *testing.T) {
	assert.True(t, tir.NoneValue.IsNone())
	assert.True(t, tir.Value{}.IsNone())
	assert.False(t, tir.Value{Name: "x"}.IsNone())
}

func TestOpHasResult(t *testing.T) {
	op := tir.Op{Kind: tir.OpConst, Result: tir.Value{Name: "c0"}}
	assert.True(t, op.HasResult())

	noop := tir.Op{Kind: tir.OpEndIf, Result: tir.NoneValue}
	assert.False(t, noop.HasResult())
}

func TestOpValueArgsSkipsImmediates(t *testing.T) {
	op := tir.Op{
		Kind: tir.OpAdd,
		Args: []tir.Arg{tir.ValueArg(tir.Value{Name: "a"}), tir.ImmArg(1)},
	}
	got := op.ValueArgs()
	assert.Equal(t, []tir.Value{{Name: "a"}}, got)
}
