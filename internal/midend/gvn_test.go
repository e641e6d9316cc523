package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/tir"
)

func TestGVNDedupesDeadSimpleConstants(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(7)}, Result: v("a")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(7)}, Result: v("b")},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("a")), tir.ValueArg(v("b"))}, Result: v("sum")},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("sum"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	res := RunGVN(ops, cfg, sccp, true, nil)
	require.True(t, res.Dead[1])
	assert.Equal(t, "a", res.Replace["b"])

	rewritten := ApplyGVN(ops, res)
	out, err := Eval(rewritten)
	require.NoError(t, err)
	assert.EqualValues(t, 14, out)
}

func TestGVNDoesNotReuseHeapReadAcrossWrite(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpDictNew, Result: v("d")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg("k")}, Result: v("k")},
		{Kind: tir.OpIndex, Args: []tir.Arg{tir.ValueArg(v("d")), tir.ValueArg(v("k"))}, Result: v("r1")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(1)}, Result: v("one")},
		{Kind: tir.OpDictSet, Args: []tir.Arg{tir.ValueArg(v("d")), tir.ValueArg(v("k")), tir.ValueArg(v("one"))}, Result: tir.NoneValue},
		{Kind: tir.OpIndex, Args: []tir.Arg{tir.ValueArg(v("d")), tir.ValueArg(v("k"))}, Result: v("r2")},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("r2"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	res := RunGVN(ops, cfg, sccp, true, nil)
	assert.False(t, res.Dead[5], "read after a DICT_SET must not reuse the pre-write read")
}

func TestGVNReusesPureReadAcrossUnrelatedWrite(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(2)}, Result: v("a")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(3)}, Result: v("b")},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("a")), tir.ValueArg(v("b"))}, Result: v("sum1")},
		{Kind: tir.OpDictNew, Result: v("d")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg("k")}, Result: v("k")},
		{Kind: tir.OpDictSet, Args: []tir.Arg{tir.ValueArg(v("d")), tir.ValueArg(v("k")), tir.ValueArg(v("a"))}, Result: tir.NoneValue},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("a")), tir.ValueArg(v("b"))}, Result: v("sum2")},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("sum2"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	res := RunGVN(ops, cfg, sccp, true, nil)
	assert.True(t, res.Dead[6], "a pure ADD is safe to reuse across an unrelated dict write")
}

func TestGVNDoesNotReuseHeapReadInsideRaisingTry(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpDictNew, Result: v("d")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg("k")}, Result: v("k")},
		{Kind: tir.OpTryStart, Result: tir.NoneValue},
		{Kind: tir.OpIndex, Args: []tir.Arg{tir.ValueArg(v("d")), tir.ValueArg(v("k"))}, Result: v("r1")},
		{Kind: tir.OpIndex, Args: []tir.Arg{tir.ValueArg(v("d")), tir.ValueArg(v("k"))}, Result: v("r2")},
		{Kind: tir.OpCheckException, Args: []tir.Arg{tir.ImmArg("handler")}, Result: tir.NoneValue},
		{Kind: tir.OpTryEnd, Result: tir.NoneValue},
		{Kind: tir.OpJump, Args: []tir.Arg{tir.ImmArg("after")}, Result: tir.NoneValue},
		{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("handler")}, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Result: tir.NoneValue},
		{Kind: tir.OpLabel, Args: []tir.Arg{tir.ImmArg("after")}, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("r2"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	require.True(t, sccp.TryExceptionPossible[2])
	res := RunGVN(ops, cfg, sccp, true, nil)
	assert.False(t, res.Dead[4], "a read inside a may-raise try body is an unknown-effect barrier, not reusable")
}

func TestCollapseTrivialPhisRewritesUsers(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(3)}, Result: v("x")},
		{Kind: tir.OpPhi, Args: []tir.Arg{tir.ValueArg(v("x")), tir.ValueArg(v("x"))}, Result: v("y")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(1)}, Result: v("one")},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("y")), tir.ValueArg(v("one"))}, Result: v("sum")},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("sum"))}, Result: tir.NoneValue},
	}
	out, count := CollapseTrivialPhis(ops, nil)
	assert.Equal(t, 1, count)
	for _, op := range out {
		assert.NotEqual(t, tir.OpPhi, op.Kind)
	}
	add := out[2]
	require.Equal(t, tir.OpAdd, add.Kind)
	assert.Equal(t, "x", add.Args[0].Val.Name)
}
