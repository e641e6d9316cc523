package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/tir"
)

func TestComputeLoopBoundFactsRecognizesAffineIV(t *testing.T) {
	ops := loopOps()
	cfg, err := Build(ops)
	require.NoError(t, err)
	facts := computeLoopBoundFacts(ops, cfg)
	require.Len(t, facts, 1)
	for _, f := range facts {
		assert.Equal(t, "i", f.ivName)
		assert.Equal(t, int64(0), f.Start)
		assert.Equal(t, int64(1), f.Step)
		assert.Equal(t, int64(10), f.Bound)
		assert.True(t, f.BoundKnown)
	}
}

// loopWithOffsetCompare builds a loop whose body compares two constant
// offsets of the same induction variable (i+2 < i+3), which must fold to
// true for every value i can hold without the analyzer needing to know i.
func loopWithOffsetCompare() []tir.Op {
	return []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(0)}, Result: v("i0")},
		{Kind: tir.OpLoopStart, Result: tir.NoneValue},
		{Kind: tir.OpPhi, Args: []tir.Arg{tir.ValueArg(v("i0")), tir.ValueArg(v("i1"))}, Result: v("i")},
		{Kind: tir.OpLt, Args: []tir.Arg{tir.ValueArg(v("i")), tir.ImmArg(10)}, Result: v("cond")},
		{Kind: tir.OpLoopBreakIfFalse, Args: []tir.Arg{tir.ValueArg(v("cond"))}, Result: tir.NoneValue},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("i")), tir.ImmArg(2)}, Result: v("lo")},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("i")), tir.ImmArg(3)}, Result: v("hi")},
		{Kind: tir.OpLt, Args: []tir.Arg{tir.ValueArg(v("lo")), tir.ValueArg(v("hi"))}, Result: v("always")},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("i")), tir.ImmArg(1)}, Result: v("i1")},
		{Kind: tir.OpLoopEnd, Result: tir.NoneValue},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("always"))}, Result: tir.NoneValue},
	}
}

func TestProveMonotonicCompareAtFoldsOffsetCompare(t *testing.T) {
	ops := loopWithOffsetCompare()
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	l, ok := sccp.Values["always"]
	require.True(t, ok)
	require.Equal(t, latConst, l.kind)
	assert.Equal(t, true, l.val)
}

func TestDecomposeArgMatchesSharedBase(t *testing.T) {
	ops := loopWithOffsetCompare()
	lBase, lOff, lOK := decomposeArg(ops, tir.ValueArg(v("lo")))
	rBase, rOff, rOK := decomposeArg(ops, tir.ValueArg(v("hi")))
	require.True(t, lOK)
	require.True(t, rOK)
	assert.Equal(t, "i", lBase)
	assert.Equal(t, "i", rBase)
	assert.Equal(t, int64(2), lOff)
	assert.Equal(t, int64(3), rOff)
}
