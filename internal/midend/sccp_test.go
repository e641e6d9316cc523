package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/tir"
)

func TestSCCPFoldsConstantArithmetic(t *testing.T) {
	ops := []tir.Op{
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(2)}, Result: v("a")},
		{Kind: tir.OpConst, Args: []tir.Arg{tir.ImmArg(3)}, Result: v("b")},
		{Kind: tir.OpAdd, Args: []tir.Arg{tir.ValueArg(v("a")), tir.ValueArg(v("b"))}, Result: v("sum")},
		{Kind: tir.OpReturn, Args: []tir.Arg{tir.ValueArg(v("sum"))}, Result: tir.NoneValue},
	}
	cfg, err := Build(ops)
	require.NoError(t, err)
	res := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	require.Contains(t, res.Values, "sum")
	assert.Equal(t, latConst, res.Values["sum"].kind)
	assert.EqualValues(t, 5, res.Values["sum"].val)
}

func TestSCCPProvesConstantBranchChoice(t *testing.T) {
	ops := ifElseOps()
	cfg, err := Build(ops)
	require.NoError(t, err)
	res := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	assert.Equal(t, "then", res.BranchChoice[1])
}

func TestSCCPEvalMatchesBeforeAndAfterDCE(t *testing.T) {
	ops := ifElseOps()
	before, err := Eval(ops)
	require.NoError(t, err)
	assert.EqualValues(t, 1, before)

	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	threaded := ThreadEdges(ops, cfg, sccp, nil)

	cfg2, err := Build(threaded)
	require.NoError(t, err)
	sccp2 := ComputeSCCP(threaded, cfg2, SCCPConfig{}, nil)
	pruned := RunDCE(threaded, cfg2, &sccp2, nil)
	pruned = PruneNoopJumps(pruned, nil)

	after, err := Eval(pruned)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSCCPIterationCapIsRecordedAndConservative(t *testing.T) {
	ops := ifElseOps()
	cfg, err := Build(ops)
	require.NoError(t, err)
	res := ComputeSCCP(ops, cfg, SCCPConfig{MaxIters: 1}, nil)
	if res.IterationCapHit {
		for _, b := range cfg.Blocks {
			assert.True(t, res.ExecutableBlocks[b.ID])
		}
	}
}
