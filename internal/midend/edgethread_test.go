package midend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molt-midend/internal/tir"
)

func TestThreadEdgesRewritesProvenIfToJump(t *testing.T) {
	ops := ifElseOps()
	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	out := ThreadEdges(ops, cfg, sccp, nil)
	assert.Equal(t, tir.OpJump, out[1].Kind)
}

func TestThreadEdgesPreservesSemantics(t *testing.T) {
	ops := ifElseOps()
	before, err := Eval(ops)
	require.NoError(t, err)

	cfg, err := Build(ops)
	require.NoError(t, err)
	sccp := ComputeSCCP(ops, cfg, SCCPConfig{}, nil)
	threaded := ThreadEdges(ops, cfg, sccp, nil)

	after, err := Eval(threaded)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
