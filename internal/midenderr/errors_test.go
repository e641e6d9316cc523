package midenderr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"molt-midend/internal/midenderr"
)

func TestErrorMessagesNameTheirFields(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&midenderr.CfgInvalid{Stage: "cfg", Reason: "bad thing"}, "cfg invalid at stage cfg: bad thing"},
		{&midenderr.VerifierFailure{OpIndex: 3, OpKind: "ADD", MissingName: "x"}, "definite-assignment verifier: op 3 (ADD) uses undefined value x"},
		{&midenderr.BudgetExceeded{Stage: "driver", SpentMS: 10, BudgetMS: 5}, "budget exceeded at stage driver"},
		{&midenderr.ConvergenceFailure{Rounds: 12}, "failed to converge after 12 rounds"},
		{&midenderr.InternalInvariant{Stage: "validate", Message: "phi shape"}, "internal invariant violated at validate: phi shape"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.err.Error())
	}
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	base := errors.New("boom")
	wrapped := midenderr.Wrap(base, "cfg")
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "stage cfg")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, midenderr.Wrap(nil, "cfg"))
}
