package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"molt-midend/internal/telemetry"
)

func TestBumpCanonicalizesKeysToSnakeCase(t *testing.T) {
	stats := telemetry.NewFunctionStats()
	stats.Bump("SCCPIterationCapHits", 1)
	stats.Bump("sccp_iteration_cap_hits", 2)
	assert.Equal(t, 3, stats.Get("sccp iteration cap hits"))
}

func TestPassStatsSamplesRingIsCapped(t *testing.T) {
	stats := telemetry.NewFunctionStats()
	for i := 0; i < 32; i++ {
		stats.RecordPassMS("gvn", float64(i))
	}
	pass := stats.Pass("gvn")
	assert.LessOrEqual(t, len(pass.SamplesMS), 16)
	assert.Equal(t, float64(0+1+2+3+4+5+6+7+8+9+10+11+12+13+14+15+16+17+18+19+20+21+22+23+24+25+26+27+28+29+30+31), pass.MSTotal)
}

func TestAggregatorMergeSumsTotals(t *testing.T) {
	agg := telemetry.NewAggregator()

	a := telemetry.NewFunctionStats()
	a.Bump("gvn_hits", 2)
	agg.Merge("mod.fnA", a, telemetry.PolicyOutcome{RunID: a.RunID, Profile: "dev", Tier: "A"})

	b := telemetry.NewFunctionStats()
	b.Bump("gvn_hits", 3)
	agg.Merge("mod.fnB", b, telemetry.PolicyOutcome{RunID: b.RunID, Profile: "dev", Tier: "A"})

	snap := agg.Snapshot()
	assert.Equal(t, 5, snap.Totals["gvn_hits"])
	assert.Len(t, snap.Outcomes, 2)
}
