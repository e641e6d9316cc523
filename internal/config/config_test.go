package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"molt-midend/internal/config"
)

func TestFromEnvDefaultsAreAllOff(t *testing.T) {
	t.Setenv("MOLT_MIDEND_HARD_FAIL", "")
	t.Setenv("MOLT_MIDEND_DEV_ENABLE", "")
	t.Setenv("MOLT_MIDEND_BUDGET_MS", "")
	t.Setenv("MOLT_SCCP_MAX_ITERS", "")

	c := config.FromEnv()
	assert.False(t, c.HardFail)
	assert.False(t, c.DevEnable)
	assert.Nil(t, c.BudgetMSOverride)
	assert.Nil(t, c.SCCPMaxItersOverride)
}

func TestFromEnvParsesOverrides(t *testing.T) {
	t.Setenv("MOLT_MIDEND_HARD_FAIL", "1")
	t.Setenv("MOLT_MIDEND_DEV_ENABLE", "1")
	t.Setenv("MOLT_MIDEND_BUDGET_MS", "12.5")
	t.Setenv("MOLT_SCCP_MAX_ITERS", "200000")

	c := config.FromEnv()
	assert.True(t, c.HardFail)
	assert.True(t, c.DevEnable)
	if assert.NotNil(t, c.BudgetMSOverride) {
		assert.Equal(t, 12.5, *c.BudgetMSOverride)
	}
	if assert.NotNil(t, c.SCCPMaxItersOverride) {
		assert.Equal(t, 200000, *c.SCCPMaxItersOverride)
	}
}

func TestFromEnvIgnoresUnparseableOverrides(t *testing.T) {
	t.Setenv("MOLT_MIDEND_BUDGET_MS", "not-a-number")
	t.Setenv("MOLT_SCCP_MAX_ITERS", "not-a-number")

	c := config.FromEnv()
	assert.Nil(t, c.BudgetMSOverride)
	assert.Nil(t, c.SCCPMaxItersOverride)
}
