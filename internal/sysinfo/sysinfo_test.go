package sysinfo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentClamps(t *testing.T) {
	assert.Equal(t, 0, percent(-3))
	assert.Equal(t, 0, percent(math.NaN()))
	assert.Equal(t, 46, percent(45.6))
	assert.Equal(t, 100, percent(180))
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback([]string{"up", "loopback"}))
	assert.False(t, isLoopback([]string{"up", "broadcast"}))
}

func TestHostSamplerReadsCurrentHost(t *testing.T) {
	res, err := NewHostSampler("").Resources(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	require.GreaterOrEqual(t, res.Memory, 0)
	require.LessOrEqual(t, res.Memory, 100)
}
