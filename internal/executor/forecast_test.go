package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperforecast_Bounds(t *testing.T) {
	for i := 0; i < 500; i++ {
		f := superforecast("m1", "Will turnout exceed 60%?", "Yes")
		assert.Greater(t, f.Probability, 0.0)
		assert.Less(t, f.Probability, 1.0)
		assert.GreaterOrEqual(t, f.Confidence, 0.3)
		assert.LessOrEqual(t, f.Confidence, 0.95)
	}
}

func TestSuperforecast_BullishBias(t *testing.T) {
	for i := 0; i < 200; i++ {
		f := superforecast("m1", "Will bitcoin rise above 100k?", "Yes")
		assert.GreaterOrEqual(t, f.Probability, 0.1, "bullish keywords push the floor up")
		assert.LessOrEqual(t, f.Probability, 0.95)
	}
}

func TestSuperforecast_BearishBias(t *testing.T) {
	for i := 0; i < 200; i++ {
		f := superforecast("m1", "Will the market crash this quarter?", "Yes")
		assert.GreaterOrEqual(t, f.Probability, 0.05)
		assert.LessOrEqual(t, f.Probability, 0.9, "bearish keywords pull the ceiling down")
	}
}

func TestSuperforecast_ReasoningMentionsProbability(t *testing.T) {
	f := superforecast("m1", "q", "Yes")
	require.NotEmpty(t, f.Reasoning)
	assert.Contains(t, f.Reasoning, "%")
}

func TestBetaSample_WithinUnitInterval(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := betaSample()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.3, clamp(0.1, 0.3, 0.95))
	assert.Equal(t, 0.95, clamp(1.2, 0.3, 0.95))
	assert.Equal(t, 0.5, clamp(0.5, 0.3, 0.95))
}
