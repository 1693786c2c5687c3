package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChannelsFlatFallback(t *testing.T) {
	channels := BuildChannels(RawPayload{"v": 100.0, "a": 5.0})
	require.Len(t, channels, 3)
	for i, phase := range []string{"L1", "L2", "L3"} {
		ch := channels[i]
		assert.Equal(t, "in", ch.Term)
		assert.Equal(t, phase, ch.Phase)
		assert.Equal(t, f(100.0), ch.V)
		assert.Equal(t, f(5.0), ch.A)
		assert.Nil(t, ch.KW)
		assert.Nil(t, ch.PF)
	}
}

func TestBuildChannelsExplicitList(t *testing.T) {
	channels := BuildChannels(RawPayload{"channels": []any{
		map[string]any{"term": "out", "phase": 2.0, "v": 220.0, "pf": 0.95},
		map[string]any{"ph": "3", "amp": 4.2},
		map[string]any{},
		"not a channel",
	}})
	require.Len(t, channels, 3)

	assert.Equal(t, "out", channels[0].Term)
	assert.Equal(t, "L2", channels[0].Phase)
	assert.Equal(t, f(220.0), channels[0].V)
	assert.Equal(t, f(0.95), channels[0].PF)

	assert.Equal(t, "in", channels[1].Term)
	assert.Equal(t, "L3", channels[1].Phase)
	assert.Equal(t, f(4.2), channels[1].A)

	assert.Equal(t, "in", channels[2].Term)
	assert.Equal(t, "L1", channels[2].Phase)
	assert.Nil(t, channels[2].V)
}

func TestBuildChannelsEmpty(t *testing.T) {
	assert.Empty(t, BuildChannels(RawPayload{"di1": 1.0}))
	assert.Empty(t, BuildChannels(RawPayload{}))
	assert.Empty(t, BuildChannels(nil))
	assert.Empty(t, BuildChannels(RawPayload{"channels": []any{}}))
}

func TestBuildChannelsIndependentCopies(t *testing.T) {
	channels := BuildChannels(RawPayload{"kw": 3.2})
	require.Len(t, channels, 3)
	*channels[0].KW = 99.0
	assert.Equal(t, f(3.2), channels[1].KW)
}
