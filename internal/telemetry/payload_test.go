package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRawPayloadObject(t *testing.T) {
	p := DecodeRawPayload([]byte(`{"v":220,"a":5}`))
	assert.False(t, p.IsRawFallback())
	assert.Equal(t, 220.0, p["v"])
	assert.Equal(t, 5.0, p["a"])
}

func TestDecodeRawPayloadNonObject(t *testing.T) {
	for _, body := range []string{`42`, `"hello"`, `[1,2,3]`, `true`} {
		p := DecodeRawPayload([]byte(body))
		require.True(t, p.IsRawFallback(), body)
		assert.Equal(t, body, p["_raw"])
	}
}

func TestDecodeRawPayloadInvalidJSON(t *testing.T) {
	p := DecodeRawPayload([]byte(`{"v":`))
	require.True(t, p.IsRawFallback())
	assert.Equal(t, `{"v":`, p["_raw"])
}

func TestDecodeRawPayloadInvalidUTF8(t *testing.T) {
	p := DecodeRawPayload([]byte{0xff, 0xfe, 'h', 'i'})
	require.True(t, p.IsRawFallback())
	raw, ok := p["_raw"].(string)
	require.True(t, ok)
	assert.Contains(t, raw, "hi")
	assert.Contains(t, raw, "�")
}

func TestDecodeRawPayloadEmpty(t *testing.T) {
	p := DecodeRawPayload(nil)
	require.True(t, p.IsRawFallback())
	assert.Equal(t, "", p["_raw"])
}
