package influx

import (
	"context"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaver/powermon/internal/config"
	"github.com/ksaver/powermon/internal/devstore"
	"github.com/ksaver/powermon/internal/telemetry"
)

func tagMap(p *write.Point) map[string]string {
	m := make(map[string]string)
	for _, tag := range p.TagList() {
		m[tag.Key] = tag.Value
	}
	return m
}

func fieldMap(p *write.Point) map[string]any {
	m := make(map[string]any)
	for _, field := range p.FieldList() {
		m[field.Key] = field.Value
	}
	return m
}

func testRecord(ts time.Time) devstore.Record {
	return devstore.Record{
		Country:   "th",
		SiteID:    "site001",
		Model:     "pg46",
		DeviceID:  "001",
		LastSeen:  ts,
		LastType:  "meter",
		LastTopic: "th/site001/pg46/001/meter",
	}
}

func TestBuildPointsSummary(t *testing.T) {
	ts := time.Now()
	payload := telemetry.RawPayload{"v": 220.0, "a": 5.0, "kw": 3.2, "pf": 0.95, "di1": 1.0}

	points := buildPoints("power", testRecord(ts), payload, ts)
	require.Len(t, points, 4, "one summary point plus three synthetic channels")

	summary := points[0]
	assert.Equal(t, "power", summary.Name())
	assert.Equal(t, map[string]string{
		"country":   "th",
		"site_id":   "site001",
		"model":     "pg46",
		"device_id": "001",
		"type":      "meter",
		"scope":     "summary",
	}, tagMap(summary))

	fields := fieldMap(summary)
	assert.Equal(t, 3.2, fields["kw"])
	assert.Equal(t, 220.0, fields["v_avg"])
	assert.Equal(t, 220.0, fields["v_l1"])
	assert.Equal(t, 0.95, fields["pf_avg"])
	assert.Equal(t, int64(1), fields["di1"])
	_, hasKWh := fields["kwh"]
	assert.False(t, hasKWh, "absent scalars must not become fields")

	assert.Equal(t, ts.UnixNano(), summary.Time().UnixNano())
}

func TestBuildPointsChannels(t *testing.T) {
	ts := time.Now()
	payload := telemetry.RawPayload{"channels": []any{
		map[string]any{"term": "out", "phase": 2.0, "v": 221.0, "a": 4.0},
	}}

	points := buildPoints("power", testRecord(ts), payload, ts)
	require.Len(t, points, 2)

	ch := points[1]
	tags := tagMap(ch)
	assert.Equal(t, "channel", tags["scope"])
	assert.Equal(t, "out", tags["term"])
	assert.Equal(t, "L2", tags["phase"])
	assert.Equal(t, "001", tags["device_id"])

	fields := fieldMap(ch)
	assert.Equal(t, 221.0, fields["v"])
	assert.Equal(t, 4.0, fields["a"])
	_, hasKW := fields["kw"]
	assert.False(t, hasKW)

	assert.Equal(t, ch.Time(), points[0].Time(), "all points share the event timestamp")
}

func TestBuildPointsRawFallbackPayload(t *testing.T) {
	ts := time.Now()
	payload := telemetry.DecodeRawPayload([]byte("not json at all"))

	points := buildPoints("power", testRecord(ts), payload, ts)
	require.Len(t, points, 1)
	assert.Empty(t, fieldMap(points[0]))
}

func TestDisabledSinkWriteIsNoop(t *testing.T) {
	sink := NewSink(config.InfluxConfig{}, zerolog.Nop())
	assert.False(t, sink.Enabled())
	assert.NotPanics(t, func() {
		sink.Write(testRecord(time.Now()), telemetry.RawPayload{"v": 220.0}, time.Now())
		sink.Close()
	})
}

func TestDisabledSinkQueryErrors(t *testing.T) {
	sink := NewSink(config.InfluxConfig{}, zerolog.Nop())
	_, err := sink.QuerySeries(context.Background(), SeriesRequest{Metric: "kwh"})
	assert.Error(t, err)
}

func TestFieldFor(t *testing.T) {
	assert.Equal(t, "kwh", fieldFor("kwh", "total"))
	assert.Equal(t, "kw", fieldFor("kw", "l1"))
	assert.Equal(t, "v_avg", fieldFor("v", "total"))
	assert.Equal(t, "v_l2", fieldFor("v", "l2"))
	assert.Equal(t, "pf_l3", fieldFor("pf", "l3"))
	assert.Equal(t, "a_avg", fieldFor("a", "anything"))
}
