// Package influx persists normalized telemetry to InfluxDB and serves
// the historical series queries. The sink is optional: an unconfigured
// or unreachable store never blocks or fails ingestion.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/ksaver/powermon/internal/config"
	"github.com/ksaver/powermon/internal/devstore"
	"github.com/ksaver/powermon/internal/telemetry"
)

// Sink wraps the InfluxDB client. The zero-value (or unconfigured) sink
// is valid and treats every write as a logged no-op.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	cfg      config.InfluxConfig
	log      zerolog.Logger
}

// NewSink connects to InfluxDB when configured. A failed health check is
// logged, not fatal: the async write path will surface errors per point
// and ingestion carries on regardless.
func NewSink(cfg config.InfluxConfig, log zerolog.Logger) *Sink {
	s := &Sink{cfg: cfg, log: log}
	if !cfg.Enabled() {
		log.Warn().Msg("influx not configured, persistence disabled")
		return s
	}

	s.client = influxdb2.NewClient(cfg.URL, cfg.Token)
	if _, err := s.client.Health(context.Background()); err != nil {
		log.Warn().Err(err).Str("url", cfg.URL).Msg("influx health check failed")
	}

	s.writeAPI = s.client.WriteAPI(cfg.Org, cfg.Bucket)
	s.queryAPI = s.client.QueryAPI(cfg.Org)

	// Async writes report failures on a channel; drain it so errors are
	// logged instead of piling up.
	go func() {
		for err := range s.writeAPI.Errors() {
			log.Error().Err(err).Msg("influx write failed")
		}
	}()

	log.Info().
		Str("url", cfg.URL).
		Str("org", cfg.Org).
		Str("bucket", cfg.Bucket).
		Str("measurement", cfg.Measurement).
		Msg("influx ready")
	return s
}

// Enabled reports whether writes actually reach a store.
func (s *Sink) Enabled() bool {
	return s != nil && s.writeAPI != nil
}

// Write emits one summary point plus one point per channel for an
// ingested message. It never returns an error: a disabled sink drops the
// points silently and async write failures are logged by the error
// drain.
func (s *Sink) Write(rec devstore.Record, payload telemetry.RawPayload, ts time.Time) {
	if !s.Enabled() {
		s.log.Debug().Msg("persistence disabled, dropping points")
		return
	}
	for _, p := range buildPoints(s.cfg.Measurement, rec, payload, ts) {
		s.writeAPI.WritePoint(p)
	}
}

// Close flushes pending writes and releases the client.
func (s *Sink) Close() {
	if s.Enabled() {
		s.writeAPI.Flush()
	}
	if s.client != nil {
		s.client.Close()
	}
}

// buildPoints renders the summary and channel points for one message.
// Every point carries the device identity tags plus a scope tag; fields
// hold only the values present in the normalized views.
func buildPoints(measurement string, rec devstore.Record, payload telemetry.RawPayload, ts time.Time) []*write.Point {
	snap := telemetry.Normalize(payload)
	channels := telemetry.BuildChannels(payload)

	points := make([]*write.Point, 0, 1+len(channels))

	fields := make(map[string]any)
	for _, sc := range snap.Scalars() {
		if sc.Value != nil {
			fields[sc.Name] = *sc.Value
		}
	}
	for slot, bit := range snap.DI {
		if bit != nil {
			fields["di"+strconv.Itoa(slot)] = *bit
		}
	}
	points = append(points, write.NewPoint(measurement, deviceTags(rec, "summary"), fields, ts))

	for _, ch := range channels {
		tags := deviceTags(rec, "channel")
		tags["term"] = ch.Term
		tags["phase"] = ch.Phase

		cf := make(map[string]any)
		for name, v := range map[string]*float64{"v": ch.V, "a": ch.A, "kw": ch.KW, "pf": ch.PF} {
			if v != nil {
				cf[name] = *v
			}
		}
		points = append(points, write.NewPoint(measurement, tags, cf, ts))
	}

	return points
}

func deviceTags(rec devstore.Record, scope string) map[string]string {
	return map[string]string{
		"country":   rec.Country,
		"site_id":   rec.SiteID,
		"model":     rec.Model,
		"device_id": rec.DeviceID,
		"type":      rec.LastType,
		"scope":     scope,
	}
}

// SeriesRow is one aggregated sample of a historical series.
type SeriesRow struct {
	T string  `json:"t"`
	V float64 `json:"v"`
}

// SeriesRequest selects a historical series.
type SeriesRequest struct {
	Device string
	Metric string
	Series string
	From   string
	To     string
	Group  string
}

// fieldFor maps a metric/series selection onto a stored field name.
func fieldFor(metric, series string) string {
	switch metric {
	case "kw", "kwh":
		return metric
	case "v", "a", "pf":
		switch series {
		case "l1", "l2", "l3":
			return metric + "_" + series
		}
		return metric + "_avg"
	}
	return metric
}

// QuerySeries runs an aggregate-window query over the summary points.
func (s *Sink) QuerySeries(ctx context.Context, req SeriesRequest) ([]SeriesRow, error) {
	if s == nil || s.queryAPI == nil {
		return nil, fmt.Errorf("influx not configured")
	}

	start := req.From
	if start == "" {
		start = "-7d"
	}
	stop := req.To
	if stop == "" {
		stop = "now()"
	}
	every := "1d"
	if req.Group == "hour" {
		every = "1h"
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q and r.scope == "summary" and r._field == %q)`,
		s.cfg.Bucket, start, stop, s.cfg.Measurement, fieldFor(req.Metric, req.Series))
	if req.Device != "" {
		flux += fmt.Sprintf("\n  |> filter(fn: (r) => r.device_id == %q)", req.Device)
	}
	flux += fmt.Sprintf("\n  |> aggregateWindow(every: %s, fn: mean, createEmpty: false)", every)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer result.Close()

	var rows []SeriesRow
	for result.Next() {
		rec := result.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		rows = append(rows, SeriesRow{T: rec.Time().Format("2006-01-02 15:04"), V: v})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("query series: %w", result.Err())
	}
	return rows, nil
}
