package ws

import (
	"time"

	"github.com/ksaver/powermon/internal/telemetry"
)

// TelemetryEvent is the live-update pushed to viewers for every ingested
// message.
type TelemetryEvent struct {
	Type         string               `json:"type"`
	TS           float64              `json:"ts"`
	Key          string               `json:"key"`
	Payload      telemetry.RawPayload `json:"payload"`
	Summary      telemetry.Snapshot   `json:"summary"`
	Channels     []telemetry.Channel  `json:"channels"`
	ChannelCount int                  `json:"channel_count"`
}

// NewTelemetryEvent computes the normalized view of payload and wraps it
// for broadcast.
func NewTelemetryEvent(key string, payload telemetry.RawPayload, ts time.Time) TelemetryEvent {
	channels := telemetry.BuildChannels(payload)
	return TelemetryEvent{
		Type:         "telemetry",
		TS:           float64(ts.UnixNano()) / 1e9,
		Key:          key,
		Payload:      payload,
		Summary:      telemetry.Normalize(payload),
		Channels:     channels,
		ChannelCount: len(channels),
	}
}
