// Package mqtt subscribes to the device telemetry topics and runs the
// ingestion pipeline for every inbound message: topic parse, cache
// update, and best-effort persistence and broadcast.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/ksaver/powermon/internal/config"
	"github.com/ksaver/powermon/internal/devstore"
	"github.com/ksaver/powermon/internal/telemetry"
	"github.com/ksaver/powermon/internal/topic"
	"github.com/ksaver/powermon/internal/ws"
)

// Sink persists the normalized view of an ingested message. Failures are
// the implementation's problem; the pipeline never sees them.
type Sink interface {
	Write(rec devstore.Record, payload telemetry.RawPayload, ts time.Time)
}

// Broadcaster fans an ingestion event out to live viewers without
// blocking the caller.
type Broadcaster interface {
	Broadcast(event any)
}

// Subscriber owns the broker connection and the per-message pipeline.
type Subscriber struct {
	cfg   config.MQTTConfig
	store *devstore.Store
	sink  Sink
	hub   Broadcaster
	log   zerolog.Logger

	client pahomqtt.Client
}

// NewSubscriber wires the pipeline. Start must be called to connect.
func NewSubscriber(cfg config.MQTTConfig, store *devstore.Store, sink Sink, hub Broadcaster, log zerolog.Logger) *Subscriber {
	return &Subscriber{cfg: cfg, store: store, sink: sink, hub: hub, log: log}
}

// Start connects to the broker and subscribes to the configured wildcard
// topic. Reconnects (and the initial connect, if the broker is down) are
// retried in the background; the subscription is re-established on every
// connect.
func (s *Subscriber) Start() error {
	scheme := "tcp"
	if s.cfg.TLS {
		scheme = "ssl"
	}
	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("powermon-%d", time.Now().Unix())
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, s.cfg.Host, s.cfg.Port)).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		s.log.Info().Str("topic", s.cfg.Topic).Msg("mqtt connected, subscribing")
		if token := c.Subscribe(s.cfg.Topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
			s.log.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	s.client = pahomqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

// handleMessage runs on the broker client's delivery goroutine. Nothing
// may escape it: a fault here would tear down the subscription.
func (s *Subscriber) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("ingest panicked")
		}
	}()
	s.ingest(msg.Topic(), msg.Payload(), time.Now())
}

// ingest is the pipeline for one inbound message. Messages on subjects
// that do not parse are expected noise on a shared bus and dropped
// silently. The cache update always happens; persistence and broadcast
// are each best-effort and isolated from one another.
func (s *Subscriber) ingest(subject string, body []byte, now time.Time) {
	country, siteID, model, deviceID, kind, ok := topic.Parse(subject)
	if !ok {
		return
	}
	key := topic.MakeKey(country, siteID, model, deviceID)
	payload := telemetry.DecodeRawPayload(body)

	rec := devstore.Record{
		Country:   country,
		SiteID:    siteID,
		Model:     model,
		DeviceID:  deviceID,
		LastSeen:  now,
		LastType:  kind,
		LastTopic: subject,
	}
	s.store.Upsert(key, rec, payload)

	s.persist(rec, payload, now)
	s.broadcast(key, payload, now)
}

func (s *Subscriber) persist(rec devstore.Record, payload telemetry.RawPayload, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("sink write panicked")
		}
	}()
	s.sink.Write(rec, payload, now)
}

func (s *Subscriber) broadcast(key string, payload telemetry.RawPayload, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("broadcast panicked")
		}
	}()
	s.hub.Broadcast(ws.NewTelemetryEvent(key, payload, now))
}
