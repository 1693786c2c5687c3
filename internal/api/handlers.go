// Package api exposes the HTTP query layer over the device cache, the
// series store and the live-viewer websocket endpoint.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ksaver/powermon/internal/auth"
	"github.com/ksaver/powermon/internal/devstore"
	"github.com/ksaver/powermon/internal/influx"
	"github.com/ksaver/powermon/internal/report"
	"github.com/ksaver/powermon/internal/telemetry"
	"github.com/ksaver/powermon/internal/topic"
	"github.com/ksaver/powermon/internal/ws"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves the read-side endpoints.
type Handler struct {
	store *devstore.Store
	sink  *influx.Sink
	hub   *ws.Hub
	auth  *auth.Manager
	log   zerolog.Logger
}

// NewHandler wires the query layer's collaborators.
func NewHandler(store *devstore.Store, sink *influx.Sink, hub *ws.Hub, authMgr *auth.Manager, log zerolog.Logger) *Handler {
	return &Handler{store: store, sink: sink, hub: hub, auth: authMgr, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// deviceItem is one entry of the device list response.
type deviceItem struct {
	Country   string  `json:"country"`
	SiteID    string  `json:"site_id"`
	Model     string  `json:"model"`
	DeviceID  string  `json:"device_id"`
	LastSeen  float64 `json:"last_seen"`
	LastType  string  `json:"last_type"`
	LastTopic string  `json:"last_topic"`

	AgeSec float64 `json:"age_sec"`
	Online bool    `json:"online"`

	LastPayload  telemetry.RawPayload `json:"last_payload"`
	SummaryValue telemetry.Snapshot   `json:"summary_value"`
	Channels     []telemetry.Channel  `json:"channels"`
	ChannelCount int                  `json:"channel_count"`

	KW *float64 `json:"kw"`
	PF *float64 `json:"pf"`

	DeviceTopic   string `json:"device_topic"`
	DeviceShort   string `json:"device_short"`
	DeviceDisplay string `json:"device_display"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (h *Handler) deviceItemFor(key string, rec devstore.Record, payload telemetry.RawPayload, now time.Time) deviceItem {
	if payload == nil {
		payload = telemetry.RawPayload{}
	}
	age := devstore.Age(rec.LastSeen, now)
	snap := telemetry.Normalize(payload)
	channels := telemetry.BuildChannels(payload)

	short := rec.DeviceID
	display := rec.DeviceID
	if short == "" {
		short = key
		display = key
	}

	return deviceItem{
		Country:   rec.Country,
		SiteID:    rec.SiteID,
		Model:     rec.Model,
		DeviceID:  rec.DeviceID,
		LastSeen:  unixSeconds(rec.LastSeen),
		LastType:  rec.LastType,
		LastTopic: rec.LastTopic,

		AgeSec: round1(age.Seconds()),
		Online: h.store.Online(rec.LastSeen, now),

		LastPayload:  payload,
		SummaryValue: snap,
		Channels:     channels,
		ChannelCount: len(channels),

		KW: snap.KW,
		PF: snap.PFAvg,

		DeviceTopic:   key,
		DeviceShort:   short,
		DeviceDisplay: display,
	}
}

// ListDevices returns every known device, newest first.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	entries := h.store.List()

	items := make([]deviceItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, h.deviceItemFor(e.Key, e.Record, e.Payload, now))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LastSeen > items[j].LastSeen })

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// latestResponse embeds the snapshot so its fields appear inline next to
// the summary_value copy, matching what the frontend reads.
type latestResponse struct {
	OK        bool    `json:"ok"`
	Key       string  `json:"key"`
	Online    bool    `json:"online"`
	AgeSec    float64 `json:"age_sec"`
	LastSeen  float64 `json:"last_seen"`
	LastTopic string  `json:"last_topic"`

	Payload      telemetry.RawPayload `json:"payload"`
	Channels     []telemetry.Channel  `json:"channels"`
	ChannelCount int                  `json:"channel_count"`
	SummaryValue telemetry.Snapshot   `json:"summary_value"`

	telemetry.Snapshot
}

// DeviceLatest returns the latest state for one device, addressed by its
// four identity fields.
func (h *Handler) DeviceLatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := topic.MakeKey(q.Get("country"), q.Get("site_id"), q.Get("model"), q.Get("device_id"))

	rec, payload, err := h.store.Get(key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "device not found"})
		return
	}
	if payload == nil {
		payload = telemetry.RawPayload{}
	}

	now := time.Now()
	age := devstore.Age(rec.LastSeen, now)
	channels := telemetry.BuildChannels(payload)

	writeJSON(w, http.StatusOK, latestResponse{
		OK:        true,
		Key:       key,
		Online:    h.store.Online(rec.LastSeen, now),
		AgeSec:    round1(age.Seconds()),
		LastSeen:  unixSeconds(rec.LastSeen),
		LastTopic: rec.LastTopic,

		Payload:      payload,
		Channels:     channels,
		ChannelCount: len(channels),
		SummaryValue: telemetry.Normalize(payload),

		Snapshot: telemetry.Normalize(payload),
	})
}

// Login exchanges an email/password pair for an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	user, err := h.auth.Authenticate(body.Email, body.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid email or password"})
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		h.log.Error().Err(err).Msg("sign token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "could not issue token"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"role":         user.Role,
	})
}

// Me returns the identity behind the presented token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email": claims.Email,
		"role":  claims.Role,
		"id":    claims.Subject,
	})
}

// Series returns an aggregated historical series. When the series store
// is unavailable a synthesized ramp is returned so the endpoint stays
// usable in storage-less deployments.
func (h *Handler) Series(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := influx.SeriesRequest{
		Device: q.Get("device"),
		Metric: q.Get("metric"),
		Series: q.Get("series"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Group:  q.Get("group"),
	}
	if req.Metric == "" {
		req.Metric = "kwh"
	}
	if req.Series == "" {
		req.Series = "total"
	}
	if req.Group == "" {
		req.Group = "day"
	}

	var rows []influx.SeriesRow
	if h.sink.Enabled() {
		var err error
		rows, err = h.sink.QuerySeries(r.Context(), req)
		if err != nil {
			h.log.Warn().Err(err).Msg("series query failed, falling back to demo data")
			rows = nil
		}
	}
	if rows == nil {
		rows = demoSeries(req)
	}

	labels := make([]string, len(rows))
	values := make([]float64, len(rows))
	for i, row := range rows {
		labels[i] = row.T
		values[i] = row.V
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"meta": map[string]string{
			"device": req.Device,
			"metric": req.Metric,
			"series": req.Series,
			"from":   req.From,
			"to":     req.To,
			"group":  req.Group,
		},
		"labels": labels,
		"values": values,
		"rows":   rows,
	})
}

// demoSeries synthesizes a plausible ramp over the last five days.
func demoSeries(req influx.SeriesRequest) []influx.SeriesRow {
	base := 10.0
	switch req.Metric {
	case "v":
		base = 220.0
	case "a":
		base = 5.0
	case "pf":
		base = 0.92
	case "kw":
		base = 3.0
	case "kwh":
		base = 12.0
	}
	bump := map[string]float64{"total": 0.0, "l1": 0.3, "l2": 0.6, "l3": 0.9}[req.Series]
	step := 0.2
	if req.Metric == "kwh" || req.Metric == "kw" {
		step = 0.5
	}

	rows := make([]influx.SeriesRow, 5)
	day := time.Now().AddDate(0, 0, -4)
	for i := range rows {
		rows[i] = influx.SeriesRow{
			T: day.AddDate(0, 0, i).Format("2006-01-02"),
			V: base + bump + float64(i)*step,
		}
	}
	return rows
}

// ReportXLSX streams a spreadsheet rendering of a series.
func (h *Handler) ReportXLSX(w http.ResponseWriter, r *http.Request) {
	var req report.SeriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	buf, err := report.BuildXLSX(req)
	if err != nil {
		h.log.Error().Err(err).Msg("build report")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "report generation failed"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="period_report.xlsx"`)
	w.Write(buf.Bytes())
}

// Telemetry upgrades the connection and registers it as a live-viewer
// session.
func (h *Handler) Telemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
