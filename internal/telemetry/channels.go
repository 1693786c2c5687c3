package telemetry

// Channel is one phase-scoped electrical reading within a payload.
type Channel struct {
	Term  string   `json:"term"`
	Phase string   `json:"phase"`
	V     *float64 `json:"v"`
	A     *float64 `json:"a"`
	KW    *float64 `json:"kw"`
	PF    *float64 `json:"pf"`
}

// BuildChannels derives the per-channel readings from a raw payload.
//
// When the payload carries an explicit "channels" list, each entry is
// coerced (numeric phase 1/2/3 becomes L1/L2/L3, missing term defaults to
// "in", missing phase to L1). Otherwise, if at least one of v/a/kw/pf is
// present as a flat field, three identical channels are emitted, one per
// phase, so single-aggregate devices still render symmetrically. With
// neither source the list is empty.
func BuildChannels(payload RawPayload) []Channel {
	p := map[string]any(payload)
	if p == nil {
		return []Channel{}
	}

	if raw, ok := p["channels"].([]any); ok && len(raw) > 0 {
		fixed := make([]Channel, 0, len(raw))
		for _, item := range raw {
			c, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fixed = append(fixed, Channel{
				Term:  channelTerm(c),
				Phase: channelPhase(c),
				V:     resolveAlias(c, "v", "volt", "voltage"),
				A:     resolveAlias(c, "a", "amp", "current"),
				KW:    resolveAlias(c, "kw", "kW", "p", "power_kw"),
				PF:    resolveAlias(c, "pf", "power_factor"),
			})
		}
		return fixed
	}

	v := resolveAlias(p, "v", "volt", "voltage")
	a := resolveAlias(p, "a", "amp", "current")
	kw := resolveAlias(p, "kw", "kW", "p", "power_kw")
	pf := resolveAlias(p, "pf", "power_factor")
	if v == nil && a == nil && kw == nil && pf == nil {
		return []Channel{}
	}

	out := make([]Channel, 0, 3)
	for _, phase := range []string{"L1", "L2", "L3"} {
		out = append(out, Channel{
			Term:  "in",
			Phase: phase,
			V:     clone(v),
			A:     clone(a),
			KW:    clone(kw),
			PF:    clone(pf),
		})
	}
	return out
}

func channelTerm(c map[string]any) string {
	for _, k := range []string{"term", "io", "side"} {
		if v, ok := c[k]; ok && truthy(v) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return "in"
}

func channelPhase(c map[string]any) string {
	var raw any
	for _, k := range []string{"phase", "ph"} {
		if v, ok := c[k]; ok && truthy(v) {
			raw = v
			break
		}
	}
	switch t := raw.(type) {
	case float64:
		switch t {
		case 1:
			return "L1"
		case 2:
			return "L2"
		case 3:
			return "L3"
		}
	case string:
		switch t {
		case "1":
			return "L1"
		case "2":
			return "L2"
		case "3":
			return "L3"
		}
		return t
	}
	return "L1"
}
