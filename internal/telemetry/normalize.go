package telemetry

import (
	"strconv"
	"strings"
)

// Snapshot is the canonical numeric view of a raw payload. Nil pointers
// mean the field was absent from (or not coercible in) the payload; they
// serialize as JSON null, matching what readers expect.
type Snapshot struct {
	KW  *float64 `json:"kw"`
	KWh *float64 `json:"kwh"`

	VL1  *float64 `json:"v_l1"`
	VL2  *float64 `json:"v_l2"`
	VL3  *float64 `json:"v_l3"`
	VAvg *float64 `json:"v_avg"`

	AL1  *float64 `json:"a_l1"`
	AL2  *float64 `json:"a_l2"`
	AL3  *float64 `json:"a_l3"`
	AAvg *float64 `json:"a_avg"`

	PFL1  *float64 `json:"pf_l1"`
	PFL2  *float64 `json:"pf_l2"`
	PFL3  *float64 `json:"pf_l3"`
	PFAvg *float64 `json:"pf_avg"`

	// DI maps slots 1..16 to 0, 1 or null. Nil when the payload carried
	// no digital-input source at all.
	DI map[int]*int `json:"di"`
}

// Scalar pairs a snapshot field with its wire name, in a stable order.
type Scalar struct {
	Name  string
	Value *float64
}

// Scalars lists the snapshot's numeric fields for persistence.
func (s Snapshot) Scalars() []Scalar {
	return []Scalar{
		{"kw", s.KW}, {"kwh", s.KWh},
		{"v_avg", s.VAvg}, {"a_avg", s.AAvg}, {"pf_avg", s.PFAvg},
		{"v_l1", s.VL1}, {"v_l2", s.VL2}, {"v_l3", s.VL3},
		{"a_l1", s.AL1}, {"a_l2", s.AL2}, {"a_l3", s.AL3},
		{"pf_l1", s.PFL1}, {"pf_l2", s.PFL2}, {"pf_l3", s.PFL3},
	}
}

// Normalize coerces a raw payload into a Snapshot. It never fails: any
// field that cannot become a number is simply absent from the result.
//
// For each quantity family (V, A, PF): when the aggregate is present and
// no per-phase value is, all three phases are back-filled from the
// aggregate; when the aggregate is absent it becomes the mean of the
// present phases, rounded to 3 decimals.
func Normalize(payload RawPayload) Snapshot {
	p := map[string]any(payload)
	if p == nil {
		p = map[string]any{}
	}

	var s Snapshot

	s.VL1, s.VL2, s.VL3 = phaseTriple(p, "v")
	s.VAvg = resolveAlias(p, "v_avg", "v", "volt", "voltage")
	s.VL1, s.VL2, s.VL3, s.VAvg = reconcile(s.VL1, s.VL2, s.VL3, s.VAvg)

	s.AL1, s.AL2, s.AL3 = phaseTriple(p, "a")
	s.AAvg = resolveAlias(p, "a_avg", "a", "amp", "current")
	s.AL1, s.AL2, s.AL3, s.AAvg = reconcile(s.AL1, s.AL2, s.AL3, s.AAvg)

	s.PFL1, s.PFL2, s.PFL3 = phaseTriple(p, "pf")
	s.PFAvg = resolveAlias(p, "pf_avg", "pf", "power_factor")
	s.PFL1, s.PFL2, s.PFL3, s.PFAvg = reconcile(s.PFL1, s.PFL2, s.PFL3, s.PFAvg)

	s.KW = resolveAlias(p, "kw", "kW", "p", "power_kw")
	s.KWh = resolveAlias(p, "kwh", "kWh", "energy_kwh")

	s.DI = resolveDI(p)

	return s
}

// phaseTriple resolves the three per-phase values of a quantity under the
// {x}_l{n}, {x}{n} and {x}l{n} spellings.
func phaseTriple(p map[string]any, prefix string) (l1, l2, l3 *float64) {
	l1 = resolveAlias(p, prefix+"_l1", prefix+"1", prefix+"l1")
	l2 = resolveAlias(p, prefix+"_l2", prefix+"2", prefix+"l2")
	l3 = resolveAlias(p, prefix+"_l3", prefix+"3", prefix+"l3")
	return l1, l2, l3
}

// reconcile applies the aggregate/per-phase fill rule for one quantity.
func reconcile(l1, l2, l3, avg *float64) (*float64, *float64, *float64, *float64) {
	if avg != nil && l1 == nil && l2 == nil && l3 == nil {
		return clone(avg), clone(avg), clone(avg), avg
	}
	if avg == nil {
		avg = mean3(l1, l2, l3)
	}
	return l1, l2, l3, avg
}

// diTruthy maps boolean-like digital-input tokens to 1, everything else
// to 0. The accepted "on" spellings are 1, "1", "true", "True", "ON" and
// "on".
func diTruthy(v any) int {
	switch t := v.(type) {
	case float64:
		if t == 1 {
			return 1
		}
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		switch t {
		case "1", "true", "True", "ON", "on":
			return 1
		}
		return 0
	default:
		return 0
	}
}

// resolveDI builds the 16-slot digital-input map. Sources, in priority
// order: an object keyed "1".."16", else a list (first 16 entries, non-0/1
// entries become null). Flat di1..di16 keys are applied last and always
// win. When no source exists the result is nil, not a map of nulls.
func resolveDI(p map[string]any) map[int]*int {
	bits := map[int]*int{}

	switch di := p["di"].(type) {
	case map[string]any:
		for k, v := range di {
			i, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil || i < 1 || i > 16 {
				continue
			}
			b := diTruthy(v)
			bits[i] = &b
		}
	case []any:
		for idx, v := range di {
			if idx >= 16 {
				break
			}
			slot := idx + 1
			switch n := v.(type) {
			case float64:
				if n == 0 || n == 1 {
					b := int(n)
					bits[slot] = &b
				} else {
					bits[slot] = nil
				}
			case bool:
				b := 0
				if n {
					b = 1
				}
				bits[slot] = &b
			default:
				bits[slot] = nil
			}
		}
	}

	for i := 1; i <= 16; i++ {
		if v, ok := p["di"+strconv.Itoa(i)]; ok {
			b := diTruthy(v)
			bits[i] = &b
		}
	}

	if len(bits) == 0 {
		return nil
	}
	out := make(map[int]*int, 16)
	for i := 1; i <= 16; i++ {
		out[i] = bits[i]
	}
	return out
}
