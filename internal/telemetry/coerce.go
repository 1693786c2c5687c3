package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// tryParseNumber reports the value of v when it is a finite number, a
// numeric string, or a bool. Everything else is absent.
func tryParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truthy reports whether v counts as a present value during alias
// resolution. Zero numbers, empty strings and empty collections do not.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// resolveAlias looks a logical field up under its accepted key spellings.
// The first truthy value wins; when every alias is falsy the value under
// the final alias is still coerced. A zero reading under a non-final
// alias is therefore skipped; see DESIGN.md for why that quirk is kept.
func resolveAlias(p map[string]any, aliases ...string) *float64 {
	for _, k := range aliases {
		if v, ok := p[k]; ok && truthy(v) {
			if f, ok := tryParseNumber(v); ok {
				return &f
			}
			return nil
		}
	}
	if f, ok := tryParseNumber(p[aliases[len(aliases)-1]]); ok {
		return &f
	}
	return nil
}

// mean3 averages the present values, rounded to 3 decimal places.
func mean3(vals ...*float64) *float64 {
	var sum float64
	n := 0
	for _, v := range vals {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := math.Round(sum/float64(n)*1000) / 1000
	return &m
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
