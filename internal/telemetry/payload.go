// Package telemetry turns loosely-typed meter payloads into canonical
// numeric snapshots and per-channel readings. Every function here is
// best-effort: malformed input degrades to absent fields, never to an
// error.
package telemetry

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// RawPayload is the decoded body of the last message received from a
// device. It is either the message's JSON object or a {"_raw": text}
// wrapper when the body was not one.
type RawPayload map[string]any

// DecodeRawPayload decodes a message body into a RawPayload. Invalid
// UTF-8 sequences are replaced, and anything that does not parse as a
// JSON object (bare numbers, strings, arrays, garbage) is wrapped under
// the "_raw" key so the original text survives.
func DecodeRawPayload(body []byte) RawPayload {
	text := string(body)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		if obj, ok := v.(map[string]any); ok {
			return RawPayload(obj)
		}
	}
	return RawPayload{"_raw": text}
}

// IsRawFallback reports whether the payload is the wrapper produced for a
// non-object body.
func (p RawPayload) IsRawFallback() bool {
	_, ok := p["_raw"]
	return ok && len(p) == 1
}
