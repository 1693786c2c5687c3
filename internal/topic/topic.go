// Package topic parses the hierarchical broker subject that identifies a
// power-metering device and derives the canonical cache key from it.
package topic

import "strings"

// segments expected in a device subject: country/site/model/device/kind.
const minSegments = 5

// Parse splits a subject of the form
// {country}/{site_id}/{model}/{device_id}/{kind} and returns its parts.
// Subjects with fewer than five segments are rejected; segments beyond the
// fifth are ignored. Segment content is not validated.
func Parse(subject string) (country, siteID, model, deviceID, kind string, ok bool) {
	parts := strings.Split(subject, "/")
	if len(parts) < minSegments {
		return "", "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], parts[4], true
}

// MakeKey joins the four device identity fields into the canonical device
// key. Two devices share a key iff all four fields match.
func MakeKey(country, siteID, model, deviceID string) string {
	return country + "/" + siteID + "/" + model + "/" + deviceID
}
