package domain

import "strings"

// AttrKey identifies a personalization attribute on a contact.
type AttrKey string

// Known attribute keys. The scorer and composer only reason about these;
// anything else in the bag is free-form extension carried through untouched.
const (
	AttrOrgSize    AttrKey = "org_size"
	AttrOrgType    AttrKey = "org_type"
	AttrIndustry   AttrKey = "industry"
	AttrLocation   AttrKey = "location"
	AttrWebsite    AttrKey = "website"
	AttrPainPoints AttrKey = "pain_points"
	AttrSignals    AttrKey = "signals"
)

// KnownAttrKeys lists the attribute keys with defined semantics.
var KnownAttrKeys = []AttrKey{
	AttrOrgSize,
	AttrOrgType,
	AttrIndustry,
	AttrLocation,
	AttrWebsite,
	AttrPainPoints,
	AttrSignals,
}

// Attributes is the typed key-value bag of contact personalization fields.
type Attributes map[AttrKey]string

// Get returns the value for key, or "" when absent.
func (a Attributes) Get(key AttrKey) string {
	if a == nil {
		return ""
	}
	return a[key]
}

// GetDefault returns the value for key, or def when absent or empty.
func (a Attributes) GetDefault(key AttrKey, def string) string {
	if v := a.Get(key); v != "" {
		return v
	}
	return def
}

// List splits a comma-separated attribute value into trimmed entries.
// Used for multi-valued keys such as pain_points and signals.
func (a Attributes) List(key AttrKey) []string {
	raw := a.Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a copy of the bag. A nil bag clones to an empty bag.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// IsKnownAttrKey reports whether key has defined semantics.
func IsKnownAttrKey(key AttrKey) bool {
	for _, k := range KnownAttrKeys {
		if k == key {
			return true
		}
	}
	return false
}
