package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributesGet(t *testing.T) {
	attrs := Attributes{
		AttrOrgSize:  "50",
		AttrIndustry: "logistics",
	}

	assert.Equal(t, "50", attrs.Get(AttrOrgSize))
	assert.Equal(t, "", attrs.Get(AttrWebsite))

	var nilAttrs Attributes
	assert.Equal(t, "", nilAttrs.Get(AttrOrgSize))
}

func TestAttributesGetDefault(t *testing.T) {
	attrs := Attributes{
		AttrOrgType:  "startup",
		AttrLocation: "",
	}

	assert.Equal(t, "startup", attrs.GetDefault(AttrOrgType, "unknown"))
	assert.Equal(t, "unknown", attrs.GetDefault(AttrLocation, "unknown"))
	assert.Equal(t, "unknown", attrs.GetDefault(AttrWebsite, "unknown"))
}

func TestAttributesList(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected []string
	}{
		{"multiple values", "slow onboarding, manual reporting", []string{"slow onboarding", "manual reporting"}},
		{"single value", "hiring", []string{"hiring"}},
		{"extra separators", " a ,, b ,", []string{"a", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := Attributes{AttrPainPoints: tt.value}
			assert.Equal(t, tt.expected, attrs.List(AttrPainPoints))
		})
	}
}

func TestAttributesClone(t *testing.T) {
	original := Attributes{AttrSignals: "funding"}
	clone := original.Clone()

	clone[AttrSignals] = "expansion"
	assert.Equal(t, "funding", original.Get(AttrSignals))
	assert.Equal(t, "expansion", clone.Get(AttrSignals))

	var nilAttrs Attributes
	assert.NotNil(t, nilAttrs.Clone())
}

func TestIsKnownAttrKey(t *testing.T) {
	for _, key := range KnownAttrKeys {
		assert.True(t, IsKnownAttrKey(key), string(key))
	}
	assert.False(t, IsKnownAttrKey(AttrKey("favorite_color")))
}
