package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleProfile = `Sports Interest (High)
Travel Interest (Low)
Need for Security (Medium)
Health Concern: High`

func TestParseTraits(t *testing.T) {
	traits := ParseTraits(sampleProfile)

	assert.Equal(t, []Trait{
		{Dimension: "Sports Interest", Level: "High"},
		{Dimension: "Travel Interest", Level: "Low"},
		{Dimension: "Health Concern", Level: "High"},
	}, traits[CategoryInterests])
	assert.Equal(t, []Trait{{Dimension: "Need for Security", Level: "Medium"}}, traits[CategoryPsychological])
	assert.Empty(t, traits[CategoryAlignment])
}

func TestDeriveTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Tags
	}{
		{
			name: "high and medium kept, wording stripped",
			raw:  sampleProfile,
			want: Tags{Interests: []string{"Sports", "Health"}, PersonalityTraits: []string{"Security"}},
		},
		{
			name: "placeholder profile",
			raw:  "No profile data yet",
			want: Tags{Interests: []string{}, PersonalityTraits: []string{}},
		},
		{
			name: "empty",
			raw:  "  ",
			want: Tags{Interests: []string{}, PersonalityTraits: []string{}},
		},
		{
			name: "activity suffix",
			raw:  "Social Media Activity (Medium)",
			want: Tags{Interests: []string{"Social Media"}, PersonalityTraits: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTags(tt.raw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagsString(t *testing.T) {
	tags := Tags{Interests: []string{"Sports"}, PersonalityTraits: []string{}}
	assert.Equal(t, `{"interests":["Sports"],"personality_traits":[]}`, tags.String())
	assert.False(t, tags.IsEmpty())
	assert.True(t, Tags{}.IsEmpty())
}
