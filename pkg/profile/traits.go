// Package profile reads the free-text user profile kept by the memory engine
// and turns it into graded dimensions and interest/personality tags.
package profile

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	CategoryPsychological = "Psychological Model"
	CategoryAlignment     = "AI Alignment Dimensions"
	CategoryInterests     = "Content Platform Interest Tags"
)

// Category is a named group of dimensions the profile may grade.
type Category struct {
	Name       string
	Dimensions []string
}

var Categories = []Category{
	{CategoryPsychological, []string{
		"Extraversion", "Openness", "Agreeableness", "Conscientiousness", "Neuroticism",
		"Physiological Needs", "Need for Security", "Need for Belonging", "Need for Self-Esteem",
		"Cognitive Needs", "Aesthetic Appreciation", "Self-Actualization", "Need for Order",
		"Need for Autonomy", "Need for Power", "Need for Achievement",
	}},
	{CategoryAlignment, []string{
		"Helpfulness", "Honesty", "Safety", "Instruction Compliance", "Truthfulness",
		"Coherence", "Complexity", "Conciseness",
	}},
	{CategoryInterests, []string{
		"Science Interest", "Education Interest", "Psychology Interest", "Family Concern",
		"Fashion Interest", "Art Interest", "Health Concern", "Financial Management Interest",
		"Sports Interest", "Food Interest", "Travel Interest", "Music Interest",
		"Literature Interest", "Film Interest", "Social Media Activity", "Tech Interest",
		"Environmental Concern", "History Interest", "Political Concern", "Religious Interest",
		"Gaming Interest", "Animal Concern", "Emotional Expression", "Sense of Humor",
		"Information Density", "Language Style", "Practicality",
	}},
}

var Levels = []string{"High", "Medium", "Low"}

type Trait struct {
	Dimension string `json:"dimension"`
	Level     string `json:"level"`
}

// Traits maps a category name to the traits found for it.
type Traits map[string][]Trait

var gradedPattern = regexp.MustCompile(`([A-Za-z\s]+)\s*\(\s*([A-Za-z]+)\s*\)`)

// Empty reports whether raw carries no usable profile.
func Empty(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "null", "none", "no profile data yet":
		return true
	}
	return false
}

// ParseTraits extracts graded dimensions in two passes: explicit "Dimension (Level)"
// pairs first, then lines mentioning a level and a known dimension.
func ParseTraits(raw string) Traits {
	out := Traits{}

	for _, m := range gradedPattern.FindAllStringSubmatch(raw, -1) {
		dimension := strings.TrimSpace(m[1])
		level := strings.TrimSpace(m[2])
		if dimension == "" {
			continue
		}
		dl := strings.ToLower(dimension)
	categories:
		for _, cat := range Categories {
			for _, known := range cat.Dimensions {
				kl := strings.ToLower(known)
				if strings.Contains(kl, dl) || strings.Contains(dl, kl) {
					out[cat.Name] = append(out[cat.Name], Trait{Dimension: dimension, Level: level})
					break categories
				}
			}
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		for _, level := range Levels {
			if !strings.Contains(line, strings.ToLower(level)) {
				continue
			}
			for _, cat := range Categories {
				for _, known := range cat.Dimensions {
					if !strings.Contains(line, strings.ToLower(known)) {
						continue
					}
					if !hasDimension(out[cat.Name], known) {
						out[cat.Name] = append(out[cat.Name], Trait{Dimension: known, Level: level})
					}
					break
				}
			}
		}
	}

	return out
}

func hasDimension(traits []Trait, dimension string) bool {
	for _, t := range traits {
		if t.Dimension == dimension {
			return true
		}
	}
	return false
}

// Tags are the interest and personality labels derived from a profile.
type Tags struct {
	Interests         []string `json:"interests"`
	PersonalityTraits []string `json:"personality_traits"`
}

func (t Tags) IsEmpty() bool {
	return len(t.Interests) == 0 && len(t.PersonalityTraits) == 0
}

// String renders the tags as JSON; the enrichment prompt and the substring
// fallback both read this form.
func (t Tags) String() string {
	b, _ := json.Marshal(t)
	return string(b)
}

var (
	interestSuffixes = strings.NewReplacer("Interest", "", "Concern", "", "Activity", "")
	needPrefixes     = strings.NewReplacer("Need for", "", "Need", "")
)

// DeriveTags keeps dimensions graded high or medium and strips the category
// wording ("Sports Interest" becomes "Sports", "Need for Security" becomes "Security").
func DeriveTags(raw string) Tags {
	tags := Tags{Interests: []string{}, PersonalityTraits: []string{}}
	if Empty(raw) {
		return tags
	}

	traits := ParseTraits(raw)
	tags.Interests = keep(traits[CategoryInterests], interestSuffixes)
	tags.PersonalityTraits = keep(traits[CategoryPsychological], needPrefixes)
	return tags
}

func keep(traits []Trait, strip *strings.Replacer) []string {
	out := []string{}
	for _, t := range traits {
		level := strings.ToLower(t.Level)
		if level != "high" && level != "medium" {
			continue
		}
		if name := strings.TrimSpace(strip.Replace(t.Dimension)); name != "" {
			out = append(out, name)
		}
	}
	return out
}
