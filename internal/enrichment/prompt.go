package enrichment

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"memcontext-be/pkg/memcontext"
	"memcontext-be/pkg/profile"
)

const promptTemplate = `You are the tag selector of an advertising match engine.

[Candidate tags]
%s

[User profile]
%s

[Personality traits]
%s

[Recent conversation]
%s
[Current input]
%s

Task: using the current input, the conversation and the user profile, pick the 3 to 8 most relevant tags from [Candidate tags] for recommending ads.
If the input is about health, mental health, politics or another sensitive subject, select nothing and return [].

Rules:
1. Select ONLY from [Candidate tags]. Never invent a tag.
2. Reply with a bare JSON array, for example ["tag1", "tag2"].
3. If nothing is relevant, reply [].
`

// BuildPrompt renders the tag selection prompt. turns are rendered oldest first.
func BuildPrompt(vocabulary []string, tags profile.Tags, input string, turns []memcontext.Turn) string {
	vocab, _ := json.Marshal(vocabulary)
	traits, _ := json.Marshal(tags.PersonalityTraits)
	if tags.PersonalityTraits == nil {
		traits = []byte("[]")
	}

	var history strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&history, "User: %s\nAI: %s\n", t.UserInput, t.AgentResponse)
	}
	if history.Len() == 0 {
		history.WriteString("(none)\n")
	}

	return fmt.Sprintf(promptTemplate, vocab, tags.String(), traits, history.String(), input)
}

var fencePattern = regexp.MustCompile("(?i)```json\\s*|\\s*```")

var ErrNoTags = errors.New("reply contains no tag list")

// ParseTags accepts a bare JSON array of strings or an object with a "tags"
// array, optionally wrapped in a fenced code block.
func ParseTags(reply string) ([]string, error) {
	clean := strings.TrimSpace(reply)
	if clean == "" {
		return nil, ErrNoTags
	}
	if strings.Contains(clean, "```") {
		clean = strings.TrimSpace(fencePattern.ReplaceAllString(clean, ""))
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("decode tag reply: %w", err)
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err != nil {
		var obj struct {
			Tags []interface{} `json:"tags"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.Tags == nil {
			return nil, ErrNoTags
		}
		list = obj.Tags
	}

	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out, nil
}
