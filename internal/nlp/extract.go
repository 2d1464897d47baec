// Package nlp extracts user identity facts from chat messages with regex
// entity patterns. The extracted facts are persisted per conversation and
// consumed only as an opaque text fragment prepended to model context.
package nlp

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/forkchat/forkchat/internal/models"
)

// The name and location patterns rely on lookaheads to stop the capture at
// the next delimiter, which is why these are regexp2 patterns rather than
// stdlib regexp.
var (
	namePatterns = compileAll(
		`my name is (.+?)(?=\s*(?:,|\.|!|$|\band\b))`,
		`i'?m called (.+?)(?=\s*(?:,|\.|!|$|\band\b))`,
		`call me (.+?)(?=\s*(?:,|\.|!|$|\band\b))`,
	)
	locationPatterns = compileAll(
		`i live in (.+?)(?=\s*(?:,|\.|!|$|\band\b))`,
		`i'?m from (.+?)(?=\s*(?:,|\.|!|$|\band\b))`,
		`i come from (.+?)(?=\s*(?:,|\.|!|$|\band\b))`,
	)
	agePattern   = regexp2.MustCompile(`\bi'?m (\d{1,3}) years? old\b|\bi am (\d{1,3})\b`, regexp2.IgnoreCase)
	emailPattern = regexp2.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, regexp2.None)
)

func compileAll(patterns ...string) []*regexp2.Regexp {
	res := make([]*regexp2.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp2.MustCompile(p, regexp2.IgnoreCase))
	}
	return res
}

// ExtractFacts scans a user message for identity details. Fields that are
// not mentioned stay empty; the store merges non-empty fields over what it
// already knows.
func ExtractFacts(text string) models.UserFacts {
	facts := models.UserFacts{
		Name:     firstGroup(namePatterns, text),
		Location: firstGroup(locationPatterns, text),
	}

	if m, _ := agePattern.FindStringMatch(text); m != nil {
		for _, g := range m.Groups()[1:] {
			if g.String() != "" {
				facts.Age = g.String()
				break
			}
		}
	}
	if m, _ := emailPattern.FindStringMatch(text); m != nil {
		facts.Email = m.String()
	}
	return facts
}

func firstGroup(patterns []*regexp2.Regexp, text string) string {
	for _, re := range patterns {
		m, err := re.FindStringMatch(text)
		if err != nil || m == nil {
			continue
		}
		if g := m.GroupByNumber(1); g != nil {
			return cleanExtracted(g.String())
		}
	}
	return ""
}

func cleanExtracted(s string) string {
	return strings.Trim(strings.TrimSpace(s), ",. ")
}

// ContextFragment renders known facts as the opaque text block prepended to
// model context. Returns "" when nothing is known.
func ContextFragment(facts *models.UserFacts) string {
	if facts == nil {
		return ""
	}
	var parts []string
	if facts.Name != "" {
		parts = append(parts, "name: "+facts.Name)
	}
	if facts.Age != "" {
		parts = append(parts, "age: "+facts.Age)
	}
	if facts.Location != "" {
		parts = append(parts, "location: "+facts.Location)
	}
	if facts.Email != "" {
		parts = append(parts, "email: "+facts.Email)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Known user details: " + strings.Join(parts, ", ") + "\n"
}
