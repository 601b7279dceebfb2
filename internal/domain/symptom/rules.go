// Package symptom answers free-text symptom descriptions with likely
// conditions and advice from a keyword rules table, falling back to a
// generative model when no rule matches.
package symptom

import (
	"strings"

	"github.com/samber/lo"
)

type Rule struct {
	Keywords  []string
	Condition string
	Advice    string
}

type Suggestion struct {
	Condition string `json:"condition"`
	Advice    string `json:"advice"`
}

// Unknown is returned when nothing else applies.
var Unknown = Suggestion{Condition: "Unknown", Advice: "If symptoms persist, consult a doctor."}

var DefaultRules = []Rule{
	{
		Keywords:  []string{"fever", "cough", "cold"},
		Condition: "Common Cold/Flu",
		Advice:    "Rest, fluids; consult if persists >3 days.",
	},
	{
		Keywords:  []string{"chest pain", "breathless", "breathlessness"},
		Condition: "Possible Cardiac/Respiratory Issue",
		Advice:    "Consult doctor immediately.",
	},
	{
		Keywords:  []string{"diarrhea", "vomit", "stomach"},
		Condition: "Gastroenteritis",
		Advice:    "Oral rehydration; consult if severe.",
	},
	{
		Keywords:  []string{"headache", "migraine"},
		Condition: "Migraine/Headache",
		Advice:    "Hydration and rest; consult if recurrent.",
	},
	{
		Keywords:  []string{"rash", "itch"},
		Condition: "Skin Allergy",
		Advice:    "Avoid irritants; consult if spreading.",
	},
}

// Match returns a suggestion for every rule with a keyword contained in
// text, in table order. Matching ignores case.
func Match(rules []Rule, text string) []Suggestion {
	lower := strings.ToLower(text)
	matched := lo.Filter(rules, func(r Rule, _ int) bool {
		return lo.SomeBy(r.Keywords, func(k string) bool { return strings.Contains(lower, k) })
	})
	return lo.Map(matched, func(r Rule, _ int) Suggestion {
		return Suggestion{Condition: r.Condition, Advice: r.Advice}
	})
}
