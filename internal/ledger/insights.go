package ledger

import "strings"

// insightRule maps a lower-case trigger phrase to a canned insight.
type insightRule struct {
	trigger string
	insight string
}

// insightRules is scanned in order against every answer.
var insightRules = []insightRule{
	{"domain agnostic", "User wants a domain-agnostic tool"},
	{"scope drift", "Key problem to solve: scope drift"},
	{"risk profile", "User expects explicit risk profiles before risky changes"},
	{"approval", "User wants to approve significant changes before they happen"},
	{"safety", "Safety is a first-class requirement for the user"},
	{"existing tools", "User prefers reusing existing tools over new ones"},
	{"incremental", "User prefers incremental, reviewable progress"},
	{"transparen", "User values transparency in agent decisions"},
}

// DeriveInsights scans each answer independently against the rule table.
// Every hit appends its insight; duplicates across answers are kept.
func DeriveInsights(answers []string) []string {
	insights := []string{}
	for _, answer := range answers {
		lower := strings.ToLower(answer)
		for _, rule := range insightRules {
			if strings.Contains(lower, rule.trigger) {
				insights = append(insights, rule.insight)
			}
		}
	}
	return insights
}
