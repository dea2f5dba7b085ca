package orchestrator

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/hearth/types"
)

// maxPromptFacts caps how many learned facts are folded into the
// persona so long-lived users do not overflow the context window of a
// small local model.
const maxPromptFacts = 5

const basePersona = `You are a friendly companion for %s. Reply in ONE short sentence only.

RULES:
- Maximum 10 words
- One sentence only
- No filler phrases
- Be warm and direct

Example replies:
"I'm doing great, how about you?"
"That sounds lovely!"
"The weather looks nice today."
`

const proactiveTemplate = `You are initiating a check-in with %s. This is a %s interaction.

Your goal: %s

Keep it natural and warm. Don't be overly formal or clinical. Just check in like a caring friend would.
`

// BuildSystemPrompt assembles the companion persona for a reactive
// turn: base persona, then personal context, then care context, each
// section only when there is something to say.
func BuildSystemPrompt(profile *types.UserProfile, plan *types.CarePlan, facts []types.LearnedFact) string {
	name := profile.DisplayName()

	var b strings.Builder
	fmt.Fprintf(&b, basePersona, name)

	if personal := formatPersonalContext(profile, facts); personal != "" {
		fmt.Fprintf(&b, "\n## About %s\n%s\n", name, personal)
	}

	if plan != nil {
		if care := formatCarePlan(plan); care != "" {
			fmt.Fprintf(&b, "\n## Care Information\n%s\n", care)
		}
	}

	return strings.TrimSpace(b.String())
}

// BuildProactivePrompt assembles the persona for a companion-initiated
// check-in driven by a triggered rule.
func BuildProactivePrompt(profile *types.UserProfile, rule Rule) string {
	name := profile.DisplayName()

	goal := rule.Prompt
	if goal == "" {
		goal = "Check in and see how they're doing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, proactiveTemplate, name, describeRuleType(rule.Type), goal)

	if personal := formatPersonalContext(profile, nil); personal != "" {
		fmt.Fprintf(&b, "\n## About %s\n%s\n", name, personal)
	}

	return strings.TrimSpace(b.String())
}

func describeRuleType(ruleType string) string {
	switch ruleType {
	case RuleTimeBased:
		return "scheduled check-in"
	case RuleBehavioral:
		return "wellness check"
	case RuleCarePlan:
		return "care reminder"
	default:
		return "friendly check-in"
	}
}

// formatPersonalContext renders the profile's life details plus up to
// maxPromptFacts recent learned facts. Returns "" when there is
// nothing personal to add.
func formatPersonalContext(profile *types.UserProfile, facts []types.LearnedFact) string {
	var lines []string

	details := profile.LifeDetails
	if family, ok := details["family"].(string); ok && family != "" {
		lines = append(lines, "Family: "+family)
	}
	if hobbies := stringList(details["hobbies"]); hobbies != "" {
		lines = append(lines, "Enjoys: "+hobbies)
	}
	if background, ok := details["background"].(string); ok && background != "" {
		lines = append(lines, "Background: "+background)
	}
	if memories, ok := details["important_memories"].(string); ok && memories != "" {
		lines = append(lines, "Important to them: "+memories)
	}

	for i, fact := range facts {
		if i >= maxPromptFacts {
			break
		}
		if fact.FactKey == "" || fact.FactValue == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", fact.FactKey, fact.FactValue))
	}

	return strings.Join(lines, "\n")
}

// formatCarePlan renders up to three medications and routines. Returns
// "" for an empty plan.
func formatCarePlan(plan *types.CarePlan) string {
	var lines []string

	if len(plan.Medications) > 0 {
		names := make([]string, 0, 3)
		for _, med := range plan.Medications {
			if len(names) == 3 {
				break
			}
			names = append(names, med.Name)
		}
		lines = append(lines, "Medications: "+strings.Join(names, ", "))
	}

	if len(plan.Routines) > 0 {
		routines := plan.Routines
		if len(routines) > 3 {
			routines = routines[:3]
		}
		lines = append(lines, "Daily routines: "+strings.Join(routines, ", "))
	}

	return strings.Join(lines, "\n")
}

// stringList accepts either a string or a list of strings from the
// free-form life_details JSON.
func stringList(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	default:
		return ""
	}
}
