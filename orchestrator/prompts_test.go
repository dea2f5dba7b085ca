package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AltairaLabs/hearth/types"
)

func TestBuildSystemPromptMinimalProfile(t *testing.T) {
	profile := &types.UserProfile{Name: "Friend"}

	prompt := BuildSystemPrompt(profile, nil, nil)
	assert.True(t, strings.HasPrefix(prompt,
		"You are a friendly companion for Friend. Reply in ONE short sentence only."))
	assert.Contains(t, prompt, "Maximum 10 words")
	assert.NotContains(t, prompt, "## About")
	assert.NotContains(t, prompt, "## Care Information")
}

func TestBuildSystemPromptWithContext(t *testing.T) {
	profile := &types.UserProfile{
		Name:          "Rosemary",
		PreferredName: "Rose",
		LifeDetails: map[string]any{
			"family":  "Two daughters, Anna and Claire",
			"hobbies": []any{"gardening", "crosswords"},
		},
	}
	plan := &types.CarePlan{
		Medications: []types.Medication{
			{Name: "Lisinopril"}, {Name: "Metformin"},
			{Name: "Aspirin"}, {Name: "Vitamin D"},
		},
		Routines: []string{"morning walk", "afternoon tea"},
	}

	prompt := BuildSystemPrompt(profile, plan, nil)
	assert.Contains(t, prompt, "companion for Rose.")
	assert.Contains(t, prompt, "## About Rose")
	assert.Contains(t, prompt, "Family: Two daughters, Anna and Claire")
	assert.Contains(t, prompt, "Enjoys: gardening, crosswords")
	assert.Contains(t, prompt, "## Care Information")
	assert.Contains(t, prompt, "Medications: Lisinopril, Metformin, Aspirin")
	assert.NotContains(t, prompt, "Vitamin D", "medication list caps at three")
	assert.Contains(t, prompt, "Daily routines: morning walk, afternoon tea")
}

func TestBuildSystemPromptFoldsFacts(t *testing.T) {
	profile := &types.UserProfile{Name: "Rose"}

	facts := []types.LearnedFact{
		{FactKey: "favorite_tea", FactValue: "chamomile"},
		{FactKey: "grandson", FactValue: "Leo, age 7"},
		{FactKey: "f3", FactValue: "v3"},
		{FactKey: "f4", FactValue: "v4"},
		{FactKey: "f5", FactValue: "v5"},
		{FactKey: "f6", FactValue: "v6"},
	}

	prompt := BuildSystemPrompt(profile, nil, facts)
	assert.Contains(t, prompt, "favorite_tea: chamomile")
	assert.Contains(t, prompt, "f5: v5")
	assert.NotContains(t, prompt, "f6: v6", "facts cap at five")
}

func TestBuildProactivePrompt(t *testing.T) {
	profile := &types.UserProfile{Name: "Rose"}
	rule := DefaultRules()[0]

	prompt := BuildProactivePrompt(profile, rule)
	assert.Contains(t, prompt, "check-in with Rose")
	assert.Contains(t, prompt, "scheduled check-in interaction")
	assert.Contains(t, prompt, "Your goal: Good morning! How are you feeling today?")
	assert.Contains(t, prompt, "like a caring friend would")
}

func TestBuildProactivePromptRuleTypes(t *testing.T) {
	profile := &types.UserProfile{Name: "Rose"}

	cases := map[string]string{
		RuleBehavioral: "wellness check",
		RuleCarePlan:   "care reminder",
		"unknown":      "friendly check-in",
	}
	for ruleType, want := range cases {
		prompt := BuildProactivePrompt(profile, Rule{Type: ruleType, Prompt: "hi"})
		assert.Contains(t, prompt, want)
	}
}
