package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/hearth/types"
)

func TestLoadRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Len(t, rules, 5)

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"morning_greeting", "afternoon_checkin", "evening_winddown",
		"extended_silence", "medication_reminder",
	}, names)

	assert.Equal(t, RuleTimeBased, rules[0].Type)
	assert.Equal(t, "07:00", rules[0].Trigger.TimeRange.Start)
	assert.Equal(t, 120, rules[3].Trigger.SilenceDurationMinutes)
	assert.Equal(t, "medication_due", rules[4].Trigger.Event)
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: tea_time
    type: time_based
    trigger:
      time_range:
        start: "16:00"
        end: "16:30"
    frequency: daily
    prompt: "It's tea time. Shall I put the kettle on?"
    priority: 2
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "tea_time", rules[0].Name)
	assert.Equal(t, "16:00", rules[0].Trigger.TimeRange.Start)
	assert.Equal(t, 2, rules[0].Priority)
}

func TestLoadRulesRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown type": `
rules:
  - name: bad
    type: astrological
    prompt: "The stars say hello"
`,
		"missing prompt": `
rules:
  - name: bad
    type: time_based
`,
		"malformed clock": `
rules:
  - name: bad
    type: time_based
    trigger:
      time_range:
        start: "7am"
        end: "9am"
    prompt: "hi"
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadRules(path)
			require.Error(t, err)
		})
	}
}

func engineAt(t *testing.T, store *Store, rules []Rule, now time.Time) *Engine {
	t.Helper()
	e := NewEngine(store, rules)
	e.now = func() time.Time { return now }
	return e
}

func clockTime(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func TestTimeBasedRuleWindow(t *testing.T) {
	store := openTestStore(t)
	rules := []Rule{DefaultRules()[0]} // morning_greeting 07:00-09:00

	fires := func(hhmm string) bool {
		e := engineAt(t, store, rules, clockTime(t, hhmm))
		return len(e.Evaluate(context.Background(), "companion-001")) == 1
	}

	assert.True(t, fires("08:00"))
	assert.True(t, fires("07:00"), "window start is inclusive")
	assert.True(t, fires("09:00"), "window end is inclusive")
	assert.False(t, fires("06:59"))
	assert.False(t, fires("10:30"))
}

func TestBehavioralSilenceRule(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rules := []Rule{DefaultRules()[3]} // extended_silence, 120 minutes

	// Never-seen device has no baseline to be silent against.
	e := engineAt(t, store, rules, time.Now().UTC())
	assert.Empty(t, e.Evaluate(ctx, "companion-001"))

	// Fresh activity keeps the rule quiet.
	require.NoError(t, store.UpdateDeviceActivity(ctx, "companion-001", "user-001"))
	assert.Empty(t, e.Evaluate(ctx, "companion-001"))

	// Backdate the activity past the threshold.
	stale := time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339)
	_, err := store.db.Exec(
		`UPDATE device_sessions SET last_activity = ? WHERE device_id = ?`,
		stale, "companion-001")
	require.NoError(t, err)

	triggered := e.Evaluate(ctx, "companion-001")
	require.Len(t, triggered, 1)
	assert.Equal(t, "extended_silence", triggered[0].Name)
}

func TestMedicationDueRule(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rules := []Rule{DefaultRules()[4]} // medication_reminder

	profile, err := store.GetUserProfile(ctx, "companion-001")
	require.NoError(t, err)
	require.NoError(t, store.SaveCarePlan(ctx, &types.CarePlan{
		UserID: profile.UserID,
		Medications: []types.Medication{
			{Name: "Lisinopril", Schedule: []string{"08:00", "20:00"}},
		},
	}))

	fires := func(hhmm string) bool {
		e := engineAt(t, store, rules, clockTime(t, hhmm))
		return len(e.Evaluate(ctx, "companion-001")) == 1
	}

	assert.True(t, fires("08:00"))
	assert.True(t, fires("20:00"))
	assert.False(t, fires("08:01"), "due window is one tick wide")
	assert.False(t, fires("12:00"))
}

func TestEvaluateSortsByPriority(t *testing.T) {
	store := openTestStore(t)

	rules := []Rule{
		{Name: "low", Type: RuleTimeBased,
			Trigger: Trigger{TimeRange: &TimeRange{Start: "00:00", End: "23:59"}}, Priority: 5},
		{Name: "high", Type: RuleTimeBased,
			Trigger: Trigger{TimeRange: &TimeRange{Start: "00:00", End: "23:59"}}, Priority: 1},
		{Name: "unset", Type: RuleTimeBased,
			Trigger: Trigger{TimeRange: &TimeRange{Start: "00:00", End: "23:59"}}},
	}

	e := engineAt(t, store, rules, clockTime(t, "12:00"))
	triggered := e.Evaluate(context.Background(), "companion-001")
	require.Len(t, triggered, 3)
	assert.Equal(t, "high", triggered[0].Name)
	assert.Equal(t, "low", triggered[1].Name)
	assert.Equal(t, "unset", triggered[2].Name, "missing priority sorts last")
}
