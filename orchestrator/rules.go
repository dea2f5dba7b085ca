package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/hearth/logger"
)

// Rule types.
const (
	RuleTimeBased  = "time_based"
	RuleBehavioral = "behavioral"
	RuleCarePlan   = "care_plan"
)

// medicationDueWindow is how close a scheduled medication time has to
// be to the evaluation tick to count as due. Matches the proactive
// loop's tick so each schedule entry fires once.
const medicationDueWindow = time.Minute

// TimeRange is a daily local-time window, "HH:MM" inclusive on both ends.
type TimeRange struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Trigger holds the type-specific condition of a rule. Exactly one of
// the fields is meaningful for a given rule type.
type Trigger struct {
	TimeRange              *TimeRange `yaml:"time_range,omitempty" json:"time_range,omitempty"`
	SilenceDurationMinutes int        `yaml:"silence_duration_minutes,omitempty" json:"silence_duration_minutes,omitempty"`
	Event                  string     `yaml:"event,omitempty" json:"event,omitempty"`
}

// Rule is one proactive interaction rule. Lower priority numbers win
// when several rules fire in the same tick.
type Rule struct {
	Name      string  `yaml:"name" json:"name"`
	Type      string  `yaml:"type" json:"type"`
	Trigger   Trigger `yaml:"trigger" json:"trigger"`
	Frequency string  `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Prompt    string  `yaml:"prompt" json:"prompt"`
	Priority  int     `yaml:"priority,omitempty" json:"priority,omitempty"`
}

type rulesConfig struct {
	Rules []Rule `yaml:"rules"`
}

// rulesSchema validates a rules config before any rule is trusted.
const rulesSchema = `{
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type", "prompt"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["time_based", "behavioral", "care_plan"]},
          "trigger": {
            "type": "object",
            "properties": {
              "time_range": {
                "type": "object",
                "required": ["start", "end"],
                "properties": {
                  "start": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
                  "end": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"}
                }
              },
              "silence_duration_minutes": {"type": "integer", "minimum": 1},
              "event": {"type": "string"}
            }
          },
          "frequency": {"type": "string"},
          "prompt": {"type": "string", "minLength": 1},
          "priority": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

// DefaultRules returns the built-in rule set used when no config file
// exists.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "morning_greeting",
			Type:      RuleTimeBased,
			Trigger:   Trigger{TimeRange: &TimeRange{Start: "07:00", End: "09:00"}},
			Frequency: "daily",
			Prompt:    "Good morning! How are you feeling today?",
			Priority:  1,
		},
		{
			Name:      "afternoon_checkin",
			Type:      RuleTimeBased,
			Trigger:   Trigger{TimeRange: &TimeRange{Start: "14:00", End: "15:00"}},
			Frequency: "daily",
			Prompt:    "How is your afternoon going? Have you had lunch?",
			Priority:  2,
		},
		{
			Name:      "evening_winddown",
			Type:      RuleTimeBased,
			Trigger:   Trigger{TimeRange: &TimeRange{Start: "19:00", End: "20:00"}},
			Frequency: "daily",
			Prompt:    "The evening is here. How was your day?",
			Priority:  2,
		},
		{
			Name:     "extended_silence",
			Type:     RuleBehavioral,
			Trigger:  Trigger{SilenceDurationMinutes: 120},
			Prompt:   "I haven't heard from you in a while. Is everything okay?",
			Priority: 3,
		},
		{
			Name:     "medication_reminder",
			Type:     RuleCarePlan,
			Trigger:  Trigger{Event: "medication_due"},
			Prompt:   "It's time for your medication. Would you like me to remind you what to take?",
			Priority: 1,
		},
	}
}

// LoadRules reads a rules config file. A missing file is not an error;
// the built-in defaults apply. A present but invalid file is an error
// so a typo cannot silently disable proactive behavior.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Warn("rules_config_not_found", "path", path)
		rules := DefaultRules()
		logger.Info("using_default_rules", "count", len(rules))
		return rules, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules config: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules config: %w", err)
	}
	if err := validateRulesDoc(doc); err != nil {
		return nil, err
	}

	var cfg rulesConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse rules config: %w", err)
	}

	logger.Info("rules_loaded", "count", len(cfg.Rules), "path", path)
	return cfg.Rules, nil
}

func validateRulesDoc(doc map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(rulesSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("validate rules config: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		return fmt.Errorf("invalid rules config: %s", errs[0].String())
	}
	return nil
}

// Engine evaluates proactive rules against the conversation store.
type Engine struct {
	rules []Rule
	store *Store
	now   func() time.Time
}

// NewEngine creates a rules engine backed by the store.
func NewEngine(store *Store, rules []Rule) *Engine {
	return &Engine{rules: rules, store: store, now: time.Now}
}

// Evaluate returns the rules that should fire for a device right now,
// sorted ascending by priority. A rule that errors is skipped, not
// fatal, so one bad rule cannot silence the rest.
func (e *Engine) Evaluate(ctx context.Context, deviceID string) []Rule {
	now := e.now()

	var triggered []Rule
	for _, rule := range e.rules {
		fire, err := e.shouldTrigger(ctx, rule, deviceID, now)
		if err != nil {
			logger.Error("rule_evaluation_error", "rule_name", rule.Name, "error", err)
			continue
		}
		if fire {
			logger.Debug("rule_triggered", "device_id", deviceID, "rule_name", rule.Name)
			triggered = append(triggered, rule)
		}
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		return effectivePriority(triggered[i]) < effectivePriority(triggered[j])
	})
	return triggered
}

func effectivePriority(r Rule) int {
	if r.Priority == 0 {
		return 10
	}
	return r.Priority
}

func (e *Engine) shouldTrigger(ctx context.Context, rule Rule, deviceID string, now time.Time) (bool, error) {
	switch rule.Type {
	case RuleTimeBased:
		return checkTimeRange(rule.Trigger.TimeRange, now)
	case RuleBehavioral:
		return e.checkSilence(ctx, rule.Trigger.SilenceDurationMinutes, deviceID, now)
	case RuleCarePlan:
		if rule.Trigger.Event == "medication_due" {
			return e.checkMedicationDue(ctx, deviceID, now)
		}
		return false, nil
	default:
		return false, nil
	}
}

// checkTimeRange reports whether now falls inside the daily window,
// inclusive on both ends.
func checkTimeRange(tr *TimeRange, now time.Time) (bool, error) {
	start, end := "00:00", "23:59"
	if tr != nil {
		start, end = tr.Start, tr.End
	}

	startMin, err := parseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false, err
	}

	nowMin := now.Hour()*60 + now.Minute()
	return startMin <= nowMin && nowMin <= endMin, nil
}

// checkSilence fires when the device has been quiet for at least the
// threshold. A device never heard from does not fire; there is no
// baseline to be silent against.
func (e *Engine) checkSilence(ctx context.Context, thresholdMinutes int, deviceID string, now time.Time) (bool, error) {
	if thresholdMinutes <= 0 {
		return false, nil
	}

	activity, err := e.store.GetDeviceActivity(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if activity == nil || activity.LastActivity.IsZero() {
		return false, nil
	}

	silence := now.UTC().Sub(activity.LastActivity)
	return silence >= time.Duration(thresholdMinutes)*time.Minute, nil
}

// checkMedicationDue fires when any medication schedule entry falls
// inside the current evaluation window.
func (e *Engine) checkMedicationDue(ctx context.Context, deviceID string, now time.Time) (bool, error) {
	profile, err := e.store.GetUserProfile(ctx, deviceID)
	if err != nil {
		return false, err
	}
	plan, err := e.store.GetCarePlan(ctx, profile.UserID)
	if err != nil {
		return false, err
	}

	nowMin := now.Hour()*60 + now.Minute()
	windowMin := int(medicationDueWindow / time.Minute)

	for _, med := range plan.Medications {
		for _, entry := range med.Schedule {
			schedMin, err := parseClock(entry)
			if err != nil {
				logger.Warn("bad_medication_schedule",
					"medication", med.Name, "entry", entry)
				continue
			}
			if schedMin <= nowMin && nowMin < schedMin+windowMin {
				return true, nil
			}
		}
	}
	return false, nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
