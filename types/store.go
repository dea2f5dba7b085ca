package types

import "time"

// Conversation roles stored per turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationTurn is one persisted exchange half. Turns are appended by
// the orchestrator and read back as a most-recent-N history window.
type ConversationTurn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile holds the personalization record for one user. LifeDetails
// and Preferences are free-form and stored as JSON text columns.
type UserProfile struct {
	UserID        string         `json:"user_id"`
	DeviceID      string         `json:"device_id"`
	Name          string         `json:"name"`
	PreferredName string         `json:"preferred_name,omitempty"`
	Timezone      string         `json:"timezone"`
	LifeDetails   map[string]any `json:"life_details"`
	Preferences   map[string]any `json:"preferences"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// DisplayName returns the name the companion should address the user by.
func (p *UserProfile) DisplayName() string {
	if p.PreferredName != "" {
		return p.PreferredName
	}
	if p.Name != "" {
		return p.Name
	}
	return "Friend"
}

// Medication is one scheduled medication in a care plan. Schedule
// entries are local "HH:MM" times.
type Medication struct {
	Name     string   `json:"name"`
	Dosage   string   `json:"dosage,omitempty"`
	Schedule []string `json:"schedule,omitempty"`
}

// Contact is someone the companion can mention or a caregiver can reach.
type Contact struct {
	Name     string `json:"name"`
	Relation string `json:"relation,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// CarePlan is the care context for a user. The write path lives in the
// admin tool; the core only reads it per request.
type CarePlan struct {
	UserID      string       `json:"user_id"`
	Medications []Medication `json:"medications"`
	Routines    []string     `json:"routines"`
	Contacts    []Contact    `json:"contacts"`
	Notes       string       `json:"notes,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// LearnedFact is a remembered detail about the user, mined from
// conversation and folded back into the persona prompt.
type LearnedFact struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	FactType   string    `json:"fact_type"`
	FactKey    string    `json:"fact_key"`
	FactValue  string    `json:"fact_value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeviceActivity tracks when a device was last heard from. It drives the
// behavioral (extended silence) proactive rule.
type DeviceActivity struct {
	DeviceID     string    `json:"device_id"`
	UserID       string    `json:"user_id"`
	LastActivity time.Time `json:"last_activity"`
	SessionCount int       `json:"session_count"`
}
