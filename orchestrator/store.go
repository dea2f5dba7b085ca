// Package orchestrator is the conversation brain of the pipeline. It
// turns transcripts into LLM requests enriched with profile, history,
// and care-plan context, persists both halves of every exchange, and
// runs the proactive rules engine for companion-initiated check-ins.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/types"
)

// DefaultHistoryLimit is how many recent turns travel with an LLMRequest.
const DefaultHistoryLimit = 10

// ErrStoreLocked indicates another orchestrator already owns the store.
var ErrStoreLocked = errors.New("store locked by another process")

const schema = `
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    name TEXT,
    preferred_name TEXT,
    timezone TEXT DEFAULT 'America/Los_Angeles',
    life_details TEXT DEFAULT '{}',
    preferences TEXT DEFAULT '{}',
    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversation_turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    user_id TEXT,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    intent TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(session_id);

CREATE TABLE IF NOT EXISTS care_plans (
    user_id TEXT PRIMARY KEY,
    medications TEXT DEFAULT '[]',
    routines TEXT DEFAULT '[]',
    contacts TEXT DEFAULT '[]',
    notes TEXT,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS device_sessions (
    device_id TEXT PRIMARY KEY,
    user_id TEXT,
    last_activity TEXT,
    session_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS learned_facts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    fact_type TEXT,
    fact_key TEXT,
    fact_value TEXT,
    confidence REAL DEFAULT 1.0,
    source TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_facts_user ON learned_facts(user_id);
`

// Store is the local-first conversation store: profiles, history, care
// plans, device activity, and learned facts in a single SQLite file.
// The orchestrator process is the sole owner; a lock file next to the
// database enforces that a second orchestrator fails fast instead of
// interleaving writes.
type Store struct {
	db   *sql.DB
	lock *fileLock
}

// OpenStore opens (creating if needed) the SQLite store at path and
// acquires the exclusive process lock.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	lock, err := acquireFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite handles one writer at a time; serialize through a single
	// connection instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		lock.release()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("store_opened", "database", path)
	return &Store{db: db, lock: lock}, nil
}

// Close releases the database and the process lock.
func (s *Store) Close() error {
	err := s.db.Close()
	s.lock.release()
	return err
}

// GetUserProfile returns the profile bound to a device, creating a
// default one on first sight. The generated user id is "user_<device>".
func (s *Store) GetUserProfile(ctx context.Context, deviceID string) (*types.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, device_id, name, COALESCE(preferred_name, ''),
		       COALESCE(timezone, ''), life_details, preferences,
		       created_at, updated_at
		FROM user_profiles WHERE device_id = ?`, deviceID)

	var p types.UserProfile
	var lifeDetails, preferences, createdAt, updatedAt string
	err := row.Scan(&p.UserID, &p.DeviceID, &p.Name, &p.PreferredName,
		&p.Timezone, &lifeDetails, &preferences, &createdAt, &updatedAt)
	switch {
	case err == nil:
		p.LifeDetails = decodeJSONMap(lifeDetails)
		p.Preferences = decodeJSONMap(preferences)
		p.CreatedAt = parseStoredTime(createdAt)
		p.UpdatedAt = parseStoredTime(updatedAt)
		return &p, nil
	case errors.Is(err, sql.ErrNoRows):
		// First contact from this device.
	default:
		return nil, fmt.Errorf("query profile for %s: %w", deviceID, err)
	}

	userID := "user_" + deviceID
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, device_id, name) VALUES (?, ?, ?)`,
		userID, deviceID, "Friend")
	if err != nil {
		return nil, fmt.Errorf("create profile for %s: %w", deviceID, err)
	}
	logger.Info("profile_created", "user_id", userID, "device_id", deviceID)

	return &types.UserProfile{
		UserID:      userID,
		DeviceID:    deviceID,
		Name:        "Friend",
		Timezone:    "America/Los_Angeles",
		LifeDetails: map[string]any{},
		Preferences: map[string]any{},
	}, nil
}

// SaveUserProfile upserts a full profile record. This is the admin
// write path; the pipeline itself only reads profiles.
func (s *Store) SaveUserProfile(ctx context.Context, p *types.UserProfile) error {
	lifeDetails, err := encodeJSONMap(p.LifeDetails)
	if err != nil {
		return fmt.Errorf("encode life_details: %w", err)
	}
	preferences, err := encodeJSONMap(p.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	timezone := p.Timezone
	if timezone == "" {
		timezone = "America/Los_Angeles"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, device_id, name, preferred_name, timezone, life_details, preferences)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		    device_id = excluded.device_id,
		    name = excluded.name,
		    preferred_name = excluded.preferred_name,
		    timezone = excluded.timezone,
		    life_details = excluded.life_details,
		    preferences = excluded.preferences,
		    updated_at = CURRENT_TIMESTAMP`,
		p.UserID, p.DeviceID, p.Name, p.PreferredName, timezone, lifeDetails, preferences)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}

// History returns the most recent turns of a session in chronological
// order, capped at limit.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM conversation_turns
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var newestFirst []types.ChatMessage
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	history := make([]types.ChatMessage, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		history = append(history, newestFirst[i])
	}
	return history, nil
}

// AddTurn appends one conversation turn.
func (s *Store) AddTurn(ctx context.Context, turn *types.ConversationTurn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (session_id, user_id, role, content, intent)
		VALUES (?, ?, ?, ?, ?)`,
		turn.SessionID, turn.UserID, turn.Role, turn.Content, turn.Intent)
	if err != nil {
		return fmt.Errorf("add turn: %w", err)
	}
	return nil
}

// GetCarePlan returns the care plan for a user, or an empty plan when
// none has been loaded.
func (s *Store) GetCarePlan(ctx context.Context, userID string) (*types.CarePlan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT medications, routines, contacts, COALESCE(notes, ''), updated_at
		FROM care_plans WHERE user_id = ?`, userID)

	var medications, routines, contacts, updatedAt string
	plan := &types.CarePlan{UserID: userID}
	err := row.Scan(&medications, &routines, &contacts, &plan.Notes, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		plan.Medications = []types.Medication{}
		plan.Routines = []string{}
		plan.Contacts = []types.Contact{}
		return plan, nil
	case err != nil:
		return nil, fmt.Errorf("query care plan for %s: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(medications), &plan.Medications); err != nil {
		return nil, fmt.Errorf("decode medications: %w", err)
	}
	if err := json.Unmarshal([]byte(routines), &plan.Routines); err != nil {
		return nil, fmt.Errorf("decode routines: %w", err)
	}
	if err := json.Unmarshal([]byte(contacts), &plan.Contacts); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	plan.UpdatedAt = parseStoredTime(updatedAt)
	return plan, nil
}

// SaveCarePlan upserts a care plan. Admin write path.
func (s *Store) SaveCarePlan(ctx context.Context, plan *types.CarePlan) error {
	medications, err := json.Marshal(orEmptySlice(plan.Medications))
	if err != nil {
		return fmt.Errorf("encode medications: %w", err)
	}
	routines, err := json.Marshal(orEmptySlice(plan.Routines))
	if err != nil {
		return fmt.Errorf("encode routines: %w", err)
	}
	contacts, err := json.Marshal(orEmptySlice(plan.Contacts))
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO care_plans (user_id, medications, routines, contacts, notes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		    medications = excluded.medications,
		    routines = excluded.routines,
		    contacts = excluded.contacts,
		    notes = excluded.notes,
		    updated_at = CURRENT_TIMESTAMP`,
		plan.UserID, string(medications), string(routines), string(contacts), plan.Notes)
	if err != nil {
		return fmt.Errorf("save care plan %s: %w", plan.UserID, err)
	}
	return nil
}

// UpdateDeviceActivity stamps the device's last-heard-from time and
// bumps its session counter.
func (s *Store) UpdateDeviceActivity(ctx context.Context, deviceID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_sessions (device_id, user_id, last_activity, session_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(device_id) DO UPDATE SET
		    last_activity = excluded.last_activity,
		    session_count = session_count + 1`,
		deviceID, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("update activity for %s: %w", deviceID, err)
	}
	return nil
}

// GetDeviceActivity returns the activity record for a device, or nil
// when the device has never been heard from.
func (s *Store) GetDeviceActivity(ctx context.Context, deviceID string) (*types.DeviceActivity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, COALESCE(user_id, ''), COALESCE(last_activity, ''), session_count
		FROM device_sessions WHERE device_id = ?`, deviceID)

	var a types.DeviceActivity
	var lastActivity string
	err := row.Scan(&a.DeviceID, &a.UserID, &lastActivity, &a.SessionCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("query activity for %s: %w", deviceID, err)
	}
	a.LastActivity = parseStoredTime(lastActivity)
	return &a, nil
}

// ActiveDevices lists devices heard from in the last hour.
func (s *Store) ActiveDevices(ctx context.Context) ([]string, error) {
	cutoff := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id FROM device_sessions WHERE last_activity > ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query active devices: %w", err)
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, id)
	}
	return devices, rows.Err()
}

// AddLearnedFact stores a remembered detail about the user.
func (s *Store) AddLearnedFact(ctx context.Context, fact *types.LearnedFact) error {
	source := fact.Source
	if source == "" {
		source = "conversation"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_facts (user_id, fact_type, fact_key, fact_value, confidence, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fact.UserID, fact.FactType, fact.FactKey, fact.FactValue, factConfidence(fact), source)
	if err != nil {
		return fmt.Errorf("add fact: %w", err)
	}
	logger.Debug("fact_learned",
		"user_id", fact.UserID, "fact_type", fact.FactType, "fact_key", fact.FactKey)
	return nil
}

// GetLearnedFacts returns all facts for a user, newest first.
func (s *Store) GetLearnedFacts(ctx context.Context, userID string) ([]types.LearnedFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(fact_type, ''), COALESCE(fact_key, ''),
		       COALESCE(fact_value, ''), confidence, COALESCE(source, ''), created_at
		FROM learned_facts
		WHERE user_id = ?
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query facts for %s: %w", userID, err)
	}
	defer rows.Close()

	var facts []types.LearnedFact
	for rows.Next() {
		var f types.LearnedFact
		var createdAt string
		if err := rows.Scan(&f.ID, &f.UserID, &f.FactType, &f.FactKey,
			&f.FactValue, &f.Confidence, &f.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.CreatedAt = parseStoredTime(createdAt)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func factConfidence(f *types.LearnedFact) float64 {
	if f.Confidence == 0 {
		return 1.0
	}
	return f.Confidence
}

func decodeJSONMap(raw string) map[string]any {
	m := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &m)
	}
	return m
}

func encodeJSONMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// parseStoredTime reads either RFC3339 (our writes) or the SQLite
// CURRENT_TIMESTAMP format (column defaults).
func parseStoredTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t
	}
	return time.Time{}
}
