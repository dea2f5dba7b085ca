package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/types"
)

// Generation parameters for the two request kinds. Reactive replies
// stay short for natural conversation; proactive check-ins get a
// little more room and warmth.
const (
	reactiveMaxTokens    = 60
	reactiveTemperature  = 0.7
	proactiveMaxTokens   = 100
	proactiveTemperature = 0.8
)

// proactiveTick is how often the rules engine is evaluated.
const proactiveTick = time.Minute

// Config holds the orchestrator-specific settings.
type Config struct {
	// DefaultDeviceID is the device the proactive loop targets.
	DefaultDeviceID string

	// EnableProactive turns the rules engine loop on.
	EnableProactive bool

	// ProactiveRatePerHour caps companion-initiated requests. Zero
	// means the default of 6.
	ProactiveRatePerHour int
}

// Worker is the orchestrator: it consumes transcripts, builds
// context-rich LLM requests, persists both halves of every exchange,
// and runs the proactive rules loop.
type Worker struct {
	bus    *bus.Client
	store  *Store
	engine *Engine
	cfg    Config

	limiter *rate.Limiter
	tick    time.Duration

	consumer     string
	respConsumer string
}

// NewWorker builds an orchestrator worker. rules is the loaded rule
// set; pass DefaultRules() when no config file exists.
func NewWorker(b *bus.Client, store *Store, rules []Rule, cfg Config) *Worker {
	perHour := cfg.ProactiveRatePerHour
	if perHour <= 0 {
		perHour = 6
	}

	return &Worker{
		bus:          b,
		store:        store,
		engine:       NewEngine(store, rules),
		cfg:          cfg,
		limiter:      rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), 2),
		tick:         proactiveTick,
		consumer:     bus.ConsumerName("orchestrator"),
		respConsumer: bus.ConsumerName("orchestrator-resp"),
	}
}

// Run starts the three orchestrator loops and blocks until ctx is
// canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("orchestrator_started", "proactive", w.cfg.EnableProactive)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.bus.Consume(ctx, types.StreamTranscripts,
			types.GroupOrchestrator, w.consumer, w.handleTranscript)
	})
	g.Go(func() error {
		return w.bus.Consume(ctx, types.StreamLLMResponses,
			types.GroupOrchestratorResponses, w.respConsumer, w.handleResponse)
	})
	g.Go(func() error {
		return w.runProactive(ctx)
	})
	return g.Wait()
}

// handleTranscript turns one transcript into an LLM request enriched
// with profile, history, care plan, and learned facts.
func (w *Worker) handleTranscript(ctx context.Context, _ string, data []byte) error {
	start := time.Now()

	var t types.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("decode transcript: %w", err)
	}

	text := strings.TrimSpace(t.Text)
	if text == "" {
		return nil
	}
	logger.Info("processing_transcript", "session_id", t.SessionID, "text", truncateText(text, 50))

	profile, err := w.store.GetUserProfile(ctx, t.DeviceID)
	if err != nil {
		return err
	}
	history, err := w.store.History(ctx, t.SessionID, DefaultHistoryLimit)
	if err != nil {
		return err
	}
	plan, err := w.store.GetCarePlan(ctx, profile.UserID)
	if err != nil {
		return err
	}
	facts, err := w.store.GetLearnedFacts(ctx, profile.UserID)
	if err != nil {
		return err
	}

	req := types.LLMRequest{
		RequestID:           uuid.NewString(),
		DeviceID:            t.DeviceID,
		SessionID:           t.SessionID,
		UserID:              profile.UserID,
		Timestamp:           time.Now().UTC(),
		UserMessage:         text,
		ConversationHistory: history,
		UserProfile:         contextMap(profile),
		CarePlanContext:     contextMap(plan),
		SystemPrompt:        BuildSystemPrompt(profile, plan, facts),
		MaxTokens:           reactiveMaxTokens,
		Temperature:         reactiveTemperature,
	}

	if err := w.store.AddTurn(ctx, &types.ConversationTurn{
		SessionID: t.SessionID,
		UserID:    profile.UserID,
		Role:      types.RoleUser,
		Content:   text,
	}); err != nil {
		return err
	}
	if err := w.store.UpdateDeviceActivity(ctx, t.DeviceID, profile.UserID); err != nil {
		logger.Warn("device_activity_update_failed", "device_id", t.DeviceID, "error", err)
	}

	if _, err := w.bus.Publish(ctx, types.StreamLLMRequests, req); err != nil {
		return err
	}

	metrics.RecordStageLatency("orchestrator", float64(time.Since(start).Milliseconds()))
	logger.Debug("llm_request_sent", "request_id", req.RequestID)
	return nil
}

// handleResponse persists the assistant turn. Speech dispatch already
// happened sentence by sentence in the LLM worker, so nothing is
// forwarded here.
func (w *Worker) handleResponse(ctx context.Context, _ string, data []byte) error {
	var resp types.LLMResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode llm response: %w", err)
	}
	logger.Info("llm_response_received",
		"request_id", resp.RequestID, "text", truncateText(resp.Text, 50))

	return w.store.AddTurn(ctx, &types.ConversationTurn{
		SessionID: resp.SessionID,
		Role:      types.RoleAssistant,
		Content:   resp.Text,
		Intent:    string(resp.DetectedIntent),
	})
}

// runProactive evaluates the rules engine every tick and dispatches
// triggered rules, subject to the rate limit.
func (w *Worker) runProactive(ctx context.Context) error {
	if !w.cfg.EnableProactive {
		logger.Info("proactive_rules_disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	logger.Info("proactive_rules_engine_started")

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.evaluateProactive(ctx)
		}
	}
}

func (w *Worker) evaluateProactive(ctx context.Context) {
	deviceID := w.cfg.DefaultDeviceID

	for _, rule := range w.engine.Evaluate(ctx, deviceID) {
		if !w.limiter.Allow() {
			logger.Info("proactive_rate_limited", "rule_name", rule.Name)
			return
		}
		if err := w.executeRule(ctx, deviceID, rule); err != nil {
			logger.Error("proactive_rule_error", "rule_name", rule.Name, "error", err)
		}
	}
}

// executeRule publishes a companion-initiated LLM request for one
// triggered rule. Behavioral and care-plan rules also surface a
// caregiver event.
func (w *Worker) executeRule(ctx context.Context, deviceID string, rule Rule) error {
	logger.Info("executing_proactive_rule", "rule_name", rule.Name)

	profile, err := w.store.GetUserProfile(ctx, deviceID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	req := types.LLMRequest{
		RequestID:    uuid.NewString(),
		DeviceID:     deviceID,
		SessionID:    fmt.Sprintf("%s-proactive-%d", deviceID, now.Unix()),
		UserID:       profile.UserID,
		Timestamp:    now,
		UserMessage:  fmt.Sprintf("[PROACTIVE:%s] %s", rule.Name, rule.Prompt),
		UserProfile:  contextMap(profile),
		SystemPrompt: BuildProactivePrompt(profile, rule),
		MaxTokens:    proactiveMaxTokens,
		Temperature:  proactiveTemperature,
	}

	if _, err := w.bus.Publish(ctx, types.StreamLLMRequests, req); err != nil {
		return err
	}

	if rule.Type == RuleBehavioral || rule.Type == RuleCarePlan {
		w.publishCaregiverEvent(ctx, deviceID, profile.UserID, rule, now)
	}
	return nil
}

func (w *Worker) publishCaregiverEvent(ctx context.Context, deviceID, userID string, rule Rule, now time.Time) {
	severity := "info"
	if rule.Type == RuleBehavioral {
		severity = "warning"
	}

	event := types.CaregiverEvent{
		EventID:   uuid.NewString(),
		DeviceID:  deviceID,
		UserID:    userID,
		EventType: rule.Name,
		Severity:  severity,
		Message:   rule.Prompt,
		CreatedAt: now,
	}
	if _, err := w.bus.Publish(ctx, types.StreamCaregiverEvents, event); err != nil {
		logger.Error("caregiver_event_publish_failed", "rule_name", rule.Name, "error", err)
	}
}

// contextMap flattens a record into the free-form map carried on an
// LLMRequest.
func contextMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
