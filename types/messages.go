// Package types defines the message envelopes exchanged between pipeline
// stages over the stream bus, plus the records held in the conversation
// store. All envelopes serialize to JSON with snake_case field names;
// audio payloads are []byte fields which encoding/json carries as base64
// strings, matching the bus wire contract.
package types

import "time"

// Audio format constants for the capture path. The device streams
// 16 kHz mono signed-16 little-endian PCM, which works out to 32 bytes
// per millisecond.
const (
	CaptureSampleRate = 16000
	PCMBytesPerMS     = 32
)

// SynthesisSampleRate is the output rate of the speech synthesizer.
const SynthesisSampleRate = 22050

// Intent classifies what the user was trying to do. Detection is a
// placeholder in v1: every response carries IntentUnknown.
type Intent string

const (
	IntentGreeting       Intent = "greeting"
	IntentFarewell       Intent = "farewell"
	IntentQuestion       Intent = "question"
	IntentRequest        Intent = "request"
	IntentAcknowledgment Intent = "acknowledgment"
	IntentUnknown        Intent = "unknown"
)

// AudioChunk is one inbound frame of microphone audio published by the
// gateway. IsStreaming distinguishes the two ingest paths: false means
// the client already segmented the utterance (passthrough VAD), true
// means the server-side boundary state machine decides.
type AudioChunk struct {
	DeviceID    string    `json:"device_id"`
	SessionID   string    `json:"session_id"`
	Sequence    int64     `json:"sequence"`
	CapturedAt  time.Time `json:"captured_at"`
	PCM         []byte    `json:"pcm"`
	DurationMS  int       `json:"duration_ms"`
	IsStreaming bool      `json:"is_streaming"`
}

// Utterance is a contiguous span of user speech bounded by detected
// silence, emitted by the VAD worker as a single blob for recognition.
type Utterance struct {
	DeviceID    string    `json:"device_id"`
	SessionID   string    `json:"session_id"`
	PCM         []byte    `json:"pcm"`
	DurationMS  int       `json:"duration_ms"`
	Probability float64   `json:"probability"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// Transcript is the recognizer output for one utterance. Empty-text
// results are dropped by the ASR worker and never reach the bus.
type Transcript struct {
	DeviceID     string    `json:"device_id"`
	SessionID    string    `json:"session_id"`
	Text         string    `json:"text"`
	Confidence   float64   `json:"confidence"`
	Language     string    `json:"language"`
	ProcessingMS int64     `json:"processing_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChatMessage is one turn of conversation context handed to the language
// model. Role is "system", "user", or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest asks the LLM worker for a response. ConversationHistory is
// ordered oldest to newest and never contains system turns; the system
// prompt travels separately.
type LLMRequest struct {
	RequestID           string         `json:"request_id"`
	DeviceID            string         `json:"device_id"`
	SessionID           string         `json:"session_id"`
	UserID              string         `json:"user_id"`
	Timestamp           time.Time      `json:"timestamp"`
	UserMessage         string         `json:"user_message"`
	ConversationHistory []ChatMessage  `json:"conversation_history"`
	UserProfile         map[string]any `json:"user_profile"`
	CarePlanContext     map[string]any `json:"care_plan_context"`
	SystemPrompt        string         `json:"system_prompt"`
	MaxTokens           int            `json:"max_tokens"`
	Temperature         float64        `json:"temperature"`
}

// LLMResponse is the full generated text, published once per request
// after streaming concludes. The orchestrator persists the assistant
// turn from it; TTS dispatch already happened sentence by sentence.
type LLMResponse struct {
	RequestID      string    `json:"request_id"`
	DeviceID       string    `json:"device_id"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	Text           string    `json:"text"`
	DetectedIntent Intent    `json:"detected_intent"`
	Model          string    `json:"model"`
	LatencyMS      int64     `json:"latency_ms"`
	TokensUsed     int       `json:"tokens_used"`
	IsFallback     bool      `json:"is_fallback"`
}

// TTSRequest asks the TTS worker to synthesize one sentence. For
// streamed responses RequestID is "<parent request id>-<sentence index>"
// so results can be correlated back to the generation that produced them.
type TTSRequest struct {
	RequestID string    `json:"request_id"`
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	VoiceID   string    `json:"voice_id,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
}

// UIHints tells the device how to present a response.
type UIHints struct {
	ShowText bool   `json:"show_text"`
	Mood     string `json:"mood"`
}

// TTSResult carries synthesized speech back toward the device. WAV is a
// complete RIFF/WAVE container at 22.05 kHz mono signed-16.
type TTSResult struct {
	RequestID  string    `json:"request_id"`
	DeviceID   string    `json:"device_id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	WAV        []byte    `json:"audio_data"`
	DurationMS int       `json:"duration_ms"`
	LatencyMS  int64     `json:"latency_ms"`
	Text       string    `json:"text"`
	UIHints    UIHints   `json:"ui_hints"`
}

// CaregiverEvent is published to events.caregiver when a behavioral or
// care-plan rule fires, so an external caregiver surface can observe
// wellness signals without touching the voice path.
type CaregiverEvent struct {
	EventID   string    `json:"event_id"`
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
