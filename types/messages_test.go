package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioChunkJSONCarriesPCMAsBase64(t *testing.T) {
	chunk := AudioChunk{
		DeviceID:    "companion-001",
		SessionID:   "companion-001-1700000000",
		Sequence:    7,
		CapturedAt:  time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		PCM:         []byte{0x00, 0x10, 0xff, 0x7f},
		DurationMS:  100,
		IsStreaming: true,
	}

	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	// Raw PCM must never appear verbatim in the JSON; it rides as base64.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "ABD/fw==", raw["pcm"])

	var decoded AudioChunk
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, chunk.PCM, decoded.PCM)
	assert.True(t, decoded.IsStreaming)
}

func TestTTSResultFieldNames(t *testing.T) {
	result := TTSResult{
		RequestID:  "req-1-0",
		DeviceID:   "companion-001",
		SessionID:  "s1",
		WAV:        []byte("RIFF"),
		DurationMS: 420,
		LatencyMS:  55,
		Text:       "Hello there.",
		UIHints:    UIHints{ShowText: true, Mood: "neutral"},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "audio_data")
	assert.Contains(t, raw, "ui_hints")

	hints, ok := raw["ui_hints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, hints["show_text"])
	assert.Equal(t, "neutral", hints["mood"])
}

func TestLLMRequestRoundTrip(t *testing.T) {
	req := LLMRequest{
		RequestID:   "11111111-2222-3333-4444-555555555555",
		DeviceID:    "companion-001",
		SessionID:   "s1",
		UserID:      "user-001",
		UserMessage: "how are you",
		ConversationHistory: []ChatMessage{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "Hi there!"},
		},
		SystemPrompt: "You are a friendly companion.",
		MaxTokens:    60,
		Temperature:  0.7,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded LLMRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req.ConversationHistory, decoded.ConversationHistory)
	assert.Equal(t, 60, decoded.MaxTokens)
}

func TestUserProfileDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile UserProfile
		want    string
	}{
		{"preferred name wins", UserProfile{Name: "Margaret", PreferredName: "Maggie"}, "Maggie"},
		{"falls back to name", UserProfile{Name: "Margaret"}, "Margaret"},
		{"default", UserProfile{}, "Friend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.DisplayName())
		})
	}
}

func TestChunkDurationConstant(t *testing.T) {
	// 16 kHz * 2 bytes/sample = 32 bytes per millisecond.
	pcm := make([]byte, 3200)
	assert.Equal(t, 100, len(pcm)/PCMBytesPerMS)
}
