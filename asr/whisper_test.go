package asr

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/hearth/audio"
)

// fakeWhisper records the last transcription request and serves a
// canned verbose_json response.
type fakeWhisper struct {
	response verboseTranscription
	lastForm map[string]string
	lastWAV  []byte
}

func (f *fakeWhisper) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastForm = make(map[string]string)
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			f.readPart(part)
		}
		_ = json.NewEncoder(w).Encode(f.response)
	})
	return mux
}

func (f *fakeWhisper) readPart(part *multipart.Part) {
	defer part.Close()
	data, _ := io.ReadAll(part)
	if part.FormName() == "file" {
		f.lastWAV = data
		return
	}
	f.lastForm[part.FormName()] = string(data)
}

func TestTranscribeDecodesVerboseJSON(t *testing.T) {
	fake := &fakeWhisper{
		response: verboseTranscription{
			Text:     " Hello there.",
			Language: "en",
			Segments: []struct {
				Text       string  `json:"text"`
				AvgLogprob float64 `json:"avg_logprob"`
			}{
				{Text: "Hello there.", AvgLogprob: -0.25},
			},
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := NewWhisperClient(server.URL, "tiny.en")
	assert.Equal(t, "whisper-tiny.en", client.Name())

	pcm := audio.Silence(200, 16000)
	res, err := client.Transcribe(context.Background(), pcm)
	require.NoError(t, err)

	assert.Equal(t, " Hello there.", res.Text)
	assert.Equal(t, "en", res.Language)
	assert.InDelta(t, math.Exp(-0.25), res.Confidence, 0.001)

	// The engine receives a WAV container wrapping the PCM.
	decoded, rate, err := audio.DecodeWAV(fake.lastWAV)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, pcm, decoded)

	assert.Equal(t, "tiny.en", fake.lastForm["model"])
	assert.Equal(t, "verbose_json", fake.lastForm["response_format"])
	assert.Equal(t, "en", fake.lastForm["language"])
	assert.Equal(t, "5", fake.lastForm["beam_size"])
	assert.Equal(t, "true", fake.lastForm["vad_filter"])
	assert.Equal(t, "500", fake.lastForm["min_silence_duration_ms"])
	assert.Equal(t, "200", fake.lastForm["speech_pad_ms"])
}

func TestTranscribeConfidenceAveragesSegments(t *testing.T) {
	fake := &fakeWhisper{
		response: verboseTranscription{
			Text: "Two segments.",
			Segments: []struct {
				Text       string  `json:"text"`
				AvgLogprob float64 `json:"avg_logprob"`
			}{
				{AvgLogprob: -0.1},
				{AvgLogprob: -0.7},
			},
		},
	}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := NewWhisperClient(server.URL, "tiny.en")
	res, err := client.Transcribe(context.Background(), audio.Silence(100, 16000))
	require.NoError(t, err)

	want := (math.Exp(-0.1) + math.Exp(-0.7)) / 2
	assert.InDelta(t, want, res.Confidence, 0.001)
}

func TestTranscribeNoSegmentsZeroConfidence(t *testing.T) {
	fake := &fakeWhisper{response: verboseTranscription{Text: ""}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := NewWhisperClient(server.URL, "tiny.en")
	res, err := client.Transcribe(context.Background(), audio.Silence(100, 16000))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

func TestTranscribeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewWhisperClient(server.URL, "tiny.en")
	_, err := client.Transcribe(context.Background(), audio.Silence(100, 16000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestHealthCheck(t *testing.T) {
	fake := &fakeWhisper{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client := NewWhisperClient(server.URL, "tiny.en")
	assert.NoError(t, client.HealthCheck(context.Background()))

	down := NewWhisperClient("http://127.0.0.1:1", "tiny.en")
	assert.Error(t, down.HealthCheck(context.Background()))
}
