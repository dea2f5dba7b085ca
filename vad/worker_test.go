package vad

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/types"
)

func setupWorker(t *testing.T, analyzer audio.Analyzer) (*Worker, *bus.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := bus.New(rdb, bus.WithBlock(50*time.Millisecond))
	return NewWorker(client, analyzer), client, mr
}

func loudChunk(durationMS int) []byte {
	numSamples := 16 * durationMS
	pcm := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		sample := int16(6000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}

func segmentUtterances(t *testing.T, mr *miniredis.Miniredis) []types.Utterance {
	t.Helper()
	key := "hearth:" + types.StreamAudioSegments
	if !mr.Exists(key) {
		return nil
	}
	entries, err := mr.Stream(key)
	require.NoError(t, err)

	var out []types.Utterance
	for _, entry := range entries {
		for i := 0; i+1 < len(entry.Values); i += 2 {
			if entry.Values[i] != "data" {
				continue
			}
			var utt types.Utterance
			require.NoError(t, json.Unmarshal([]byte(entry.Values[i+1]), &utt))
			out = append(out, utt)
		}
	}
	return out
}

// erroringAnalyzer always fails, exercising the degrade-to-silence path.
type erroringAnalyzer struct{}

func (erroringAnalyzer) Name() string { return "broken" }
func (erroringAnalyzer) Analyze(context.Context, []byte) (audio.Detection, error) {
	return audio.Detection{}, errors.New("model exploded")
}
func (erroringAnalyzer) Reset() {}

func TestPassthroughForwardsSpeech(t *testing.T) {
	worker, client, mr := setupWorker(t, audio.NewEnergyAnalyzer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	pcm := loudChunk(400)
	_, err := client.Publish(ctx, types.StreamAudioInbound, types.AudioChunk{
		DeviceID:    "companion-001",
		SessionID:   "s1",
		PCM:         pcm,
		DurationMS:  400,
		IsStreaming: false,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(segmentUtterances(t, mr)) == 1
	}, 2*time.Second, 20*time.Millisecond)

	utt := segmentUtterances(t, mr)[0]
	assert.Equal(t, "companion-001", utt.DeviceID)
	assert.Equal(t, "s1", utt.SessionID)
	assert.Equal(t, pcm, utt.PCM)
	assert.Equal(t, 400, utt.DurationMS)
	assert.Greater(t, utt.Probability, 0.0)
	assert.False(t, utt.EmittedAt.IsZero())
}

func TestPassthroughDropsSilence(t *testing.T) {
	worker, client, mr := setupWorker(t, audio.NewEnergyAnalyzer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	_, err := client.Publish(ctx, types.StreamAudioInbound, types.AudioChunk{
		SessionID:   "s1",
		PCM:         audio.Silence(400, types.CaptureSampleRate),
		IsStreaming: false,
	})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, segmentUtterances(t, mr))
}

func TestStreamingEmitsOneUtterance(t *testing.T) {
	worker, client, mr := setupWorker(t, audio.NewEnergyAnalyzer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	publish := func(pcm []byte, seq int64) {
		_, err := client.Publish(ctx, types.StreamAudioInbound, types.AudioChunk{
			DeviceID:    "companion-001",
			SessionID:   "s2",
			Sequence:    seq,
			PCM:         pcm,
			DurationMS:  100,
			IsStreaming: true,
		})
		require.NoError(t, err)
	}

	seq := int64(0)
	for i := 0; i < 3; i++ {
		publish(loudChunk(100), seq)
		seq++
	}
	for i := 0; i < SilenceEndChunks; i++ {
		publish(audio.Silence(100, types.CaptureSampleRate), seq)
		seq++
	}

	require.Eventually(t, func() bool {
		return len(segmentUtterances(t, mr)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	utt := segmentUtterances(t, mr)[0]
	assert.Equal(t, (3+SilenceEndChunks)*100, utt.DurationMS)
	assert.Len(t, utt.PCM, (3+SilenceEndChunks)*100*32)
}

func TestStreamingTooFewSpeechChunksEmitsNothing(t *testing.T) {
	worker, client, mr := setupWorker(t, audio.NewEnergyAnalyzer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	publishOne := func(pcm []byte) {
		_, err := client.Publish(ctx, types.StreamAudioInbound, types.AudioChunk{
			SessionID:   "s3",
			PCM:         pcm,
			DurationMS:  100,
			IsStreaming: true,
		})
		require.NoError(t, err)
	}

	publishOne(loudChunk(100))
	for i := 0; i < SilenceEndChunks*2; i++ {
		publishOne(audio.Silence(100, types.CaptureSampleRate))
	}

	time.Sleep(500 * time.Millisecond)
	assert.Empty(t, segmentUtterances(t, mr))
}

func TestDetectorErrorDegradesToSilence(t *testing.T) {
	worker, client, mr := setupWorker(t, erroringAnalyzer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	_, err := client.Publish(ctx, types.StreamAudioInbound, types.AudioChunk{
		SessionID:   "s4",
		PCM:         loudChunk(400),
		IsStreaming: false,
	})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, segmentUtterances(t, mr))
}
