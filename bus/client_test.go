package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/hearth/types"
)

func setupClient(t *testing.T, opts ...Option) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	base := []Option{WithBlock(50 * time.Millisecond)}
	return New(rdb, append(base, opts...)...), mr
}

func TestPublishAppendsEnvelope(t *testing.T) {
	client, mr := setupClient(t)
	ctx := context.Background()

	chunk := types.AudioChunk{
		DeviceID:   "companion-001",
		SessionID:  "s1",
		PCM:        []byte{1, 2, 3, 4},
		DurationMS: 100,
	}

	id, err := client.Publish(ctx, types.StreamAudioInbound, chunk)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := mr.Stream("hearth:" + types.StreamAudioInbound)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fields := make(map[string]string)
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		fields[entries[0].Values[i]] = entries[0].Values[i+1]
	}

	var decoded types.AudioChunk
	require.NoError(t, json.Unmarshal([]byte(fields["data"]), &decoded))
	assert.Equal(t, chunk.PCM, decoded.PCM)
	assert.NotEmpty(t, fields["ver"])
}

func TestPublishCustomPrefix(t *testing.T) {
	client, mr := setupClient(t, WithKeyPrefix("test:"))
	ctx := context.Background()

	_, err := client.Publish(ctx, types.StreamTranscripts, types.Transcript{Text: "hi"})
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:"+types.StreamTranscripts))
}

func TestConsumeDeliversInAppendOrder(t *testing.T) {
	client, _ := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := client.Publish(ctx, types.StreamTranscripts, types.Transcript{
			SessionID: "s1",
			Text:      string(rune('a' + i)),
		})
		require.NoError(t, err)
	}

	received := make(chan string, 3)
	go func() {
		_ = client.Consume(ctx, types.StreamTranscripts, types.GroupOrchestrator, "test-1",
			func(_ context.Context, _ string, data []byte) error {
				var tr types.Transcript
				if err := json.Unmarshal(data, &tr); err != nil {
					return err
				}
				received <- tr.Text
				return nil
			})
	}()

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case text := <-received:
			got = append(got, text)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestConsumeAcksAfterHandler(t *testing.T) {
	client, mr := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := client.Publish(ctx, types.StreamTranscripts, types.Transcript{Text: "hello"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = client.Consume(ctx, types.StreamTranscripts, types.GroupOrchestrator, "test-1",
			func(_ context.Context, _ string, _ []byte) error {
				close(done)
				return nil
			})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	// Give the ack a moment, then verify the group has no pending entries.
	assert.Eventually(t, func() bool {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()
		pending, err := rdb.XPending(context.Background(),
			"hearth:"+types.StreamTranscripts, types.GroupOrchestrator).Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestConsumeDropsPoisonPill(t *testing.T) {
	client, mr := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A frame whose data field is not valid JSON.
	mr.XAdd("hearth:"+types.StreamTranscripts, "*", []string{"data", "{not json"})
	_, err := client.Publish(ctx, types.StreamTranscripts, types.Transcript{Text: "good"})
	require.NoError(t, err)

	received := make(chan string, 2)
	go func() {
		_ = client.Consume(ctx, types.StreamTranscripts, types.GroupOrchestrator, "test-1",
			func(_ context.Context, _ string, data []byte) error {
				var tr types.Transcript
				_ = json.Unmarshal(data, &tr)
				received <- tr.Text
				return nil
			})
	}()

	// Only the well-formed message reaches the handler.
	select {
	case text := <-received:
		assert.Equal(t, "good", text)
	case <-time.After(2 * time.Second):
		t.Fatal("good message never delivered")
	}
	select {
	case text := <-received:
		t.Fatalf("unexpected extra delivery: %q", text)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConsumeHandlerErrorStillAcks(t *testing.T) {
	client, _ := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := client.Publish(ctx, types.StreamTranscripts, types.Transcript{Text: "x"})
	require.NoError(t, err)

	calls := make(chan struct{}, 4)
	go func() {
		_ = client.Consume(ctx, types.StreamTranscripts, types.GroupOrchestrator, "test-1",
			func(_ context.Context, _ string, _ []byte) error {
				calls <- struct{}{}
				return assert.AnError
			})
	}()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	// At-least-once with auto-ack: a failed handler does not cause redelivery.
	select {
	case <-calls:
		t.Fatal("message was redelivered after handler error")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestConsumeReturnsOnCancel(t *testing.T) {
	client, _ := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Consume(ctx, types.StreamTranscripts, types.GroupOrchestrator, "test-1",
			func(_ context.Context, _ string, _ []byte) error { return nil })
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestGroupCreationIsIdempotent(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.ensureGroup(ctx, client.key(types.StreamTranscripts), types.GroupASR))
	require.NoError(t, client.ensureGroup(ctx, client.key(types.StreamTranscripts), types.GroupASR))
}

func TestHealthCheck(t *testing.T) {
	client, mr := setupClient(t)
	ctx := context.Background()

	assert.True(t, client.HealthCheck(ctx))
	mr.Close()
	assert.False(t, client.HealthCheck(ctx))
}

func TestNewFromURLUnreachable(t *testing.T) {
	_, err := NewFromURL(context.Background(), "redis://127.0.0.1:1/0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusUnavailable)
}
