// Package bus implements the stream bus that connects pipeline stages:
// named, durable, append-only Redis Streams read through consumer groups
// with explicit acknowledgement. It is the only inter-stage
// communication primitive in the system.
//
// Wire format: each stream entry carries a "data" field holding the
// JSON-encoded record (audio rides inside as base64), plus optional
// "trace" (W3C traceparent) and "ver" (producer version) fields that
// older readers ignore.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/telemetry"
	"github.com/AltairaLabs/hearth/version"
)

// ErrBusUnavailable indicates the backing store could not be reached.
var ErrBusUnavailable = errors.New("bus unavailable")

// Envelope field names.
const (
	fieldData  = "data"
	fieldTrace = "trace"
	fieldVer   = "ver"
)

const (
	// defaultMaxLen caps each stream at roughly this many entries;
	// trimming is approximate and lossy on the oldest.
	defaultMaxLen = 10000

	// defaultBlock is how long a consumer read blocks before yielding,
	// which bounds shutdown latency.
	defaultBlock = time.Second

	// defaultPrefix namespaces all stream keys.
	defaultPrefix = "hearth:"

	// errBackoff is the pause after a transient consume error before
	// resuming at the group cursor.
	errBackoff = time.Second
)

// Handler processes one consumed message. The raw JSON payload is
// passed through; the handler owns decoding. The message is
// acknowledged after the handler returns regardless of its error, which
// is what gives the bus at-least-once (not exactly-once) semantics.
type Handler func(ctx context.Context, id string, data []byte) error

// Client is a stream bus client. It is safe for concurrent use.
type Client struct {
	rdb    *redis.Client
	prefix string
	maxLen int64
	block  time.Duration

	mu         sync.Mutex
	verWarned  map[string]bool
	ownsClient bool
}

// Option configures a Client.
type Option func(*Client)

// WithKeyPrefix sets the stream key prefix. Default is "hearth:".
func WithKeyPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithMaxLen sets the approximate per-stream entry cap.
func WithMaxLen(n int64) Option {
	return func(c *Client) {
		c.maxLen = n
	}
}

// WithBlock sets the consumer read block duration.
func WithBlock(d time.Duration) Option {
	return func(c *Client) {
		c.block = d
	}
}

// New creates a bus client on an existing Redis connection.
func New(rdb *redis.Client, opts ...Option) *Client {
	c := &Client{
		rdb:       rdb,
		prefix:    defaultPrefix,
		maxLen:    defaultMaxLen,
		block:     defaultBlock,
		verWarned: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromURL creates a bus client by dialing the given redis:// URL.
// The connection is verified with a ping before returning.
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}

	c := New(rdb, opts...)
	c.ownsClient = true
	logger.Info("bus_connected", "url", url)
	return c, nil
}

// Close releases the underlying connection if this client dialed it.
func (c *Client) Close() error {
	if c.ownsClient {
		return c.rdb.Close()
	}
	return nil
}

// key returns the wire-level stream key.
func (c *Client) key(stream string) string {
	return c.prefix + stream
}

// Publish JSON-encodes record and appends it to the stream, trimming to
// the approximate cap. Returns the entry ID assigned by the store.
func (c *Client) Publish(ctx context.Context, stream string, record any) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record for %s: %w", stream, err)
	}

	values := map[string]any{
		fieldData: string(data),
		fieldVer:  version.Get(),
	}
	if tp := telemetry.InjectTraceparent(ctx); tp != "" {
		values[fieldTrace] = tp
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.key(stream),
		MaxLen: c.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", ErrBusUnavailable, stream, err)
	}

	metrics.RecordMessagePublished(stream)
	logger.Debug("message_published", "stream", stream, "message_id", id)
	return id, nil
}

// Consume reads new-to-this-group messages from the stream and invokes
// handler for each, acknowledging after the handler returns. The
// consumer group is created lazily (BUSYGROUP is swallowed). Transient
// errors back off one second and resume at the group cursor; the call
// returns only when ctx is canceled.
func (c *Client) Consume(ctx context.Context, stream, group, consumer string, handler Handler) error {
	key := c.key(stream)

	if err := c.ensureGroup(ctx, key, group); err != nil {
		return err
	}

	logger.Info("consumer_started", "stream", stream, "group", group, "consumer", consumer)

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("consumer_stopped", "stream", stream, "group", group)
			return err
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{key, ">"},
			Count:    1,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // block timeout, nothing new
			}
			if ctx.Err() != nil {
				continue
			}
			logger.Error("consumer_error", "stream", stream, "group", group, "error", err)
			c.sleep(ctx, errBackoff)
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				c.dispatch(ctx, stream, key, group, consumer, msg, handler)
			}
		}
	}
}

// dispatch decodes one entry, runs the handler, and acknowledges.
func (c *Client) dispatch(
	ctx context.Context,
	stream, key, group, consumer string,
	msg redis.XMessage,
	handler Handler,
) {
	data, ok := msg.Values[fieldData].(string)
	if !ok || !json.Valid([]byte(data)) {
		// Poison pill: ack and drop so the group cursor moves on.
		logger.Error("message_decode_error", "stream", stream, "message_id", msg.ID)
		c.ack(ctx, key, group, msg.ID)
		return
	}

	c.checkProducerVersion(stream, msg.Values)

	msgCtx := ctx
	if tp, ok := msg.Values[fieldTrace].(string); ok {
		msgCtx = telemetry.ExtractTraceparent(ctx, tp)
	}

	if err := handler(msgCtx, msg.ID, []byte(data)); err != nil {
		logger.Error("message_handler_error",
			"stream", stream, "group", group, "message_id", msg.ID, "error", err)
	}

	c.ack(ctx, key, group, msg.ID)
	metrics.RecordMessageProcessed(stream, group)
	logger.Debug("message_processed", "stream", stream, "group", group,
		"consumer", consumer, "message_id", msg.ID)
}

// checkProducerVersion warns once per stream when a producer stamped an
// incompatible major version on its messages.
func (c *Client) checkProducerVersion(stream string, values map[string]any) {
	ver, ok := values[fieldVer].(string)
	if !ok || version.Compatible(ver) {
		return
	}

	c.mu.Lock()
	warned := c.verWarned[stream]
	c.verWarned[stream] = true
	c.mu.Unlock()

	if !warned {
		logger.Warn("producer_version_mismatch",
			"stream", stream, "producer_version", ver, "local_version", version.Get())
	}
}

func (c *Client) ack(ctx context.Context, key, group, id string) {
	if err := c.rdb.XAck(ctx, key, group, id).Err(); err != nil && ctx.Err() == nil {
		logger.Warn("message_ack_failed", "stream", key, "message_id", id, "error", err)
	}
}

// ensureGroup creates the consumer group at the start of the stream,
// creating the stream too if needed. An existing group is not an error.
func (c *Client) ensureGroup(ctx context.Context, key, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, key, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: create group %s on %s: %v", ErrBusUnavailable, group, key, err)
	}
	if err == nil {
		logger.Info("consumer_group_created", "stream", key, "group", group)
	}
	return nil
}

// sleep pauses for d or until ctx is canceled.
func (c *Client) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// HealthCheck pings the backing store.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}
