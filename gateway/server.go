package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/hearth/audio"
	"github.com/AltairaLabs/hearth/bus"
	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/metrics"
	"github.com/AltairaLabs/hearth/types"
	"github.com/AltairaLabs/hearth/version"
)

// maxFrameBytes caps an inbound socket frame. Whole utterances arrive
// as single binary frames, so the limit is generous.
const maxFrameBytes = 10 << 20

// streamFrame is the JSON text frame for the streaming ingest path.
// Audio is base64 on the wire; encoding/json decodes it.
type streamFrame struct {
	Type        string `json:"type"`
	Audio       []byte `json:"audio"`
	IsStreaming bool   `json:"is_streaming"`
}

// deviceMessage is the outbound JSON message pushed to the device.
type deviceMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Text      string        `json:"text"`
	UIHints   types.UIHints `json:"ui_hints"`
	Timestamp time.Time     `json:"timestamp"`
	Audio     []byte        `json:"audio,omitempty"`
}

// Server is the gateway: WebSocket ingest plus health and metrics
// endpoints, and the audio.outbound consumer that pushes responses to
// the device.
type Server struct {
	bus      *bus.Client
	deviceID string

	sessions *sessionManager
	pending  *pendingRequests
	upgrader websocket.Upgrader

	metricsHandler http.Handler
	consumer       string
}

// NewServer builds a gateway for one device. metricsHandler serves
// GET /metrics and may be nil when the exporter runs standalone.
func NewServer(b *bus.Client, deviceID string, metricsHandler http.Handler) *Server {
	return &Server{
		bus:      b,
		deviceID: deviceID,
		sessions: &sessionManager{},
		pending:  newPendingRequests(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			// The companion device is on the local network; no
			// browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		metricsHandler: metricsHandler,
		consumer:       bus.ConsumerName("gateway"),
	}
}

// Handler returns the gateway HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	return mux
}

// Run consumes audio.outbound and pushes responses to the device until
// ctx is canceled. The active socket is closed on the way out.
func (s *Server) Run(ctx context.Context) error {
	logger.Info("response_listener_started")
	err := s.bus.Consume(ctx, types.StreamAudioOutbound,
		types.GroupGateway, s.consumer, s.handleOutbound)
	s.sessions.closeAll()
	return err
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":          "hearth gateway",
		"version":          version.Get(),
		"status":           "running",
		"device_connected": s.sessions.connected(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.bus.HealthCheck(r.Context())
	metrics.SetComponentHealth("redis", healthy)

	status, redis, code := "healthy", "connected", http.StatusOK
	if !healthy {
		status, redis, code = "degraded", "disconnected", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":           status,
		"service":          "gateway",
		"redis":            redis,
		"device_connected": s.sessions.connected(),
	})
}

// handleWS owns one socket from accept to disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket_upgrade_failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	session := newDeviceSession(s.deviceID, conn)
	s.sessions.replace(session)
	metrics.SetActiveSessions(1)
	logger.Info("companion_connected",
		"device_id", session.deviceID, "session_id", session.sessionID)

	defer func() {
		s.sessions.remove(session)
		session.close()
		if !s.sessions.connected() {
			metrics.SetActiveSessions(0)
		}
		logger.Info("companion_disconnected", "device_id", session.deviceID)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket_error", "device_id", session.deviceID, "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.routeUtterance(r.Context(), session, data)
		case websocket.TextMessage:
			s.routeStreamFrame(r.Context(), session, data)
		}
	}
}

// routeUtterance handles the whole-utterance path: the client already
// segmented, so the chunk bypasses boundary detection and the request
// clock starts now.
func (s *Server) routeUtterance(ctx context.Context, session *deviceSession, pcm []byte) {
	s.pending.start(session.sessionID)
	s.publishChunk(ctx, session, pcm, false)
}

// routeStreamFrame handles the streaming path: server-side VAD decides
// the utterance boundary, so no latency entry is recorded here.
func (s *Server) routeStreamFrame(ctx context.Context, session *deviceSession, data []byte) {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("bad_text_frame", "session_id", session.sessionID, "error", err)
		return
	}
	if frame.Type != "audio_stream" {
		logger.Warn("unknown_frame_type", "session_id", session.sessionID, "type", frame.Type)
		return
	}
	s.publishChunk(ctx, session, frame.Audio, true)
}

func (s *Server) publishChunk(ctx context.Context, session *deviceSession, pcm []byte, streaming bool) {
	chunk := types.AudioChunk{
		DeviceID:    session.deviceID,
		SessionID:   session.sessionID,
		Sequence:    session.nextSequence(),
		CapturedAt:  time.Now().UTC(),
		PCM:         pcm,
		DurationMS:  audio.DurationMS(pcm),
		IsStreaming: streaming,
	}

	id, err := s.bus.Publish(ctx, types.StreamAudioInbound, chunk)
	if err != nil {
		logger.Error("audio_publish_failed", "session_id", session.sessionID, "error", err)
		return
	}
	logger.Debug("audio_routed",
		"session_id", session.sessionID,
		"duration_ms", chunk.DurationMS,
		"streaming", streaming,
		"message_id", id)
}

// handleOutbound pushes one synthesized response to the device and
// settles latency accounting.
func (s *Server) handleOutbound(_ context.Context, _ string, data []byte) error {
	var result types.TTSResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode tts result: %w", err)
	}

	if start, ok := s.pending.take(result.SessionID); ok {
		latency := float64(time.Since(start).Milliseconds())
		metrics.RecordPipelineLatency(result.DeviceID, latency)
		logger.Info("pipeline_complete",
			"session_id", result.SessionID, "latency_ms", latency)
	}

	session := s.sessions.current()
	if session == nil {
		logger.Warn("response_send_failed", "reason", "device_not_connected")
		return nil
	}

	msg := deviceMessage{
		Type:      "response",
		SessionID: result.SessionID,
		Text:      result.Text,
		UIHints:   result.UIHints,
		Timestamp: time.Now().UTC(),
		Audio:     result.WAV,
	}
	if err := session.writeJSON(msg); err != nil {
		logger.Warn("response_send_failed", "reason", "write_error", "error", err)
		return nil
	}

	logger.Debug("response_sent",
		"session_id", result.SessionID,
		"text_length", len(result.Text),
		"has_audio", len(result.WAV) > 0)
	return nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
