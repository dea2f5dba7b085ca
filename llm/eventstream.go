package llm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

const bedrockExceptionType = "exception"

// bedrockEventScanner decodes AWS binary event-stream frames from the
// invoke-with-response-stream endpoint. Each frame's payload is JSON
// like {"bytes":"<base64>"} where the decoded bytes are a standard
// Anthropic messages-API event, identical to the direct API's SSE
// data: payloads.
type bedrockEventScanner struct {
	decoder *eventstream.Decoder
	reader  io.Reader
	buf     []byte
	data    string
	err     error
}

// bedrockFramePayload is the JSON payload inside each binary frame.
type bedrockFramePayload struct {
	Bytes string `json:"bytes"`
}

func newBedrockEventScanner(r io.Reader) *bedrockEventScanner {
	return &bedrockEventScanner{
		decoder: eventstream.NewDecoder(),
		reader:  r,
		buf:     make([]byte, 0, 4096),
	}
}

// Scan reads frames until a data event decodes, returning false on EOF
// or error.
func (s *bedrockEventScanner) Scan() bool {
	for {
		msg, err := s.decoder.Decode(s.reader, s.buf)
		if err != nil {
			if err != io.EOF {
				s.err = fmt.Errorf("decode event-stream frame: %w", err)
			}
			return false
		}

		if s.isException(msg) {
			s.err = fmt.Errorf("bedrock stream exception: %s", string(msg.Payload))
			return false
		}

		data, ok := s.decodePayload(msg)
		if !ok {
			continue
		}
		s.data = data
		return true
	}
}

func (s *bedrockEventScanner) isException(msg eventstream.Message) bool {
	for _, header := range []string{":event-type", ":message-type"} {
		if val := msg.Headers.Get(header); val != nil {
			if str, ok := val.(eventstream.StringValue); ok && string(str) == bedrockExceptionType {
				return true
			}
		}
	}
	return false
}

func (s *bedrockEventScanner) decodePayload(msg eventstream.Message) (string, bool) {
	var payload bedrockFramePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return "", false
	}
	if payload.Bytes == "" {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.Bytes)
	if err != nil {
		s.err = fmt.Errorf("decode base64 payload: %w", err)
		return "", false
	}
	return string(decoded), true
}

// Data returns the decoded event from the last scanned frame.
func (s *bedrockEventScanner) Data() string {
	return s.data
}

// Err returns any error encountered during scanning.
func (s *bedrockEventScanner) Err() error {
	return s.err
}
