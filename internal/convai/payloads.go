package convai

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

type toolCallPayload struct {
	ConversationID string          `json:"conversation_id"`
	Tool           string          `json:"tool"`
	ToolName       string          `json:"tool_name"`
	Parameters     json.RawMessage `json:"parameters"`
}

func (p toolCallPayload) name() string {
	if p.Tool != "" {
		return p.Tool
	}
	return p.ToolName
}

type startedPayload struct {
	ConversationID string `json:"conversation_id"`
	CallID         string `json:"call_id"`
}

type turnPayload struct {
	ConversationID string `json:"conversation_id"`
	Speaker        string `json:"speaker"`
	Message        string `json:"message"`
	TurnNumber     int    `json:"turn_number"`
}

type endedPayload struct {
	ConversationID  string  `json:"conversation_id"`
	DurationSeconds seconds `json:"duration_seconds"`
	RecordingURL    string  `json:"recording_url"`
	TranscriptURL   string  `json:"transcript_url"`
	Summary         string  `json:"summary"`
}

// maxDurationSeconds caps one reported call duration (7 days).
const maxDurationSeconds = 7 * 24 * 60 * 60

// seconds accepts an integer, a float or a numeric string. Fractions round up
// so a started second, and so a started minute, is always billed.
type seconds int

func (s *seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	if raw == "" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return err
	}
	switch {
	case f < 0 || math.IsNaN(f):
		f = 0
	case f > maxDurationSeconds:
		f = maxDurationSeconds
	}
	*s = seconds(math.Ceil(f))
	return nil
}
