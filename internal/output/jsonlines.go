package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
)

// Record is one line written by JSONLines
type Record struct {
	Time      time.Time      `json:"time"`
	SessionID string         `json:"session_id,omitempty"`
	Type      string         `json:"type"`
	Data      protocol.Event `json:"data"`
}

// JSONLines writes each event as a JSON object on its own line
type JSONLines struct {
	mu        sync.Mutex
	enc       *json.Encoder
	sessionID string
	now       func() time.Time
	err       error
}

// NewJSONLines creates a JSON lines sink. sessionID is copied into every record.
func NewJSONLines(w io.Writer, sessionID string) *JSONLines {
	return &JSONLines{
		enc:       json.NewEncoder(w),
		sessionID: sessionID,
		now:       time.Now,
	}
}

// Deliver writes one record. The first write error is kept and later
// events are discarded.
func (j *JSONLines) Deliver(event protocol.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.err != nil {
		return
	}

	j.err = j.enc.Encode(Record{
		Time:      j.now().UTC(),
		SessionID: j.sessionID,
		Type:      event.Type(),
		Data:      event,
	})
}

// Err returns the first write error
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
