package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/google/uuid"
)

// Entry is one journaled machine event.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"` // JSONB
	RecordedAt time.Time       `json:"recorded_at"`
}

func NewEntry(e events.Event) (Entry, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s payload: %w", e.Name, err)
	}

	recordedAt := e.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	return Entry{
		ID:         uuid.New(),
		Event:      string(e.Name),
		Payload:    payload,
		RecordedAt: recordedAt,
	}, nil
}
