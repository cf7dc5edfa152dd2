package websocket

import (
	"encoding/json"

	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
)

// ClientMessage is a command sent by an observer, e.g.
// {"event":"TURN_ON_MACHINE"}.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HubStatus is reported by the REST status endpoint.
type HubStatus struct {
	Clients    int  `json:"clients"`
	Running    bool `json:"running"`
	Replayable int  `json:"replayable_events"`
}

type reply struct {
	client *Client
	data   []byte
}

func encode(e events.Event) ([]byte, error) {
	return json.Marshal(e)
}

func errorMessage(message string) events.Event {
	return events.New(events.Error, message)
}
