// Package wire defines the JSON frames exchanged between the demo hub
// server and the websocket channel transport.
package wire

import "encoding/json"

const (
	ActionAttach   = "attach"
	ActionAttached = "attached"
	ActionDetach   = "detach"
	ActionDetached = "detached"
	ActionPublish  = "publish"
	ActionEvent    = "event"
	ActionError    = "error"
)

// Frame is the single envelope for every message on the wire. ID correlates
// a request with its acknowledgement.
type Frame struct {
	Action  string          `json:"action"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Resumed bool            `json:"resumed,omitempty"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
