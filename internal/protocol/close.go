package protocol

import "github.com/goccy/go-json"

// CloseReason travels in the websocket close frame.
type CloseReason string

const (
	// Finished: the room or the server is gone.
	CloseFinished CloseReason = "Finished"
	// Reconnected: a newer connection of the same member took over.
	CloseReconnected CloseReason = "Reconnected"
	CloseIdle        CloseReason = "Idle"
	CloseRejected    CloseReason = "Rejected"
	CloseInternal    CloseReason = "InternalError"
	CloseEvicted     CloseReason = "Evicted"
)

// Reconnectable reports whether a client should try to resume after this
// close.
func (r CloseReason) Reconnectable() bool {
	return r == CloseIdle || r == CloseInternal
}

type CloseDescription struct {
	Reason CloseReason `json:"reason"`
}

func EncodeClose(r CloseReason) string {
	b, err := json.Marshal(CloseDescription{Reason: r})
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodeClose returns false when the text is not a close description.
func DecodeClose(text string) (CloseReason, bool) {
	var d CloseDescription
	if text == "" || json.Unmarshal([]byte(text), &d) != nil || d.Reason == "" {
		return "", false
	}
	return d.Reason, true
}
