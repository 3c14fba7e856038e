package signal

import (
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/gorilla/websocket"
)

// closeMessage builds the close frame payload. The reason travels as JSON in
// the close text.
func closeMessage(reason protocol.CloseReason) []byte {
	code := websocket.CloseNormalClosure
	if reason == protocol.CloseInternal {
		code = websocket.CloseInternalServerErr
	}
	return websocket.FormatCloseMessage(code, protocol.EncodeClose(reason))
}

// cleanClose reports whether the client ended the session on purpose.
func cleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
