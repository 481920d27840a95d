// Package atalknet tunnels raw LocalTalk (LLAP) frames over a WebSocket
// connection, one frame per message, so a LocalTalk segment can be bridged
// between two emulator instances (or an emulator and a capture tool) across
// a network that doesn't carry raw link-layer frames.
package atalknet

import (
	"log"

	"golang.org/x/net/websocket"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
	"github.com/pappadf/granny-smith-sub003/atalk/llap"
	"github.com/pappadf/granny-smith-sub003/gslog"
)

// Bridge relays LLAP frames received over a WebSocket connection through
// router, sending back whatever frames Dispatch produces.
type Bridge struct {
	Router *ddp.Router
	logger *log.Logger
}

// NewBridge creates a Bridge dispatching through router.
func NewBridge(router *ddp.Router) *Bridge {
	return &Bridge{Router: router, logger: gslog.New("atalknet")}
}

// Handler returns an http.Handler (via websocket.Handler) that serves one
// bridged LocalTalk connection per WebSocket upgrade.
func (b *Bridge) Handler() websocket.Handler {
	return func(ws *websocket.Conn) {
		defer ws.Close()
		for {
			var buf []byte
			if err := websocket.Message.Receive(ws, &buf); err != nil {
				return
			}
			f, err := llap.Parse(buf)
			if err != nil {
				b.logger.Printf("parsing frame: %v", err)
				continue
			}
			out, err := llap.Dispatch(f, b.Router)
			if err != nil {
				b.logger.Printf("dispatching frame: %v", err)
				continue
			}
			for _, reply := range out {
				if err := websocket.Message.Send(ws, reply.Bytes()); err != nil {
					return
				}
			}
		}
	}
}

// Dial connects to a remote atalknet bridge at url and returns the
// WebSocket connection; frames are sent on it with SendFrame and received
// with RecvFrame, and the caller closes it when done.
func Dial(url, origin string) (conn *websocket.Conn, err error) {
	return websocket.Dial(url, "", origin)
}

// SendFrame encodes and sends one LLAP frame over conn.
func SendFrame(conn *websocket.Conn, f llap.Frame) error {
	return websocket.Message.Send(conn, f.Bytes())
}

// RecvFrame blocks for the next LLAP frame from conn.
func RecvFrame(conn *websocket.Conn) (llap.Frame, error) {
	var buf []byte
	if err := websocket.Message.Receive(conn, &buf); err != nil {
		return llap.Frame{}, err
	}
	return llap.Parse(buf)
}
