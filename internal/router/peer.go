package router

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cardlink/cardlink/internal/wire"
)

// wsPeer wraps a server-side websocket connection with a write mutex.
// gorilla/websocket does not support concurrent writes.
type wsPeer struct {
	conn      *websocket.Conn
	wmu       sync.Mutex
	closeOnce sync.Once
}

func (p *wsPeer) sendFrame(f *wire.Frame) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.conn.WriteJSON(f)
}

// sendError best-effort delivers an error frame before the caller closes the
// connection.
func (p *wsPeer) sendError(code wire.ErrorCode, message string) {
	_ = p.sendFrame(wire.MustFrame(wire.FrameError, wire.FrameErrorBody{
		Code:    code,
		Message: message,
	}))
}

// close shuts the socket down. Safe to call from multiple goroutines; the
// read loop observes the closure and runs its cleanup path.
func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		p.wmu.Lock()
		p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		p.wmu.Unlock()
		p.conn.Close()
	})
}
