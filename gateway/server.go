// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// wsConn adapts a coder/websocket connection to the Conn interface.
type wsConn struct {
	c   *websocket.Conn
	ctx context.Context
}

func (w *wsConn) Send(payload []byte) error {
	ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()
	return w.c.Write(ctx, websocket.MessageBinary, payload)
}

func (w *wsConn) Recv() ([]byte, error) {
	_, data, err := w.c.Read(w.ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

// Register installs the client-facing WebSocket endpoint at path on mux,
// serving every accepted connection with handler.
func Register(mux *http.ServeMux, path string, handler *Handler) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Error("gateway: websocket accept failed", "error", err)
			return
		}
		conn := &wsConn{c: c, ctx: r.Context()}
		defer conn.Close()
		handler.Serve(conn)
	})
}
