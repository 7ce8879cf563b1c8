package sync

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades to a websocket session. Only the listed origins may
// connect; an empty list allows any.
func WSHandler(hub *Hub, origins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		write := func(b []byte) error {
			return ws.WriteMessage(websocket.TextMessage, b)
		}
		sess := hub.Open(TransportWS, write, ws.Close)
		defer hub.Close(sess)

		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				break
			}
			hub.Handle(c.Request.Context(), sess, payload)
		}
	}
}
