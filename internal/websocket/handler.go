package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/niramay/internal/auth"
)

// HandleWebSocket upgrades the connection and runs it as a Hub client.
// Query parameters narrow the subscription: entity may repeat
// (?entity=profile&entity=report) and ward restricts ward-scoped notices.
// The route must run behind RequireAuth; the caller's ID scopes
// user-targeted notices.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		q := r.URL.Query()
		var entities []string
		for _, e := range q["entity"] {
			if e = strings.TrimSpace(e); e != "" {
				entities = append(entities, e)
			}
		}

		client := NewClient(hub, conn, Filter{
			Entities: entities,
			Ward:     strings.TrimSpace(q.Get("ward")),
			UserID:   auth.UserID(r.Context()),
		})
		client.Run(r.Context())
	}
}
