package server

import (
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"lookout/internal/config"
	"lookout/internal/gateway"
	"lookout/internal/support"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkWebsocketOrigin,
}

func checkWebsocketOrigin(r *http.Request) bool {
	allowed := config.GetConfig().Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}
	return false
}

// siteIDFromRequest resolves which site a connection belongs to. An explicit
// siteId query parameter wins, then the Origin host, then the Referer host,
// then the configured default.
func siteIDFromRequest(r *http.Request) string {
	if siteID := r.URL.Query().Get("siteId"); siteID != "" {
		return siteID
	}
	for _, header := range []string{"Origin", "Referer"} {
		if raw := r.Header.Get(header); raw != "" {
			if parsed, err := url.Parse(raw); err == nil && parsed.Hostname() != "" {
				return parsed.Hostname()
			}
		}
	}
	return config.GetConfig().Gateway.DefaultSiteID
}

func serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	ip := support.ClientIP(r)
	siteID := siteIDFromRequest(r)
	client := gateway.NewClient(gateway.NewConnectionID(), ws, gw)

	gw.HandleConnect(r.Context(), client, ip, siteID)

	go client.WritePump()
	go client.ReadPump()
}
