package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"lookout/internal/auth"
	"lookout/internal/gateway"
)

// gw is the gateway instance every handler dispatches through. Set once in
// OpenRoutes before the listener starts.
var gw *gateway.Gateway

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func OpenRoutes(port int, g *gateway.Gateway) error {
	gw = g

	router := http.NewServeMux()

	router.HandleFunc("POST /register", registerUser)
	router.HandleFunc("POST /login", loginUser)
	router.Handle("GET /checkLogin", auth.RequireAuth(http.HandlerFunc(checkLogin)))
	router.Handle("POST /changePassword", auth.RequireAuth(http.HandlerFunc(changePassword)))

	router.HandleFunc("GET /ws", serveWebsocket)

	router.HandleFunc("POST /visits", trackVisit)
	router.HandleFunc("POST /visits/cookies", saveVisitCookies)
	router.Handle("GET /visits", auth.IsAdmin(http.HandlerFunc(getVisits)))
	router.Handle("GET /visits/export.csv", auth.IsAdmin(http.HandlerFunc(exportVisits)))
	router.Handle("GET /visits/by-socket/{socketId}", auth.IsAdmin(http.HandlerFunc(getVisitBySocket)))

	router.Handle("POST /visits/message", auth.IsAdmin(http.HandlerFunc(sendMessageToSocket)))
	router.Handle("POST /visits/message-by-ip", auth.IsAdmin(http.HandlerFunc(sendMessageToIP)))
	router.Handle("POST /visits/block/socket/{socketId}", auth.IsAdmin(http.HandlerFunc(blockSocket)))
	router.Handle("POST /visits/unblock/socket/{socketId}", auth.IsAdmin(http.HandlerFunc(unblockSocket)))
	router.Handle("POST /visits/block/ip/{ip}", auth.IsAdmin(http.HandlerFunc(blockIP)))
	router.Handle("POST /visits/unblock/ip/{ip}", auth.IsAdmin(http.HandlerFunc(unblockIP)))
	router.Handle("POST /visits/block-all", auth.IsAdmin(http.HandlerFunc(blockAll)))
	router.Handle("POST /visits/unblock-all", auth.IsAdmin(http.HandlerFunc(unblockAll)))
	router.Handle("POST /visits/stop-auto-block", auth.IsAdmin(http.HandlerFunc(stopAutoBlock)))

	router.Handle("GET /global/settings", auth.IsAdmin(http.HandlerFunc(getGlobalSettings)))
	router.Handle("POST /saveSettings", auth.IsAdmin(http.HandlerFunc(saveSettings)))

	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(router),
	}

	log.Infof("Starting lookout backend on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
