package server

import (
	"encoding/json"
	"net/http"

	"lookout/internal/config"
)

func getGlobalSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	config.SetConfig(newConfig)
	w.WriteHeader(http.StatusOK)
}
