package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"lookout/internal/api/dto"
	"lookout/internal/config"
	"lookout/internal/database"
	"lookout/internal/gateway"
	"lookout/internal/support"
)

func sendMessageToSocket(w http.ResponseWriter, r *http.Request) {
	var body dto.SendMessageBySocketRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if body.SocketID == "" {
		writeError(w, "socketId is required", http.StatusBadRequest)
		return
	}

	msg, err := gateway.ParseMessage(body.Type, body.Message)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := gw.NotifyConnection(r.Context(), body.SocketID, msg); err != nil {
		if errors.Is(err, gateway.ErrPersistFailed) {
			writeError(w, "Failed to persist block state", http.StatusInternalServerError)
			return
		}
		writeError(w, "Failed to deliver message", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func sendMessageToIP(w http.ResponseWriter, r *http.Request) {
	var body dto.SendMessageByIPRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if body.IP == "" {
		writeError(w, "ip is required", http.StatusBadRequest)
		return
	}

	msg, err := gateway.ParseMessage(body.Type, body.Message)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	siteID := body.SiteID
	if siteID == "" {
		siteID = config.GetConfig().Gateway.DefaultSiteID
	}

	delivered, err := gw.NotifyIP(r.Context(), siteID, support.NormalizeIP(body.IP), msg)
	if err != nil {
		if errors.Is(err, gateway.ErrPersistFailed) {
			writeError(w, "Failed to persist block state", http.StatusInternalServerError)
			return
		}
		writeError(w, "Failed to deliver message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

func blockSocket(w http.ResponseWriter, r *http.Request) {
	setSocketBlockState(w, r, true)
}

func unblockSocket(w http.ResponseWriter, r *http.Request) {
	setSocketBlockState(w, r, false)
}

func setSocketBlockState(w http.ResponseWriter, r *http.Request, blocked bool) {
	socketID := r.PathValue("socketId")
	var err error
	if blocked {
		err = gw.BlockConnection(r.Context(), socketID)
	} else {
		err = gw.UnblockConnection(r.Context(), socketID)
	}
	if err != nil {
		log.Error("Failed to change block state", "socketId", socketID, "blocked", blocked, "error", err)
		writeError(w, "Failed to persist block state", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func blockIP(w http.ResponseWriter, r *http.Request) {
	setIPBlockState(w, r, true)
}

func unblockIP(w http.ResponseWriter, r *http.Request) {
	setIPBlockState(w, r, false)
}

func setIPBlockState(w http.ResponseWriter, r *http.Request, blocked bool) {
	ip := support.NormalizeIP(r.PathValue("ip"))
	var (
		update gateway.BlockUpdate
		err    error
	)
	if blocked {
		update, err = gw.BlockIP(r.Context(), ip)
	} else {
		update, err = gw.UnblockIP(r.Context(), ip)
	}
	if err != nil {
		log.Error("Failed to change block state", "ip", ip, "blocked", blocked, "error", err)
		writeError(w, "Failed to persist block state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.BlockResult{Matched: update.Matched, Modified: update.Modified})
}

func blockAll(w http.ResponseWriter, r *http.Request) {
	setAllBlockState(w, r, true)
}

func unblockAll(w http.ResponseWriter, r *http.Request) {
	setAllBlockState(w, r, false)
}

func setAllBlockState(w http.ResponseWriter, r *http.Request, blocked bool) {
	result, err := database.SetBlockStateAll(r.Context(), blocked)
	if err != nil {
		writeError(w, "Failed to persist block state", http.StatusInternalServerError)
		return
	}
	log.Info("Bulk block state change", "blocked", blocked, "matched", result.Matched, "modified", result.Modified)
	writeJSON(w, http.StatusOK, result)
}
