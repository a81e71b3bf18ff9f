package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"lookout/internal/api/dto"
	"lookout/internal/config"
	"lookout/internal/database"
	"lookout/internal/domain"
	"lookout/internal/support"
)

func trackVisit(w http.ResponseWriter, r *http.Request) {
	var body dto.TrackVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ip := support.ClientIP(r)
	visit, err := database.TrackVisit(r.Context(), ip, body)
	if err != nil {
		log.Error("Failed to track visit", "ip", ip, "error", err)
		writeError(w, "Failed to track visit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, visit)
}

func saveVisitCookies(w http.ResponseWriter, r *http.Request) {
	var body dto.SaveCookiesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if body.SocketID == "" {
		writeError(w, "socketId is required", http.StatusBadRequest)
		return
	}

	updated, err := database.SaveCookies(r.Context(), body.SocketID, body.Cookies)
	if err != nil {
		writeError(w, "Failed to save cookies", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func parseVisitQuery(r *http.Request) (dto.VisitQuery, error) {
	values := r.URL.Query()
	query := dto.VisitQuery{
		Q:  values.Get("q"),
		IP: values.Get("ip"),
	}

	for raw, target := range map[string]**time.Time{
		"from": &query.From,
		"to":   &query.To,
	} {
		value := values.Get(raw)
		if value == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return query, fmt.Errorf("invalid %s: %w", raw, err)
		}
		*target = &parsed
	}

	if raw := values.Get("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, fmt.Errorf("invalid cursor: %w", err)
		}
		cursor := dto.VisitCursor{LastVisit: parsed}
		if rawID := values.Get("cursorId"); rawID != "" {
			id, err := strconv.ParseUint(rawID, 10, 64)
			if err != nil {
				return query, fmt.Errorf("invalid cursorId")
			}
			cursor.ID = id
		}
		query.Cursor = &cursor
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, fmt.Errorf("invalid limit")
		}
		query.Limit = limit
	}

	return query, nil
}

func getVisits(w http.ResponseWriter, r *http.Request) {
	query, err := parseVisitQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if cap := config.GetConfig().Visits.PageSizeLimit; cap > 0 && query.Limit > cap {
		query.Limit = cap
	}

	visits, nextCursor, err := database.ListVisits(r.Context(), query)
	if err != nil {
		writeError(w, "Failed to query visits", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{"visits": visits}
	if nextCursor != nil {
		response["nextCursor"] = nextCursor.LastVisit.Format(time.RFC3339Nano)
		response["nextCursorId"] = nextCursor.ID
	}
	writeJSON(w, http.StatusOK, response)
}

func getVisitBySocket(w http.ResponseWriter, r *http.Request) {
	socketID := r.PathValue("socketId")
	visit, err := database.GetVisitBySocketID(r.Context(), socketID)
	if err != nil {
		writeError(w, "Failed to query visit", http.StatusInternalServerError)
		return
	}
	if visit == nil {
		writeError(w, "Visit not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

var visitExportHeader = []string{
	"ip", "lastVisit", "visitsCount", "isBlocked", "userAgent", "lang",
	"timezone", "screen", "platform", "referrer", "memory", "cores",
	"online", "secure", "connectionType", "maxTouchPoints", "cookieEnabled",
	"socketId", "pageId", "createdAt", "updatedAt",
}

func visitExportRow(v domain.Visit) []string {
	boolField := func(b *bool) string {
		if b == nil {
			return ""
		}
		return strconv.FormatBool(*b)
	}
	return []string{
		v.IP,
		v.LastVisit.Format(time.RFC3339),
		strconv.FormatUint(uint64(v.VisitsCount), 10),
		strconv.FormatBool(v.IsBlocked),
		v.UserAgent,
		v.Lang,
		v.Timezone,
		v.Screen,
		v.Platform,
		v.Referrer,
		strconv.FormatFloat(v.Memory, 'f', -1, 64),
		strconv.FormatUint(uint64(v.Cores), 10),
		boolField(v.Online),
		boolField(v.Secure),
		v.ConnectionType,
		strconv.FormatUint(uint64(v.MaxTouchPoints), 10),
		boolField(v.CookieEnabled),
		v.SocketID,
		v.PageID,
		v.CreatedAt.Format(time.RFC3339),
		v.UpdatedAt.Format(time.RFC3339),
	}
}

func exportVisits(w http.ResponseWriter, r *http.Request) {
	query, err := parseVisitQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	query.Limit = config.GetConfig().Visits.ExportLimit

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="visits.csv"`)

	writer := csv.NewWriter(w)
	if err := writer.Write(visitExportHeader); err != nil {
		return
	}

	// Walk the cursor until the store runs dry or the export cap is hit.
	remaining := query.Limit
	for remaining > 0 {
		page := query
		page.Limit = remaining
		visits, nextCursor, err := database.ListVisits(r.Context(), page)
		if err != nil {
			log.Error("Visit export aborted", "error", err)
			return
		}
		for _, visit := range visits {
			if err := writer.Write(visitExportRow(visit)); err != nil {
				return
			}
		}
		remaining -= len(visits)
		if nextCursor == nil {
			break
		}
		query.Cursor = nextCursor
	}
	writer.Flush()
}

func stopAutoBlock(w http.ResponseWriter, r *http.Request) {
	var body dto.StopAutoBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	switch {
	case body.SocketID != "":
		gw.StopAutoBlock(body.SocketID)
		writeJSON(w, http.StatusOK, map[string]int{"cancelled": 1})
	case body.IP != "":
		cancelled := gw.StopAutoBlockIP(support.NormalizeIP(body.IP))
		writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
	default:
		writeError(w, "socketId or ip is required", http.StatusBadRequest)
	}
}
