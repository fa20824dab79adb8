package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database     string   `json:"database"`
	WatchedPairs []string `json:"watchedPairs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "not configured"
	if s.DB != nil {
		dbStatus = "connected"
		if err := s.DB.Ping(r.Context()); err != nil {
			dbStatus = "disconnected"
		}
	}
	pairs := []string{}
	if s.Prices != nil {
		pairs = s.Prices.WatchedPairs()
	}

	status := "ok"
	if dbStatus == "disconnected" {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Services:  healthServices{Database: dbStatus, WatchedPairs: pairs},
	})
}
