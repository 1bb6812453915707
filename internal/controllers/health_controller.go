package controllers

import (
	"attendees/internal/providers"
	"attendees/internal/structures"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

type HealthController struct {
	sizes     providers.SizeReporter
	role      string
	startTime time.Time
}

type healthResponse struct {
	Status        string  `json:"status"`
	Role          string  `json:"role"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Records       int     `json:"records"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        "ok",
		Role:          hc.role,
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		Records:       hc.sizes.Size(),
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(conf *structures.Config, sizes providers.SizeReporter) *HealthController {
	return &HealthController{
		sizes:     sizes,
		role:      conf.Node.Role,
		startTime: time.Now(),
	}
}
