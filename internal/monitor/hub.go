// Package monitor exposes the rover to dashboards: a websocket telemetry broadcast,
// a small JSON API over the live state and the mission journal, and an optional
// MQTT mirror of the telemetry stream.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"RoverDrive/internal/comms"
	"RoverDrive/internal/model"
	"RoverDrive/internal/util"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Status is the /api/status document.
type Status struct {
	VehicleID string              `json:"vehicle_id"`
	Telemetry model.Telemetry     `json:"telemetry"`
	Route     []model.Destination `json:"route"`
	Stopped   bool                `json:"stopped"`
	Link      *comms.Stats        `json:"link,omitempty"`
}

// ScanSource serves journaled scan reports.
type ScanSource interface {
	ScanReports(limit int) ([]model.ScanReport, error)
}

// Controls accepts operator commands posted to the API.
type Controls interface {
	SetCommand(cmd model.DriveCommand)
	ApplyGoal(g model.AutoGoal)
}

// Hub serves the monitor HTTP API and broadcasts telemetry to websocket clients.
type Hub struct {
	Addr     string
	status   func() Status
	scans    ScanSource
	controls Controls

	// OnGoal, when set, is called for every destination update accepted over the API.
	OnGoal func(model.AutoGoal)

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	server  *http.Server
}

// NewHub builds a hub. scans and controls may be nil, which disables their endpoints.
func NewHub(addr string, status func() Status, scans ScanSource, controls Controls) *Hub {
	h := &Hub{
		Addr:     addr,
		status:   status,
		scans:    scans,
		controls: controls,
		clients:  map[*websocket.Conn]bool{},
	}
	h.server = &http.Server{Addr: addr, Handler: h.Handler()}
	return h
}

// Handler returns the hub's routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/scans", h.handleScans)
	mux.HandleFunc("/api/drive", h.handleDrive)
	mux.HandleFunc("/api/goal", h.handleGoal)
	return mux
}

// Start listens on Addr. It blocks until Stop or a listener failure, and returns
// at once when Stop already ran.
func (h *Hub) Start() error {
	util.Info("[monitor] listening on %s", h.Addr)
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down and drops every websocket client.
func (h *Hub) Stop() {
	h.mu.Lock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		util.Warn("[monitor] shutdown: %v", err)
	}
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends t as JSON to every websocket client. Clients that fail to
// keep up are dropped.
func (h *Hub) Broadcast(t model.Telemetry) {
	msg, err := json.Marshal(t)
	if err != nil {
		util.Error("[monitor] encode telemetry: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			util.Warn("[monitor] drop client %s: %v", c.RemoteAddr(), err)
			_ = c.Close()
			delete(h.clients, c)
		}
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.status())
}

func (h *Hub) handleScans(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	reports, err := h.scans.ScanReports(limit)
	if err != nil {
		http.Error(w, "failed to read scans", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []model.ScanReport{}
	}
	writeJSON(w, reports)
}

// handleDrive accepts a DriveCommand posted by a dashboard.
func (h *Hub) handleDrive(w http.ResponseWriter, r *http.Request) {
	var cmd model.DriveCommand
	if !h.decodeControl(w, r, &cmd) {
		return
	}
	h.controls.SetCommand(cmd)
	w.WriteHeader(http.StatusAccepted)
}

// handleGoal accepts an AutoGoal posted by a dashboard.
func (h *Hub) handleGoal(w http.ResponseWriter, r *http.Request) {
	var g model.AutoGoal
	if !h.decodeControl(w, r, &g) {
		return
	}
	h.controls.ApplyGoal(g)
	if h.OnGoal != nil {
		h.OnGoal(g)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Hub) decodeControl(w http.ResponseWriter, r *http.Request, v any) bool {
	if h.controls == nil {
		http.Error(w, "control disabled", http.StatusNotFound)
		return false
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Warn("[monitor] failed to write response: %v", err)
	}
}
