package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wicaksono/opsagent/pkg/agent"
	"github.com/wicaksono/opsagent/pkg/alerts"
	"github.com/wicaksono/opsagent/pkg/llm"
	"github.com/wicaksono/opsagent/pkg/workflow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to the LAN; the dashboard is served from
	// another origin on the same network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", d.handleWebSocket)
	mux.HandleFunc("GET /healthz", d.handleHealth)

	mux.HandleFunc("POST /api/chat", d.handleChat)

	mux.HandleFunc("GET /api/actions/pending", d.handlePending)
	mux.HandleFunc("POST /api/actions/{id}/confirm", d.handleConfirm)
	mux.HandleFunc("POST /api/actions/{id}/reject", d.handleReject)
	mux.HandleFunc("GET /api/audit", d.handleAudit)

	mux.HandleFunc("GET /api/schedules", d.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", d.handleCreateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", d.handleCancelSchedule)

	mux.HandleFunc("POST /api/alerts", d.handleInjectAlert)

	return mux
}

// subscribeMessage is the wrapped form of the subscription control
// frame. Subscribers may also send the filter object bare:
// {"severity":[...], "alert_types":[...], "source_ids":[...]}.
type subscribeMessage struct {
	Action  string        `json:"action"`
	Filters alerts.Filter `json:"filters"`
}

// handleWebSocket upgrades the connection, registers it on the alert
// hub with the default filter, and reads subscription control messages
// until the peer goes away.
func (d *Daemon) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := d.hub.Register(conn)
	defer func() {
		d.hub.Unregister(client.ID)
		conn.Close()
	}()

	d.logger.Info().Str("client_id", client.ID).Str("remote", r.RemoteAddr).Msg("Alert subscriber connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			d.logger.Debug().Str("client_id", client.ID).Err(err).Msg("Alert subscriber disconnected")
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			d.logger.Debug().Str("client_id", client.ID).Msg("Ignoring malformed control message")
			continue
		}

		switch msg.Action {
		case "subscribe":
			d.hub.Subscribe(client.ID, msg.Filters)
		case "":
			// Bare filter object without the wrapper
			var filter alerts.Filter
			if err := json.Unmarshal(data, &filter); err == nil {
				d.hub.Subscribe(client.ID, filter)
			}
		}
	}
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":      "ok",
		"uptime":      d.Uptime().String(),
		"subscribers": d.hub.Count(),
	}
	if err := d.llmClient.HealthCheck(r.Context()); err != nil {
		status["status"] = "degraded"
		status["llm_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

type chatRequest struct {
	Prompt  string        `json:"prompt"`
	History []llm.Message `json:"history,omitempty"`
	Actor   string        `json:"actor,omitempty"`
}

func (d *Daemon) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result, err := d.runner.Run(r.Context(), agent.RunParams{
		Prompt:       req.Prompt,
		History:      req.History,
		SystemPrompt: d.config.Agent.SystemPrompt,
		Actor:        actorOf(req.Actor),
	})
	if err != nil {
		if errors.Is(err, agent.ErrLoopExceeded) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		d.logger.Error().Err(err).Msg("Chat turn failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (d *Daemon) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": d.engine.ListPending(),
	})
}

type decisionRequest struct {
	Actor string `json:"actor,omitempty"`
}

func (d *Daemon) handleConfirm(w http.ResponseWriter, r *http.Request) {
	d.handleDecision(w, r, d.engine.Confirm)
}

func (d *Daemon) handleReject(w http.ResponseWriter, r *http.Request) {
	d.handleDecision(w, r, d.engine.Reject)
}

func (d *Daemon) handleDecision(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, id, actor string) (*workflow.Request, error)) {
	id := r.PathValue("id")

	var req decisionRequest
	// Body is optional for decisions
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := decide(r.Context(), id, actorOf(req.Actor))
	if err != nil {
		var stateErr *workflow.InvalidStateError
		switch {
		case errors.Is(err, workflow.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &stateErr):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (d *Daemon) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := d.audit.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit": records})
}

type scheduleRequest struct {
	Action     string                 `json:"action"`
	Arguments  map[string]interface{} `json:"arguments,omitempty"`
	RunAt      time.Time              `json:"run_at"`
	Recurrence workflow.Recurrence    `json:"recurrence,omitempty"`
	Actor      string                 `json:"actor,omitempty"`
}

func (d *Daemon) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scheduled, err := d.scheduler.Schedule(r.Context(), req.Action, req.Arguments, req.RunAt, req.Recurrence, actorOf(req.Actor))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, scheduled)
}

func (d *Daemon) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": d.scheduler.List(),
	})
}

func (d *Daemon) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	scheduled, err := d.scheduler.Cancel(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheduled)
}

// handleInjectAlert lets monitoring collaborators push alerts into the
// fan-out hub over plain HTTP.
func (d *Daemon) handleInjectAlert(w http.ResponseWriter, r *http.Request) {
	var evt alerts.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if evt.Severity == "" {
		writeError(w, http.StatusBadRequest, "severity is required")
		return
	}

	d.hub.Broadcast(evt)
	w.WriteHeader(http.StatusAccepted)
}

func actorOf(actor string) string {
	if actor == "" {
		return "dashboard"
	}
	return actor
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
