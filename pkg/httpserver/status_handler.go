package httpserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// statusProvider is the subset of Discovery the status
// handler needs to report process state. Kept as a narrow interface so
// the handler doesn't couple httpserver to discovery's concrete type.
type statusProvider interface {
	TrackedTickers() []string
}

// riskAdmin is the subset of *risk.Guard the admin handler needs.
type riskAdmin interface {
	KillSwitchEngagedNow() bool
	ResetKillSwitch()
}

// StatusHandler reports process state (tracked tickers, kill switch)
// and exposes the one operator action this process cannot otherwise
// reach from a separate CLI invocation: clearing the in-process risk
// kill switch latch.
type StatusHandler struct {
	discovery statusProvider
	guard     riskAdmin
	logger    *zap.Logger
}

// NewStatusHandler creates a new status/admin handler. discovery or
// guard may be nil; the corresponding response fields read as zero
// values.
func NewStatusHandler(discovery statusProvider, guard riskAdmin, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{discovery: discovery, guard: guard, logger: logger}
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	TrackedCount      int      `json:"tracked_count"`
	TrackedTickers    []string `json:"tracked_tickers"`
	KillSwitchEngaged bool     `json:"kill_switch_engaged"`
}

// ErrorResponse is a JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleStatus handles GET /api/status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{}
	if h.discovery != nil {
		resp.TrackedTickers = h.discovery.TrackedTickers()
		resp.TrackedCount = len(resp.TrackedTickers)
	}
	if h.guard != nil {
		resp.KillSwitchEngaged = h.guard.KillSwitchEngagedNow()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ResetKillSwitchResponse is the POST /api/risk/reset-kill-switch
// payload.
type ResetKillSwitchResponse struct {
	KillSwitchEngaged bool `json:"kill_switch_engaged"`
}

// HandleResetKillSwitch handles POST /api/risk/reset-kill-switch. The
// kill switch is in-process atomic state; a separate CLI invocation
// has no other way to clear it than asking the running bot over HTTP.
func (h *StatusHandler) HandleResetKillSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.guard == nil {
		h.writeError(w, "risk guard not wired", http.StatusServiceUnavailable)
		return
	}

	h.guard.ResetKillSwitch()
	h.writeJSON(w, http.StatusOK, ResetKillSwitchResponse{KillSwitchEngaged: h.guard.KillSwitchEngagedNow()})
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *StatusHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
