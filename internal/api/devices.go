package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/session"
)

// Request bodies for the command endpoints.
type (
	powerRequest struct {
		On bool `json:"on"`
	}
	setpointRequest struct {
		Setpoint *float64 `json:"setpoint"`
	}
	timerRequest struct {
		Action  string `json:"action"` // start, stop or set
		Seconds int64  `json:"seconds"`
	}
	unitsRequest struct {
		Unit string `json:"unit"`
	}
)

// handleListDevices returns the devices known to the session.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.controller.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDeviceState returns the current snapshot of one device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Snapshot(deviceID(r))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetDeviceState applies an arbitrary settable delta. Unknown or
// read-only keys are dropped.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if !decodeBody(w, r, &body) {
		return
	}
	delta, err := device.DeltaFromMap(body)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	s.runCommand(w, r, func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
		return c.SetState(ctx, delta)
	})
}

// handleListen subscribes the session to a device's telemetry.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	id := deviceID(r)
	if err := s.controller.Listen(id); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"device_id": id, "listening": true})
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runCommand(w, r, func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
		if req.On {
			return c.TurnOn(ctx)
		}
		return c.TurnOff(ctx)
	})
}

func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	var req setpointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Setpoint == nil {
		writeBadRequest(w, "setpoint is required")
		return
	}
	s.runCommand(w, r, func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
		return c.SetSetpoint(ctx, *req.Setpoint)
	})
}

func (s *Server) handleRecipe(w http.ResponseWriter, r *http.Request) {
	var rc device.Recipe
	if !decodeBody(w, r, &rc) {
		return
	}
	s.runCommand(w, r, func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
		return c.ApplyRecipe(ctx, rc)
	})
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var op func(ctx context.Context, c *session.Command) (device.Snapshot, error)
	switch req.Action {
	case "start":
		op = func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
			return c.StartTimer(ctx)
		}
	case "stop":
		op = func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
			return c.StopTimer(ctx)
		}
	case "set":
		if req.Seconds < 0 {
			writeBadRequest(w, "seconds must not be negative")
			return
		}
		op = func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
			return c.SetTimer(ctx, req.Seconds)
		}
	default:
		writeBadRequest(w, "action must be one of start, stop, set")
		return
	}
	s.runCommand(w, r, op)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	var req unitsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Unit != "C" && req.Unit != "F" {
		writeBadRequest(w, `unit must be "C" or "F"`)
		return
	}
	s.runCommand(w, r, func(ctx context.Context, c *session.Command) (device.Snapshot, error) {
		return c.SetUnits(ctx, req.Unit)
	})
}

// runCommand resolves the device and runs op against it. The optimistic
// snapshot is returned even when the directory rejected the write, so
// callers can see what will revert.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Command) (device.Snapshot, error)) {
	cmd, err := s.controller.Set(deviceID(r))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	snap, err := op(r.Context(), cmd)
	if err != nil {
		s.logger.Warn("device command failed", "device_id", cmd.DeviceID(), "error", err)
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleGetDeviceHistory returns recorded snapshots, newest first.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	id := deviceID(r)
	if _, err := s.controller.Snapshot(id); err != nil {
		writeSessionError(w, err)
		return
	}
	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to read state history", "device_id", id, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// History query limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func deviceID(r *http.Request) device.ID {
	return device.ID(chi.URLParam(r, "id"))
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
