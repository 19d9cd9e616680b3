package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mvaldr/crossing-core/internal/signal"
	"github.com/mvaldr/crossing-core/internal/state"
	"github.com/mvaldr/crossing-core/internal/telemetry"
)

// Signal command actions.
const (
	actionRed    = "red"
	actionYellow = "yellow"
	actionGreen  = "green"
	actionToggle = "toggle"
)

// commandRequest is the body of POST /signals/{id}/command.
type commandRequest struct {
	Action string `json:"action"`
}

// flowRequest is the body of POST /flow. Both fields are optional;
// empty means unchanged.
type flowRequest struct {
	Mode      string `json:"mode,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// stateResponse is the command response: the full signal pair plus the
// flow directive, reflecting the state immediately after the command's
// announced (yellow) step.
type stateResponse struct {
	Lights      map[string]state.SignalState `json:"lights"`
	TrafficFlow state.FlowDirective          `json:"trafficFlow"`
}

// handleSignalCommand dispatches one control command to a signal.
func (s *Server) handleSignalCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var err error
	switch req.Action {
	case actionRed:
		err = s.controller.SetRed(id)
	case actionYellow:
		err = s.controller.SetYellow(id)
	case actionGreen:
		err = s.controller.SetGreen(id)
	case actionToggle:
		err = s.controller.Toggle(id)
	default:
		writeBadRequest(w, "action must be one of red, yellow, green, toggle")
		return
	}

	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	s.writeStateResponse(w)
}

// handleFlow updates the flow directive.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.controller.SetFlow(state.FlowMode(req.Mode), state.FlowDirection(req.Direction))
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	s.writeStateResponse(w)
}

// handleEmergencyStop runs the unconditional two-step stop sequence.
func (s *Server) handleEmergencyStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.EmergencyStop(); err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeStateResponse(w)
}

// handleVehicles accepts pushed telemetry with base-topic merge
// semantics.
func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body")
		return
	}

	if err := s.telemetry.ApplyMain(payload); err != nil {
		if errors.Is(err, telemetry.ErrMalformedPayload) {
			writeBadRequest(w, "malformed telemetry payload")
			return
		}
		s.logger.Error("telemetry push failed", "error", err)
		writeInternalError(w, "applying telemetry")
		return
	}

	writeJSON(w, http.StatusOK, s.store.Snapshot().VehicleData)
}

// handleState returns the full crossing snapshot.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// writeStateResponse writes the signal pair and flow directive.
func (s *Server) writeStateResponse(w http.ResponseWriter) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		Lights:      snap.Lights,
		TrafficFlow: snap.TrafficFlow,
	})
}

// writeCommandError maps controller errors onto structured responses.
// An unknown signal is the caller's mistake and carries no state
// change; everything else is unexpected.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrUnknownSignal):
		writeNotFound(w, "unknown signal")
	case errors.Is(err, signal.ErrInvalidFlow):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("command failed", "error", err)
		writeInternalError(w, "command failed")
	}
}
