package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/strandbotics/homebase/internal/geom"
	"github.com/strandbotics/homebase/internal/units"
)

// GoalRequest is the body of POST /goto/goal. Distances are meters; the
// heading is radians unless angle_units says "deg".
type GoalRequest struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Theta      float64 `json:"theta"`
	AngleUnits string  `json:"angle_units,omitempty"`
}

// PoseRequest is the body of POST /goto/pose: an externally localized base
// pose. T is unix seconds; zero means now.
type PoseRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
	T     float64 `json:"t,omitempty"`
}

// GotoStatus is the response body of GET /goto/status.
type GotoStatus struct {
	Active      bool        `json:"active"`
	Arrived     bool        `json:"arrived"`
	YawTracking bool        `json:"yaw_tracking"`
	Goal        *geom.Pose2 `json:"goal,omitempty"`
	Pose        *geom.Pose2 `json:"pose,omitempty"`
	Speed       *float64    `json:"speed,omitempty"`
	SpeedUnits  string      `json:"speed_units"`
}

func (s *Server) handleGotoEnable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.ctrl.Enable(); err != nil {
		log.Printf("Error enabling goto controller: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to enable goto controller")
		return
	}
	s.writeResult(w, "Goto controller enabled")
}

func (s *Server) handleGotoDisable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.ctrl.Disable(); err != nil {
		log.Printf("Error disabling goto controller: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to disable goto controller")
		return
	}
	s.writeResult(w, "Goto controller disabled")
}

func (s *Server) handleYawTracking(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.ctrl.SetYawTracking(req.Enabled)
	if req.Enabled {
		s.writeResult(w, "Yaw tracking enabled")
	} else {
		s.writeResult(w, "Yaw tracking disabled")
	}
}

func (s *Server) handleGotoGoal(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	angleUnits := req.AngleUnits
	if angleUnits == "" {
		angleUnits = units.RAD
	}
	if !units.IsValidAngleUnit(angleUnits) {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid angle_units %q. Valid: %s", req.AngleUnits, units.GetValidAngleUnitsString()))
		return
	}

	goal := geom.Pose2{
		X:     req.X,
		Y:     req.Y,
		Theta: units.ConvertToRad(req.Theta, angleUnits),
	}
	s.ctrl.SetGoal(goal)
	s.writeResult(w, fmt.Sprintf("Goal set to (%.3f, %.3f, %.3f rad)", goal.X, goal.Y, goal.Theta))
}

func (s *Server) handleGotoPose(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req PoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ts := req.T
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / 1e9
	}
	s.tracker.OverridePose(geom.Pose2{X: req.X, Y: req.Y, Theta: req.Theta}, ts)
	s.writeResult(w, "Pose updated")
}

func (s *Server) handleGotoStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := GotoStatus{
		Active:      s.ctrl.Active(),
		Arrived:     s.ctrl.Arrived(),
		YawTracking: s.ctrl.YawTracking(),
		SpeedUnits:  s.units,
	}
	if goal, ok := s.ctrl.Goal(); ok {
		status.Goal = &goal
	}
	if frame := s.tracker.Latest(); frame != nil {
		pose := frame.Pose()
		status.Pose = &pose
		speed := units.ConvertSpeed(frame.Base.V, s.units)
		status.Speed = &speed
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write goto status")
		return
	}
}
