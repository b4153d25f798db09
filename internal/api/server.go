package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/strandbotics/homebase/internal/baselink"
	"github.com/strandbotics/homebase/internal/config"
	"github.com/strandbotics/homebase/internal/control"
	"github.com/strandbotics/homebase/internal/recorder"
	"github.com/strandbotics/homebase/internal/trialstore"
	"github.com/strandbotics/homebase/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the robot over HTTP: goto control, trial recording, raw
// command passthrough and state introspection.
type Server struct {
	m         baselink.MuxInterface
	ctrl      *control.Controller
	tracker   *baselink.StateTracker
	store     *trialstore.Store
	rec       *recorder.Recorder
	cam       *recorder.CameraCache
	robot     *config.RobotConfig
	trialsDir string
	units     string
}

// ServerConfig carries the server's collaborators. Mux, Tracker and Store are
// required; the rest degrade to sensible defaults or 503 responses.
type ServerConfig struct {
	Mux        baselink.MuxInterface
	Controller *control.Controller
	Tracker    *baselink.StateTracker
	Store      *trialstore.Store
	Recorder   *recorder.Recorder
	Camera     *recorder.CameraCache
	Robot      *config.RobotConfig
	Units      string
}

func NewServer(cfg ServerConfig) *Server {
	robot := cfg.Robot
	if robot == nil {
		robot = config.DefaultRobotConfig()
	}
	displayUnits := cfg.Units
	if displayUnits == "" {
		displayUnits = units.MPS
	}
	trialsDir := ""
	if cfg.Recorder != nil {
		trialsDir = cfg.Recorder.Dir()
	}
	return &Server{
		m:         cfg.Mux,
		ctrl:      cfg.Controller,
		tracker:   cfg.Tracker,
		store:     cfg.Store,
		rec:       cfg.Recorder,
		cam:       cfg.Camera,
		robot:     robot,
		trialsDir: trialsDir,
		units:     displayUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/goto/enable", s.handleGotoEnable)
	mux.HandleFunc("/goto/disable", s.handleGotoDisable)
	mux.HandleFunc("/goto/yaw-tracking", s.handleYawTracking)
	mux.HandleFunc("/goto/goal", s.handleGotoGoal)
	mux.HandleFunc("/goto/pose", s.handleGotoPose)
	mux.HandleFunc("/goto/status", s.handleGotoStatus)
	mux.HandleFunc("/trials", s.handleTrials)
	mux.HandleFunc("/trials/", s.handleTrialByID)
	mux.HandleFunc("/trials/start", s.handleTrialsStart)
	mux.HandleFunc("/trials/stop", s.handleTrialsStop)
	mux.HandleFunc("/trials/keyframe", s.handleTrialsKeyframe)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/commands", s.listCommands)
	mux.HandleFunc("/state", s.showState)
	mux.HandleFunc("/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ControlResult is the response body for control actions.
type ControlResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) writeResult(w http.ResponseWriter, msg string) {
	json.NewEncoder(w).Encode(ControlResult{Success: true, Message: msg})
}

// convertSpeedValue converts a stored m/s speed to the display unit.
func (s *Server) convertSpeedValue(speedMPS float64) float64 {
	return units.ConvertSpeed(speedMPS, s.units)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing 'command' parameter", http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	if s.store != nil {
		if err := s.store.RecordCommand(command, "api", time.Now()); err != nil {
			log.Printf("Error recording command: %v", err)
		}
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	commands, err := s.store.RecentCommands(limit)
	if err != nil {
		log.Printf("Error fetching command log: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to retrieve command log")
		return
	}
	json.NewEncoder(w).Encode(commands)
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	state := map[string]interface{}{
		"telemetry_frames": s.tracker.Frames(),
		"status":           s.tracker.Status(),
		"speed_units":      s.units,
	}
	if frame := s.tracker.Latest(); frame != nil {
		state["t"] = frame.T
		state["pose"] = frame.Pose()
		state["v"] = units.ConvertSpeed(frame.Base.V, s.units)
		state["w"] = frame.Base.W
		state["q"] = frame.Q
		state["dq"] = frame.DQ
		state["gripper"] = frame.Gripper
	}
	if s.cam != nil {
		state["camera_frames"] = s.cam.Frames()
	}
	if s.rec != nil {
		id, recording := s.rec.Recording()
		state["recording"] = recording
		if recording {
			state["trial_id"] = id
		}
	}

	if err := json.NewEncoder(w).Encode(state); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write state")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units":            s.units,
		"v_max":            s.robot.GetVMax(),
		"w_max":            s.robot.GetWMax(),
		"acc_lin":          s.robot.GetAccLin(),
		"acc_ang":          s.robot.GetAccAng(),
		"lin_error_tol":    s.robot.GetLinErrorTol(),
		"ang_error_tol":    s.robot.GetAngErrorTol(),
		"control_hz":       s.robot.GetControlHz(),
		"track_yaw":        s.robot.GetTrackYaw(),
		"telemetry_hz":     s.robot.GetTelemetryHz(),
		"record_hz":        s.robot.GetRecordHz(),
		"command_watchdog": s.robot.GetCommandWatchdog().String(),
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
