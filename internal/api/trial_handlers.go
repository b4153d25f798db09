package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/strandbotics/homebase/internal/recorder"
	"github.com/strandbotics/homebase/internal/security"
)

// StartTrialRequest is the body of POST /trials/start.
type StartTrialRequest struct {
	TaskName string `json:"task_name"`
	Operator string `json:"operator,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// TrialStatsAPI is the display form of trial statistics: speeds are converted
// to the configured display unit, so the raw m/s field names do not apply.
type TrialStatsAPI struct {
	TrialID     string  `json:"trial_id"`
	Frames      int     `json:"frames"`
	Keyframes   int     `json:"keyframes"`
	Duration    float64 `json:"duration_s"`
	PathLength  float64 `json:"path_length_m"`
	MeanSpeed   float64 `json:"mean_speed"`
	MaxSpeed    float64 `json:"max_speed"`
	SpeedStdDev float64 `json:"speed_stddev"`
	SpeedUnits  string  `json:"speed_units"`
}

func (s *Server) statsToAPI(stats recorder.TrialStats) TrialStatsAPI {
	return TrialStatsAPI{
		TrialID:     stats.TrialID,
		Frames:      stats.Frames,
		Keyframes:   stats.Keyframes,
		Duration:    stats.Duration,
		PathLength:  stats.PathLength,
		MeanSpeed:   s.convertSpeedValue(stats.MeanSpeed),
		MaxSpeed:    s.convertSpeedValue(stats.MaxSpeed),
		SpeedStdDev: s.convertSpeedValue(stats.SpeedStdDev),
		SpeedUnits:  s.units,
	}
}

func (s *Server) handleTrialsStart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.rec == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Recorder not available")
		return
	}

	var req StartTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TaskName == "" {
		s.writeJSONError(w, http.StatusBadRequest, "task_name is required")
		return
	}

	trial, err := s.rec.Start(req.TaskName, req.Operator, req.Notes)
	if err != nil {
		if strings.Contains(err.Error(), "still recording") {
			s.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("Error starting trial: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to start trial")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(trial)
}

func (s *Server) handleTrialsStop(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.rec == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Recorder not available")
		return
	}

	trial, err := s.rec.Finish()
	if err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	json.NewEncoder(w).Encode(trial)
}

func (s *Server) handleTrialsKeyframe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.rec == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Recorder not available")
		return
	}

	id, recording := s.rec.Recording()
	if !recording {
		s.writeJSONError(w, http.StatusConflict, "no trial is recording")
		return
	}
	if err := s.rec.SaveFrame(true); err != nil {
		log.Printf("Error saving keyframe: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to save keyframe")
		return
	}
	s.writeResult(w, fmt.Sprintf("Keyframe saved for trial %s", id))
}

func (s *Server) handleTrials(w http.ResponseWriter, r *http.Request) {
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

	trials, err := s.store.ListTrials(limit)
	if err != nil {
		log.Printf("Error listing trials: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to retrieve trials")
		return
	}
	json.NewEncoder(w).Encode(trials)
}

// handleTrialByID routes /trials/{id} and its sub-resources.
func (s *Server) handleTrialByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/trials/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Missing trial ID", http.StatusBadRequest)
		return
	}
	id := pathParts[0]

	if len(pathParts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetTrial(w, r, id)
		case http.MethodDelete:
			s.handleDeleteTrial(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch pathParts[1] {
	case "stats":
		s.handleTrialStats(w, r, id)
	case "export.gif":
		s.handleTrialExportGIF(w, r, id)
	case "review":
		s.handleTrialReview(w, r, id)
	default:
		http.Error(w, "Unknown trial resource", http.StatusNotFound)
	}
}

func (s *Server) handleGetTrial(w http.ResponseWriter, r *http.Request, id string) {
	w.Header().Set("Content-Type", "application/json")

	trial, err := s.store.GetTrial(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, "Trial not found")
			return
		}
		log.Printf("Error fetching trial %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to fetch trial")
		return
	}

	detail := map[string]interface{}{"trial": trial}
	if stats, err := recorder.ComputeStats(s.store, id); err == nil {
		detail["stats"] = s.statsToAPI(stats)
	}
	json.NewEncoder(w).Encode(detail)
}

func (s *Server) handleDeleteTrial(w http.ResponseWriter, r *http.Request, id string) {
	// Refuse to delete the trial currently being recorded.
	if s.rec != nil {
		if open, recording := s.rec.Recording(); recording && open == id {
			s.writeJSONError(w, http.StatusConflict, "trial is still recording")
			return
		}
	}

	if err := s.store.DeleteTrial(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, "Trial not found")
			return
		}
		log.Printf("Error deleting trial %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to delete trial")
		return
	}

	if s.trialsDir != "" {
		if err := os.RemoveAll(filepath.Join(s.trialsDir, id)); err != nil {
			log.Printf("Error removing trial images for %s: %v", id, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrialStats(w http.ResponseWriter, r *http.Request, id string) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := recorder.ComputeStats(s.store, id)
	if err != nil {
		if strings.Contains(err.Error(), "no frames") || strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("Error computing stats for trial %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to compute trial stats")
		return
	}
	json.NewEncoder(w).Encode(s.statsToAPI(stats))
}

func (s *Server) handleTrialExportGIF(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.trialsDir == "" {
		http.Error(w, "Trial image store not available", http.StatusServiceUnavailable)
		return
	}

	fps := 10
	if f := r.URL.Query().Get("fps"); f != "" {
		parsed, err := strconv.Atoi(f)
		if err != nil || parsed < 1 || parsed > 100 {
			http.Error(w, "Invalid 'fps' parameter", http.StatusBadRequest)
			return
		}
		fps = parsed
	}

	tmp, err := os.CreateTemp("", "trial-*.gif")
	if err != nil {
		log.Printf("Error creating export scratch file: %v", err)
		http.Error(w, "Failed to export trial", http.StatusInternalServerError)
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := recorder.ExportGIF(s.store, s.trialsDir, id, tmpPath, fps); err != nil {
		if strings.Contains(err.Error(), "no RGB frames") || strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Error exporting trial %s: %v", id, err)
		http.Error(w, "Failed to export trial", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/gif")
	// The id comes straight off the URL, so scrub it before it becomes a
	// download filename.
	name := security.SanitizeFilename(shortTrialID(id))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=trial-%s.gif", name))
	http.ServeFile(w, r, tmpPath)
}

func (s *Server) handleTrialReview(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf strings.Builder
	if err := recorder.WriteReview(&buf, s.store, id); err != nil {
		if strings.Contains(err.Error(), "no frames") || strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Error rendering review for trial %s: %v", id, err)
		http.Error(w, "Failed to render review page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, buf.String())
}

func shortTrialID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
