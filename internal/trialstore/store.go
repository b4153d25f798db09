// Package trialstore persists teleop trial recordings: one row per trial and
// one row per sampled frame, in a SQLite database the daemon owns.
package trialstore

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/strandbotics/homebase/internal/geom"
)

// Store wraps the trials database. Schema is managed by migrations; callers
// run MigrateUp (or the migrate CLI) before first use.
type Store struct {
	*sql.DB
	path string
}

// Open opens the trials database at path without touching the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &Store{DB: db, path: path}, nil
}

// Trial is one recorded teleop episode.
type Trial struct {
	ID        string     `json:"trial_id"`
	Task      string     `json:"task"`
	Operator  string     `json:"operator"`
	Notes     string     `json:"notes"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (t *Trial) String() string {
	return fmt.Sprintf("Trial: %s, Task: %s, Operator: %s, StartedAt: %s",
		t.ID, t.Task, t.Operator, t.StartedAt.Format(time.RFC3339))
}

// Duration returns the trial length, using now for trials still recording.
func (t *Trial) Duration(now time.Time) time.Duration {
	if t.EndedAt != nil {
		return t.EndedAt.Sub(t.StartedAt)
	}
	return now.Sub(t.StartedAt)
}

// Frame is one sampled observation within a trial. Joint vectors and poses
// are stored as JSON arrays; images live on disk at the recorded paths.
type Frame struct {
	TrialID    string     `json:"trial_id"`
	Index      int64      `json:"idx"`
	T          float64    `json:"t"`
	BasePose   geom.Pose2 `json:"base_pose"`
	Q          []float64  `json:"q"`
	DQ         []float64  `json:"dq"`
	EEPose     [7]float64 `json:"ee_pose"`
	Gripper    float64    `json:"gripper"`
	CameraPose [7]float64 `json:"camera_pose"`
	RGBPath    string     `json:"rgb_path,omitempty"`
	DepthPath  string     `json:"depth_path,omitempty"`
	Keyframe   bool       `json:"keyframe"`
}

// timeFormat fixes the text layout for trial timestamps so rows read the
// same from any client.
const timeFormat = time.RFC3339Nano

// CreateTrial inserts a new trial and returns it with a fresh id.
func (s *Store) CreateTrial(task, operator, notes string, startedAt time.Time) (Trial, error) {
	trial := Trial{
		ID:        uuid.NewString(),
		Task:      task,
		Operator:  operator,
		Notes:     notes,
		StartedAt: startedAt.UTC(),
	}
	_, err := s.Exec(
		`INSERT INTO trials (trial_id, task, operator, notes, started_at) VALUES (?, ?, ?, ?, ?)`,
		trial.ID, trial.Task, trial.Operator, trial.Notes, trial.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return Trial{}, fmt.Errorf("failed to create trial: %w", err)
	}
	return trial, nil
}

// EndTrial marks a trial as finished.
func (s *Store) EndTrial(id string, endedAt time.Time) error {
	res, err := s.Exec(`UPDATE trials SET ended_at = ? WHERE trial_id = ?`,
		endedAt.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to end trial: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("trial %s not found", id)
	}
	return nil
}

// GetTrial fetches one trial by id.
func (s *Store) GetTrial(id string) (Trial, error) {
	row := s.QueryRow(
		`SELECT trial_id, task, operator, notes, started_at, ended_at FROM trials WHERE trial_id = ?`, id)
	trial, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return Trial{}, fmt.Errorf("trial %s not found", id)
	}
	return trial, err
}

// ListTrials returns the most recent trials, newest first.
func (s *Store) ListTrials(limit int) ([]Trial, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(
		`SELECT trial_id, task, operator, notes, started_at, ended_at
		 FROM trials ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trials []Trial
	for rows.Next() {
		trial, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		trials = append(trials, trial)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trials, nil
}

// DeleteTrial removes a trial and, via the foreign key, its frames.
func (s *Store) DeleteTrial(id string) error {
	res, err := s.Exec(`DELETE FROM trials WHERE trial_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trial: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("trial %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (Trial, error) {
	var (
		trial   Trial
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&trial.ID, &trial.Task, &trial.Operator, &trial.Notes, &started, &ended); err != nil {
		return Trial{}, err
	}
	startedAt, err := time.Parse(timeFormat, started)
	if err != nil {
		return Trial{}, fmt.Errorf("bad started_at for trial %s: %w", trial.ID, err)
	}
	trial.StartedAt = startedAt
	if ended.Valid {
		endedAt, err := time.Parse(timeFormat, ended.String)
		if err != nil {
			return Trial{}, fmt.Errorf("bad ended_at for trial %s: %w", trial.ID, err)
		}
		trial.EndedAt = &endedAt
	}
	return trial, nil
}

// RecordFrame appends one frame row to a trial.
func (s *Store) RecordFrame(frame Frame) error {
	q, err := json.Marshal(frame.Q)
	if err != nil {
		return fmt.Errorf("failed to marshal q: %w", err)
	}
	dq, err := json.Marshal(frame.DQ)
	if err != nil {
		return fmt.Errorf("failed to marshal dq: %w", err)
	}
	ee, err := json.Marshal(frame.EEPose)
	if err != nil {
		return fmt.Errorf("failed to marshal ee_pose: %w", err)
	}
	camera, err := json.Marshal(frame.CameraPose)
	if err != nil {
		return fmt.Errorf("failed to marshal camera_pose: %w", err)
	}

	_, err = s.Exec(
		`INSERT INTO frames (
			trial_id, idx, t, base_x, base_y, base_theta, q, dq, ee_pose,
			gripper, camera_pose, rgb_path, depth_path, keyframe
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		frame.TrialID, frame.Index, frame.T,
		frame.BasePose.X, frame.BasePose.Y, frame.BasePose.Theta,
		string(q), string(dq), string(ee),
		frame.Gripper, string(camera), frame.RGBPath, frame.DepthPath, frame.Keyframe,
	)
	if err != nil {
		return fmt.Errorf("failed to record frame: %w", err)
	}
	return nil
}

// Frames returns all frames of a trial in capture order.
func (s *Store) Frames(trialID string) ([]Frame, error) {
	rows, err := s.Query(
		`SELECT trial_id, idx, t, base_x, base_y, base_theta, q, dq, ee_pose,
			gripper, camera_pose, rgb_path, depth_path, keyframe
		 FROM frames WHERE trial_id = ? ORDER BY idx ASC`, trialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var frame Frame
		var q, dq, ee, camera string
		if err := rows.Scan(
			&frame.TrialID, &frame.Index, &frame.T,
			&frame.BasePose.X, &frame.BasePose.Y, &frame.BasePose.Theta,
			&q, &dq, &ee, &frame.Gripper, &camera,
			&frame.RGBPath, &frame.DepthPath, &frame.Keyframe,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(q), &frame.Q); err != nil {
			return nil, fmt.Errorf("bad q for frame %d: %w", frame.Index, err)
		}
		if err := json.Unmarshal([]byte(dq), &frame.DQ); err != nil {
			return nil, fmt.Errorf("bad dq for frame %d: %w", frame.Index, err)
		}
		if err := json.Unmarshal([]byte(ee), &frame.EEPose); err != nil {
			return nil, fmt.Errorf("bad ee_pose for frame %d: %w", frame.Index, err)
		}
		if err := json.Unmarshal([]byte(camera), &frame.CameraPose); err != nil {
			return nil, fmt.Errorf("bad camera_pose for frame %d: %w", frame.Index, err)
		}
		frames = append(frames, frame)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// FrameCount returns the number of frames recorded for a trial.
func (s *Store) FrameCount(trialID string) (int64, error) {
	var count int64
	err := s.QueryRow(`SELECT COUNT(*) FROM frames WHERE trial_id = ?`, trialID).Scan(&count)
	return count, err
}

// Keyframes returns only the frames the operator marked during recording.
func (s *Store) Keyframes(trialID string) ([]Frame, error) {
	frames, err := s.Frames(trialID)
	if err != nil {
		return nil, err
	}
	keyframes := frames[:0]
	for _, frame := range frames {
		if frame.Keyframe {
			keyframes = append(keyframes, frame)
		}
	}
	return keyframes, nil
}

// AttachAdminRoutes mounts SQL debugging and backup handlers.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://trials.db", s.DB, &tailsql.DBOptions{
		Label: "Trials DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := s.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
