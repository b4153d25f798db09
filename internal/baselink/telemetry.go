package baselink

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/strandbotics/homebase/internal/geom"
	"github.com/strandbotics/homebase/internal/monitoring"
)

const (
	EventTypeTelemetry = "telemetry"
	EventTypeStatus    = "status"
	EventTypeAck       = "ack"
	EventTypeUnknown   = "unknown"
)

// ClassifyLine inspects a line from the base controller and returns a simple
// event type token. The classification is intentionally conservative: the
// firmware emits telemetry JSON at a fixed rate, occasional status events and
// short ACK/ERR responses to commands.
func ClassifyLine(line string) string {
	if strings.HasPrefix(line, "ACK") || strings.HasPrefix(line, "ERR") {
		return EventTypeAck
	}
	if strings.Contains(line, `"base"`) {
		return EventTypeTelemetry
	}
	if strings.Contains(line, `"event"`) {
		return EventTypeStatus
	}
	return EventTypeUnknown
}

// BaseState is the planar state reported by the drive controller.
type BaseState struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
	V     float64 `json:"v"`
	W     float64 `json:"w"`
}

// StateFrame is a single telemetry sample from the base controller: odometry
// plus the arm joint state and gripper aperture.
type StateFrame struct {
	T       float64   `json:"t"`
	Base    BaseState `json:"base"`
	Q       []float64 `json:"q"`
	DQ      []float64 `json:"dq"`
	Gripper float64   `json:"gripper"`
}

// ParseStateFrame decodes a telemetry line into a StateFrame.
func ParseStateFrame(line string) (*StateFrame, error) {
	var frame StateFrame
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telemetry line: %w", err)
	}
	if frame.T == 0 {
		return nil, fmt.Errorf("telemetry line missing timestamp")
	}
	return &frame, nil
}

// Pose returns the odometry pose of the frame.
func (f *StateFrame) Pose() geom.Pose2 {
	return geom.Pose2{X: f.Base.X, Y: f.Base.Y, Theta: f.Base.Theta}
}

// Time converts the frame timestamp to a time.Time.
func (f *StateFrame) Time() time.Time {
	sec, frac := math.Modf(f.T)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// StateTracker holds the most recent telemetry frame and status event so the
// controller and API can read the robot state without subscribing themselves.
type StateTracker struct {
	mu         sync.Mutex
	latest     *StateFrame
	lastStatus map[string]any
	frames     uint64
}

// NewStateTracker creates an empty StateTracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// Update stores a new telemetry frame.
func (t *StateTracker) Update(frame *StateFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = frame
	t.frames++
}

// Latest returns the most recent telemetry frame, or nil before the first
// frame arrives.
func (t *StateTracker) Latest() *StateFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Frames returns the number of telemetry frames seen.
func (t *StateTracker) Frames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// OverridePose replaces the tracked base pose with an externally localized
// one, for robots whose odometry is corrected by an off-board filter. Joint
// state and velocities carry over from the last telemetry frame.
func (t *StateTracker) OverridePose(pose geom.Pose2, ts float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frame := &StateFrame{T: ts, Base: BaseState{X: pose.X, Y: pose.Y, Theta: pose.Theta}}
	if t.latest != nil {
		frame.Base.V = t.latest.Base.V
		frame.Base.W = t.latest.Base.W
		frame.Q = t.latest.Q
		frame.DQ = t.latest.DQ
		frame.Gripper = t.latest.Gripper
	}
	t.latest = frame
}

// SetStatus stores the key/value pairs of a status event.
func (t *StateTracker) SetStatus(status map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastStatus == nil {
		t.lastStatus = make(map[string]any)
	}
	for k, v := range status {
		t.lastStatus[k] = v
	}
}

// Status returns a copy of the last status event values.
func (t *StateTracker) Status() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]any, len(t.lastStatus))
	for k, v := range t.lastStatus {
		out[k] = v
	}
	return out
}

// HandleLine routes one line from the base controller: telemetry frames
// update the tracker, status events update the tracker's status map, ACK/ERR
// responses are logged.
func HandleLine(tracker *StateTracker, line string) error {
	switch ClassifyLine(line) {
	case EventTypeTelemetry:
		frame, err := ParseStateFrame(line)
		if err != nil {
			return fmt.Errorf("failed to handle telemetry line: %w", err)
		}
		tracker.Update(frame)
	case EventTypeStatus:
		var status map[string]any
		if err := json.Unmarshal([]byte(line), &status); err != nil {
			return fmt.Errorf("failed to unmarshal status event: %w", err)
		}
		tracker.SetStatus(status)
		monitoring.Logf("Status event: %s", line)
	case EventTypeAck:
		if strings.HasPrefix(line, "ERR") {
			monitoring.Logf("Controller error: %s", line)
		}
	default:
		monitoring.Logf("unknown line type: %s", line)
	}
	return nil
}
