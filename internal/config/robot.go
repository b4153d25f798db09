package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical robot defaults file.
// This is the single source of truth for all default parameter values.
const DefaultConfigPath = "config/robot.defaults.json"

// RobotConfig represents the root configuration for the robot service.
// The schema matches the /api/goto/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type RobotConfig struct {
	// Goto controller params
	VMax        *float64 `json:"v_max,omitempty"`
	WMax        *float64 `json:"w_max,omitempty"`
	AccLin      *float64 `json:"acc_lin,omitempty"`
	AccAng      *float64 `json:"acc_ang,omitempty"`
	LinErrorTol *float64 `json:"lin_error_tol,omitempty"`
	AngErrorTol *float64 `json:"ang_error_tol,omitempty"`
	ControlHz   *float64 `json:"control_hz,omitempty"`
	TrackYaw    *bool    `json:"track_yaw,omitempty"`

	// Base link params
	TelemetryHz     *float64 `json:"telemetry_hz,omitempty"`
	CommandWatchdog *string  `json:"command_watchdog,omitempty"` // duration string like "500ms"
	SerialBaud      *int     `json:"serial_baud,omitempty"`

	// Recorder params
	RecordHz   *float64 `json:"record_hz,omitempty"`
	DepthScale *float64 `json:"depth_scale,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRobotConfig returns a RobotConfig with all fields set to nil.
// Use LoadRobotConfig to load actual values from a file.
func EmptyRobotConfig() *RobotConfig {
	return &RobotConfig{}
}

// DefaultRobotConfig returns a config with every field set to its default.
func DefaultRobotConfig() *RobotConfig {
	return &RobotConfig{
		VMax:            ptrFloat64(0.2),
		WMax:            ptrFloat64(0.45),
		AccLin:          ptrFloat64(0.25),
		AccAng:          ptrFloat64(0.8),
		LinErrorTol:     ptrFloat64(0.02),
		AngErrorTol:     ptrFloat64(0.05),
		ControlHz:       ptrFloat64(20),
		TrackYaw:        ptrBool(true),
		TelemetryHz:     ptrFloat64(20),
		CommandWatchdog: ptrString("500ms"),
		SerialBaud:      ptrInt(115200),
		RecordHz:        ptrFloat64(10),
		DepthScale:      ptrFloat64(10000),
	}
}

// LoadRobotConfig loads a RobotConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file fall back to defaults via
// the Get* methods, so partial configs are safe.
func LoadRobotConfig(path string) (*RobotConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRobotConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical robot defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *RobotConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRobotConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RobotConfig) Validate() error {
	if c.VMax != nil {
		if *c.VMax <= 0 || *c.VMax > 2 {
			return fmt.Errorf("v_max must be between 0 and 2 m/s, got %f", *c.VMax)
		}
	}
	if c.WMax != nil {
		if *c.WMax <= 0 || *c.WMax > 4 {
			return fmt.Errorf("w_max must be between 0 and 4 rad/s, got %f", *c.WMax)
		}
	}
	if c.AccLin != nil && *c.AccLin <= 0 {
		return fmt.Errorf("acc_lin must be positive, got %f", *c.AccLin)
	}
	if c.AccAng != nil && *c.AccAng <= 0 {
		return fmt.Errorf("acc_ang must be positive, got %f", *c.AccAng)
	}
	if c.LinErrorTol != nil && *c.LinErrorTol < 0 {
		return fmt.Errorf("lin_error_tol must be non-negative, got %f", *c.LinErrorTol)
	}
	if c.AngErrorTol != nil && *c.AngErrorTol < 0 {
		return fmt.Errorf("ang_error_tol must be non-negative, got %f", *c.AngErrorTol)
	}
	if c.ControlHz != nil {
		if *c.ControlHz <= 0 || *c.ControlHz > 100 {
			return fmt.Errorf("control_hz must be between 0 and 100, got %f", *c.ControlHz)
		}
	}
	if c.TelemetryHz != nil {
		if *c.TelemetryHz <= 0 || *c.TelemetryHz > 200 {
			return fmt.Errorf("telemetry_hz must be between 0 and 200, got %f", *c.TelemetryHz)
		}
	}
	if c.CommandWatchdog != nil && *c.CommandWatchdog != "" {
		if _, err := time.ParseDuration(*c.CommandWatchdog); err != nil {
			return fmt.Errorf("invalid command_watchdog '%s': %w", *c.CommandWatchdog, err)
		}
	}
	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}
	if c.RecordHz != nil {
		if *c.RecordHz <= 0 || *c.RecordHz > 60 {
			return fmt.Errorf("record_hz must be between 0 and 60, got %f", *c.RecordHz)
		}
	}
	if c.DepthScale != nil && *c.DepthScale <= 0 {
		return fmt.Errorf("depth_scale must be positive, got %f", *c.DepthScale)
	}
	return nil
}

// GetVMax returns the v_max value or the default.
func (c *RobotConfig) GetVMax() float64 {
	if c.VMax == nil {
		return 0.2 // default
	}
	return *c.VMax
}

// GetWMax returns the w_max value or the default.
func (c *RobotConfig) GetWMax() float64 {
	if c.WMax == nil {
		return 0.45 // default
	}
	return *c.WMax
}

// GetAccLin returns the acc_lin value or the default.
func (c *RobotConfig) GetAccLin() float64 {
	if c.AccLin == nil {
		return 0.25
	}
	return *c.AccLin
}

// GetAccAng returns the acc_ang value or the default.
func (c *RobotConfig) GetAccAng() float64 {
	if c.AccAng == nil {
		return 0.8
	}
	return *c.AccAng
}

// GetLinErrorTol returns the lin_error_tol value or the default.
func (c *RobotConfig) GetLinErrorTol() float64 {
	if c.LinErrorTol == nil {
		return 0.02
	}
	return *c.LinErrorTol
}

// GetAngErrorTol returns the ang_error_tol value or the default.
func (c *RobotConfig) GetAngErrorTol() float64 {
	if c.AngErrorTol == nil {
		return 0.05
	}
	return *c.AngErrorTol
}

// GetControlHz returns the control_hz value or the default.
func (c *RobotConfig) GetControlHz() float64 {
	if c.ControlHz == nil {
		return 20
	}
	return *c.ControlHz
}

// GetTrackYaw returns the track_yaw value or the default.
func (c *RobotConfig) GetTrackYaw() bool {
	if c.TrackYaw == nil {
		return true
	}
	return *c.TrackYaw
}

// GetTelemetryHz returns the telemetry_hz value or the default.
func (c *RobotConfig) GetTelemetryHz() float64 {
	if c.TelemetryHz == nil {
		return 20
	}
	return *c.TelemetryHz
}

// GetCommandWatchdog parses and returns the CommandWatchdog as a time.Duration.
func (c *RobotConfig) GetCommandWatchdog() time.Duration {
	if c.CommandWatchdog == nil || *c.CommandWatchdog == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.CommandWatchdog)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetSerialBaud returns the serial_baud value or the default.
func (c *RobotConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetRecordHz returns the record_hz value or the default.
func (c *RobotConfig) GetRecordHz() float64 {
	if c.RecordHz == nil {
		return 10
	}
	return *c.RecordHz
}

// GetDepthScale returns the depth_scale value or the default.
func (c *RobotConfig) GetDepthScale() float64 {
	if c.DepthScale == nil {
		return 10000
	}
	return *c.DepthScale
}
