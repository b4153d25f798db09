package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Monitor handles status checking and health monitoring
type Monitor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	APIPort       int
}

// HealthStatus represents the health check result
type HealthStatus struct {
	Healthy bool
	Message string
	Details string
}

// healthResponse mirrors the body served by the daemon's /health endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// GetStatus returns the current service status
func (m *Monitor) GetStatus() (string, error) {
	exec := NewExecutor(m.Target, m.SSHUser, m.SSHKey, m.IdentityAgent, false)

	// Check systemd status
	output, err := exec.RunSudo("systemctl status homebased.service --no-pager")
	if err != nil {
		return "", fmt.Errorf("failed to get service status: %w", err)
	}

	return output, nil
}

// CheckHealth performs comprehensive health check
func (m *Monitor) CheckHealth() (*HealthStatus, error) {
	exec := NewExecutor(m.Target, m.SSHUser, m.SSHKey, m.IdentityAgent, false)

	health := &HealthStatus{
		Healthy: true,
		Details: "",
	}

	var checks []string

	// Check 1: Service is running
	output, err := exec.RunSudo("systemctl is-active homebased.service")
	if err != nil || strings.TrimSpace(output) != "active" {
		health.Healthy = false
		health.Message = "Service is not running"
		checks = append(checks, "✗ Service: NOT RUNNING")
	} else {
		checks = append(checks, "✓ Service: RUNNING")
	}

	// Check 2: Service has been up for some time (not crash-looping)
	uptimeOutput, err := exec.RunSudo("systemctl show homebased.service --property=ActiveEnterTimestamp --value")
	if err == nil {
		checks = append(checks, fmt.Sprintf("✓ Started: %s", strings.TrimSpace(uptimeOutput)))
	}

	// Check 3: Check for recent errors in logs
	logsOutput, err := exec.RunSudo("journalctl -u homebased.service -n 20 --no-pager")
	if err == nil {
		errorCount := strings.Count(strings.ToLower(logsOutput), "error")
		if errorCount > 5 {
			health.Healthy = false
			health.Message = fmt.Sprintf("Too many errors in logs (%d)", errorCount)
			checks = append(checks, fmt.Sprintf("✗ Logs: %d errors found", errorCount))
		} else {
			checks = append(checks, fmt.Sprintf("✓ Logs: %d errors (acceptable)", errorCount))
		}
	}

	// Check 4: Health endpoint is responding
	apiHost := m.Target
	if apiHost == "localhost" || apiHost == "" {
		apiHost = "localhost"
	} else {
		// Extract hostname from user@host format
		parts := strings.Split(apiHost, "@")
		if len(parts) > 1 {
			apiHost = parts[1]
		}
	}

	apiPort := m.APIPort
	if apiPort == 0 {
		apiPort = 8080
	}

	healthURL := fmt.Sprintf("http://%s:%d/health", apiHost, apiPort)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := fetchHealth(client, healthURL)
	if err != nil {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "Health endpoint not responding"
		}
		checks = append(checks, "✗ API: NOT RESPONDING")
	} else if resp.Status != "ok" {
		health.Healthy = false
		if health.Message == "" {
			health.Message = fmt.Sprintf("Health endpoint reported %q", resp.Status)
		}
		checks = append(checks, fmt.Sprintf("✗ API: status %q", resp.Status))
	} else {
		checks = append(checks, "✓ API: RESPONDING")
		if resp.Service != "" {
			checks = append(checks, fmt.Sprintf("  Service: %s", resp.Service))
		}
		if resp.Version != "" {
			checks = append(checks, fmt.Sprintf("  Version: %s", resp.Version))
		}
		if resp.Timestamp != "" {
			checks = append(checks, fmt.Sprintf("  Reported at: %s", resp.Timestamp))
		}
	}

	// Check 5: Trial database file exists
	dbCheck, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", trialDBPath))
	if err == nil && strings.TrimSpace(dbCheck) == "exists" {
		// Get database size
		sizeOutput, err := exec.RunSudo(fmt.Sprintf("du -h %s | cut -f1", trialDBPath))
		if err == nil {
			checks = append(checks, fmt.Sprintf("✓ Database: %s", strings.TrimSpace(sizeOutput)))
		} else {
			checks = append(checks, "✓ Database: EXISTS")
		}
	} else {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "Trial database not found"
		}
		checks = append(checks, "✗ Database: MISSING")
	}

	health.Details = strings.Join(checks, "\n")

	if health.Healthy {
		health.Message = "All checks passed"
	}

	return health, nil
}

// fetchHealth queries a /health endpoint and decodes the response body.
func fetchHealth(client *http.Client, url string) (*healthResponse, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &body, nil
}
