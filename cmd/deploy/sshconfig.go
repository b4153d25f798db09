package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SSHConfig holds the ~/.ssh/config entries for a single host alias.
type SSHConfig struct {
	Host          string
	HostName      string
	User          string
	IdentityFile  string
	IdentityAgent string
	Port          string
}

// ParseSSHConfig looks up a host alias in ~/.ssh/config. It returns nil
// (without error) when the config file does not exist or the host is not
// defined there.
func ParseSSHConfig(target string) (*SSHConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}

	configPath := filepath.Join(home, ".ssh", "config")
	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open SSH config: %w", err)
	}
	defer f.Close()

	var config *SSHConfig
	inBlock := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		keyword := fields[0]
		value := fields[1]

		if strings.EqualFold(keyword, "Host") {
			if inBlock {
				// Left the matching block without hitting EOF
				break
			}
			if matchHost(target, value) {
				inBlock = true
				config = &SSHConfig{Host: value}
			}
			continue
		}

		if !inBlock {
			continue
		}

		switch {
		case strings.EqualFold(keyword, "HostName"):
			config.HostName = value
		case strings.EqualFold(keyword, "User"):
			config.User = value
		case strings.EqualFold(keyword, "IdentityFile"):
			config.IdentityFile = expandTilde(value, home)
		case strings.EqualFold(keyword, "IdentityAgent"):
			config.IdentityAgent = expandTilde(value, home)
		case strings.EqualFold(keyword, "Port"):
			config.Port = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read SSH config: %w", err)
	}

	if !inBlock {
		return nil, nil
	}
	return config, nil
}

// matchHost reports whether the target matches a Host pattern. Only exact
// matches are supported; wildcard patterns are treated as non-matching so
// a catch-all "Host *" block never hijacks a target.
func matchHost(target, pattern string) bool {
	return target == pattern
}

func expandTilde(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// ResolveSSHTarget combines command-line flags with ~/.ssh/config to produce
// the final connection parameters. Explicit flags win over config values.
// A user embedded in the target ("robot@host") is split off and used when no
// --ssh-user was given.
func ResolveSSHTarget(target, sshUser, sshKey string) (string, string, string, string, error) {
	host := target
	user := sshUser
	key := sshKey
	agent := ""

	if parts := strings.SplitN(host, "@", 2); len(parts) == 2 {
		if user == "" {
			user = parts[0]
		}
		host = parts[1]
	}

	config, err := ParseSSHConfig(host)
	if err != nil {
		return "", "", "", "", err
	}
	if config == nil {
		return host, user, key, agent, nil
	}

	debugLog("Resolved %s from SSH config (HostName=%s User=%s)", host, config.HostName, config.User)

	if config.HostName != "" {
		host = config.HostName
	}
	if user == "" {
		user = config.User
	}
	if key == "" {
		key = config.IdentityFile
	}
	agent = config.IdentityAgent

	return host, user, key, agent, nil
}
