package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Executor runs commands on the target host, either locally or over SSH.
type Executor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool
}

// NewExecutor creates an executor for the given target
func NewExecutor(target, sshUser, sshKey, identityAgent string, dryRun bool) *Executor {
	return &Executor{
		Target:        target,
		SSHUser:       sshUser,
		SSHKey:        sshKey,
		IdentityAgent: identityAgent,
		DryRun:        dryRun,
	}
}

// IsLocal returns true if the target is the local machine
func (e *Executor) IsLocal() bool {
	return e.Target == "localhost" || e.Target == "127.0.0.1" || e.Target == ""
}

// Run executes a command and returns its output
func (e *Executor) Run(command string) (string, error) {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would execute: %s\n", command)
		return "", nil
	}

	debugLog("Executing: %s", command)

	if e.IsLocal() {
		return e.runLocal(command)
	}
	return e.runRemote(command, false)
}

// RunSudo executes a command with sudo and returns its output
func (e *Executor) RunSudo(command string) (string, error) {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would execute: sudo %s\n", command)
		return "", nil
	}

	debugLog("Executing with sudo: %s", command)

	if e.IsLocal() {
		return e.runLocal("sudo " + command)
	}
	return e.runRemote(command, true)
}

func (e *Executor) runLocal(command string) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("command failed: %w (output: %s)", err, string(output))
	}
	return string(output), nil
}

func (e *Executor) runRemote(command string, sudo bool) (string, error) {
	cmd := e.buildSSHCommand(command, sudo)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("remote command failed: %w (output: %s)", err, string(output))
	}
	return string(output), nil
}

func (e *Executor) buildSSHCommand(command string, sudo bool) *exec.Cmd {
	args := []string{}

	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}
	if e.IdentityAgent != "" {
		args = append(args, "-o", fmt.Sprintf("IdentityAgent=%s", e.IdentityAgent))
	}

	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
	)

	target := e.Target
	if e.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.SSHUser, target)
	}
	args = append(args, target)

	if sudo {
		command = "sudo " + command
	}
	args = append(args, command)

	return exec.Command("ssh", args...)
}

// CopyFile copies a local file to the target host
func (e *Executor) CopyFile(src, dst string) error {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would copy %s to %s\n", src, dst)
		return nil
	}

	if e.IsLocal() {
		// Privileged destinations need sudo
		if strings.HasPrefix(dst, "/usr/") || strings.HasPrefix(dst, "/etc/") || strings.HasPrefix(dst, "/var/") {
			_, err := e.runLocal(fmt.Sprintf("sudo cp %s %s", src, dst))
			return err
		}
		_, err := e.runLocal(fmt.Sprintf("cp %s %s", src, dst))
		return err
	}

	// Remote: scp to /tmp first, then move into place with sudo
	tmpPath := "/tmp/" + filepath.Base(dst)

	scpArgs := []string{}
	if e.SSHKey != "" {
		scpArgs = append(scpArgs, "-i", e.SSHKey)
	}
	if e.IdentityAgent != "" {
		scpArgs = append(scpArgs, "-o", fmt.Sprintf("IdentityAgent=%s", e.IdentityAgent))
	}
	scpArgs = append(scpArgs,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
	)

	target := e.Target
	if e.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.SSHUser, target)
	}
	scpArgs = append(scpArgs, src, fmt.Sprintf("%s:%s", target, tmpPath))

	cmd := exec.Command("scp", scpArgs...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("scp failed: %w (output: %s)", err, string(output))
	}

	_, err := e.RunSudo(fmt.Sprintf("mv %s %s", tmpPath, dst))
	return err
}

// WriteFile writes content to a file on the target host
func (e *Executor) WriteFile(path, content string) error {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would write %d bytes to %s\n", len(content), path)
		return nil
	}

	if e.IsLocal() {
		return os.WriteFile(path, []byte(content), 0644)
	}

	// Remote: pipe content through ssh
	cmd := e.buildSSHCommand(fmt.Sprintf("cat > %s", path), false)
	cmd.Stdin = strings.NewReader(content)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("remote write failed: %w (output: %s)", err, string(output))
	}
	return nil
}
