package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Installer handles installation of the homebased service
type Installer struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	BinaryPath    string
	SerialPort    string
	DBPath        string
	DryRun        bool
}

const (
	serviceName       = "homebased"
	installPath       = "/usr/local/bin/homebased"
	dataDir           = "/var/lib/homebase"
	trialDBPath       = "/var/lib/homebase/trials.db"
	trialRecordingDir = "/var/lib/homebase/trials"
	serviceFile       = "homebased.service"
	serviceUser       = "homebase"
	defaultSerialPort = "/dev/ttyUSB0"

	// The serial device is substituted for %s when the unit is rendered.
	// SupplementaryGroups=dialout lets the service user open the port.
	serviceContent = `[Unit]
Description=Homebase robot daemon
After=network.target

[Service]
User=homebase
Group=homebase
SupplementaryGroups=dialout
Type=simple
ExecStart=/usr/local/bin/homebased -port %s -db-path /var/lib/homebase/trials.db -trials-dir /var/lib/homebase/trials
WorkingDirectory=/var/lib/homebase
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=homebased

[Install]
WantedBy=multi-user.target
`
)

func renderServiceUnit(serialPort string) string {
	if serialPort == "" {
		serialPort = defaultSerialPort
	}
	return fmt.Sprintf(serviceContent, serialPort)
}

// Install performs the installation
func (i *Installer) Install() error {
	exec := NewExecutor(i.Target, i.SSHUser, i.SSHKey, i.IdentityAgent, i.DryRun)

	fmt.Println("Starting installation of homebased...")

	// Step 1: Validate binary exists
	if err := i.validateBinary(); err != nil {
		return fmt.Errorf("binary validation failed: %w", err)
	}

	// Step 2: Check if already installed
	if installed, err := i.checkExisting(exec); err != nil {
		return fmt.Errorf("failed to check existing installation: %w", err)
	} else if installed {
		fmt.Println("homebased is already installed. Use 'upgrade' command to update.")
		return nil
	}

	// Step 3: Create service user
	if err := i.createServiceUser(exec); err != nil {
		return fmt.Errorf("failed to create service user: %w", err)
	}

	// Step 4: Create data directory
	if err := i.createDataDirectory(exec); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Step 5: Install binary
	if err := i.installBinary(exec); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}

	// Step 6: Install systemd service
	if err := i.installService(exec); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}

	// Step 7: Seed database if provided
	if i.DBPath != "" {
		if err := i.seedDatabase(exec); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	// Step 8: Apply schema migrations
	if err := i.runMigrations(exec); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Step 9: Start service
	if err := i.startService(exec); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	fmt.Println("\n✓ Installation completed successfully!")
	fmt.Println("\nUseful commands:")
	fmt.Println("  Check status:  homebase-deploy status")
	fmt.Println("  Health check:  homebase-deploy health")
	fmt.Println("  View logs:     sudo journalctl -u homebased.service -f")

	return nil
}

func (i *Installer) validateBinary() error {
	fmt.Printf("Validating binary: %s\n", i.BinaryPath)

	if _, err := os.Stat(i.BinaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary not found: %s", i.BinaryPath)
	}

	// Check if binary is executable
	info, err := os.Stat(i.BinaryPath)
	if err != nil {
		return err
	}

	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary is not executable: %s", i.BinaryPath)
	}

	fmt.Println("  ✓ Binary validated")
	return nil
}

func (i *Installer) checkExisting(exec *Executor) (bool, error) {
	fmt.Println("Checking for existing installation...")

	// Check if service file exists
	output, err := exec.Run("test -f /etc/systemd/system/homebased.service && echo 'exists' || echo 'not found'")
	if err != nil {
		return false, err
	}

	if strings.TrimSpace(output) == "exists" {
		return true, nil
	}

	fmt.Println("  ✓ No existing installation found")
	return false, nil
}

func (i *Installer) createServiceUser(exec *Executor) error {
	fmt.Printf("Creating service user '%s'...\n", serviceUser)

	// Check if user exists
	output, err := exec.Run(fmt.Sprintf("id %s 2>/dev/null && echo 'exists' || echo 'not found'", serviceUser))
	if err != nil {
		return err
	}

	if strings.TrimSpace(output) == "exists" {
		fmt.Printf("  ✓ User '%s' already exists\n", serviceUser)
	} else {
		_, err = exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", serviceUser))
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Printf("  ✓ User '%s' created\n", serviceUser)
	}

	// Serial access requires dialout membership
	_, err = exec.RunSudo(fmt.Sprintf("usermod -a -G dialout %s", serviceUser))
	if err != nil {
		return fmt.Errorf("failed to add user to dialout group: %w", err)
	}
	fmt.Printf("  ✓ User '%s' added to dialout group\n", serviceUser)

	return nil
}

func (i *Installer) createDataDirectory(exec *Executor) error {
	fmt.Printf("Creating data directory: %s\n", dataDir)

	_, err := exec.RunSudo(fmt.Sprintf("mkdir -p %s %s && chown -R %s:%s %s", dataDir, trialRecordingDir, serviceUser, serviceUser, dataDir))
	if err != nil {
		return err
	}

	fmt.Printf("  ✓ Data directory created\n")
	return nil
}

func (i *Installer) installBinary(exec *Executor) error {
	fmt.Printf("Installing binary to %s...\n", installPath)

	// Copy binary to remote host if needed
	if err := exec.CopyFile(i.BinaryPath, installPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	// Set permissions
	_, err := exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary installed")
	return nil
}

func (i *Installer) installService(exec *Executor) error {
	fmt.Println("Installing systemd service...")

	// Write service file to temp location
	tempFile := "/tmp/homebased.service"
	if err := exec.WriteFile(tempFile, renderServiceUnit(i.SerialPort)); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	// Move to systemd directory
	_, err := exec.RunSudo(fmt.Sprintf("mv %s /etc/systemd/system/%s", tempFile, serviceFile))
	if err != nil {
		return fmt.Errorf("failed to install service file: %w", err)
	}

	// Reload systemd
	_, err = exec.RunSudo("systemctl daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	// Enable service
	_, err = exec.RunSudo(fmt.Sprintf("systemctl enable %s", serviceName))
	if err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}

	fmt.Println("  ✓ Service installed and enabled")
	return nil
}

func (i *Installer) seedDatabase(exec *Executor) error {
	fmt.Printf("Seeding trial database from: %s\n", i.DBPath)

	dbDest := filepath.Join(dataDir, "trials.db")

	// Copy database
	if err := exec.CopyFile(i.DBPath, dbDest); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	// Set ownership
	_, err := exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dbDest))
	if err != nil {
		return fmt.Errorf("failed to set database ownership: %w", err)
	}

	fmt.Println("  ✓ Database seeded")
	return nil
}

func (i *Installer) runMigrations(exec *Executor) error {
	fmt.Println("Applying trial database migrations...")

	// The daemon binary carries its own migrations; run them as the
	// service user so the database file keeps the right ownership.
	_, err := exec.RunSudo(fmt.Sprintf("-u %s %s -db-path %s migrate up", serviceUser, installPath, trialDBPath))
	if err != nil {
		return fmt.Errorf("migrate up failed: %w", err)
	}

	fmt.Println("  ✓ Migrations applied")
	return nil
}

func (i *Installer) startService(exec *Executor) error {
	fmt.Printf("Starting %s service...\n", serviceName)

	_, err := exec.RunSudo(fmt.Sprintf("systemctl start %s", serviceName))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Wait a moment for service to start
	exec.Run("sleep 2")

	// Check if service is running
	output, err := exec.RunSudo(fmt.Sprintf("systemctl is-active %s", serviceName))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service failed to start properly")
	}

	fmt.Println("  ✓ Service started successfully")
	return nil
}
