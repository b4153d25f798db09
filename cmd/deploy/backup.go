package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Backup pulls a copy of the installation onto the operator's machine
type Backup struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	OutputDir     string
}

// Execute performs the backup
func (b *Backup) Execute() error {
	exec := NewExecutor(b.Target, b.SSHUser, b.SSHKey, b.IdentityAgent, false)

	fmt.Println("Starting backup of homebased...")

	timestamp := time.Now().Format("20060102-150405")
	backupName := fmt.Sprintf("homebase-backup-%s", timestamp)

	// Step 1: Create local backup directory
	localBackupDir := filepath.Join(b.OutputDir, backupName)
	if _, err := exec.Run(fmt.Sprintf("mkdir -p %s", localBackupDir)); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	fmt.Printf("Backup directory: %s\n", localBackupDir)

	// Step 2: Backup binary
	if err := b.backupBinary(exec, localBackupDir); err != nil {
		return fmt.Errorf("failed to backup binary: %w", err)
	}

	// Step 3: Backup trial database
	if err := b.backupDatabase(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup database: %v\n", err)
	}

	// Step 4: Backup service file
	if err := b.backupServiceFile(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup service file: %v\n", err)
	}

	// Step 5: Create metadata file
	if err := b.createMetadata(exec, localBackupDir, timestamp); err != nil {
		fmt.Printf("Warning: could not create metadata: %v\n", err)
	}

	fmt.Printf("\n✓ Backup completed successfully!\n")
	fmt.Printf("Backup saved to: %s\n", localBackupDir)

	return nil
}

// scpFromTarget copies a remote file into the local backup directory. The
// source is first staged in /tmp with sudo so it is readable by the SSH user.
func (b *Backup) scpFromTarget(exec *Executor, remotePath, localDest string) error {
	tmpPath := "/tmp/" + filepath.Base(remotePath)

	_, err := exec.RunSudo(fmt.Sprintf("cp %s %s && chmod 644 %s", remotePath, tmpPath, tmpPath))
	if err != nil {
		return err
	}

	scpArgs := []string{}
	if b.SSHKey != "" {
		scpArgs = append(scpArgs, "-i", b.SSHKey)
	}
	if b.IdentityAgent != "" {
		scpArgs = append(scpArgs, "-o", fmt.Sprintf("IdentityAgent=%s", b.IdentityAgent))
	}

	target := b.Target
	if b.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", b.SSHUser, target)
	}

	args := append(scpArgs, fmt.Sprintf("%s:%s", target, tmpPath), localDest)
	if _, err := exec.Run(fmt.Sprintf("scp %s", strings.Join(args, " "))); err != nil {
		return err
	}

	exec.Run(fmt.Sprintf("rm %s", tmpPath))
	return nil
}

func (b *Backup) backupBinary(exec *Executor, backupDir string) error {
	fmt.Println("Backing up binary...")

	binaryDest := filepath.Join(backupDir, "homebased")

	if exec.IsLocal() {
		_, err := exec.RunSudo(fmt.Sprintf("cp %s %s", installPath, binaryDest))
		if err != nil {
			return err
		}
		// Make it readable by current user
		_, err = exec.RunSudo(fmt.Sprintf("chmod 644 %s", binaryDest))
		if err != nil {
			return err
		}
	} else {
		if err := b.scpFromTarget(exec, installPath, binaryDest); err != nil {
			return err
		}
	}

	fmt.Println("  ✓ Binary backed up")
	return nil
}

func (b *Backup) backupDatabase(exec *Executor, backupDir string) error {
	fmt.Println("Backing up trial database...")

	// Check if database exists
	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", trialDBPath))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		fmt.Println("  ⊘ No database found")
		return nil
	}

	dbDest := filepath.Join(backupDir, "trials.db")

	if exec.IsLocal() {
		_, err := exec.RunSudo(fmt.Sprintf("cp %s %s", trialDBPath, dbDest))
		if err != nil {
			return err
		}
		_, err = exec.RunSudo(fmt.Sprintf("chmod 644 %s", dbDest))
		if err != nil {
			return err
		}
	} else {
		if err := b.scpFromTarget(exec, trialDBPath, dbDest); err != nil {
			return err
		}
	}

	// Get database size
	sizeOutput, _ := exec.Run(fmt.Sprintf("du -h %s | cut -f1", dbDest))
	fmt.Printf("  ✓ Database backed up (%s)\n", strings.TrimSpace(sizeOutput))

	return nil
}

func (b *Backup) backupServiceFile(exec *Executor, backupDir string) error {
	fmt.Println("Backing up service file...")

	servicePath := "/etc/systemd/system/homebased.service"
	serviceDest := filepath.Join(backupDir, "homebased.service")

	if exec.IsLocal() {
		_, err := exec.RunSudo(fmt.Sprintf("cp %s %s", servicePath, serviceDest))
		if err != nil {
			return err
		}
		_, err = exec.RunSudo(fmt.Sprintf("chmod 644 %s", serviceDest))
		if err != nil {
			return err
		}
	} else {
		if err := b.scpFromTarget(exec, servicePath, serviceDest); err != nil {
			return err
		}
	}

	fmt.Println("  ✓ Service file backed up")
	return nil
}

func (b *Backup) createMetadata(exec *Executor, backupDir, timestamp string) error {
	fmt.Println("Creating backup metadata...")

	// Get service status
	statusOutput, _ := exec.RunSudo("systemctl is-active homebased.service 2>&1 || echo 'unknown'")

	metadata := fmt.Sprintf(`Homebase Backup
===============
Timestamp: %s
Target: %s
Service Status: %s

Files included:
- homebased (binary)
- trials.db (trial database)
- homebased.service (systemd service file)

To restore this backup:
1. Stop the service: sudo systemctl stop homebased.service
2. Restore binary: sudo cp homebased /usr/local/bin/homebased
3. Restore database: sudo cp trials.db /var/lib/homebase/trials.db
4. Restore service: sudo cp homebased.service /etc/systemd/system/
5. Reload systemd: sudo systemctl daemon-reload
6. Start service: sudo systemctl start homebased.service
`, timestamp, b.Target, strings.TrimSpace(statusOutput))

	metadataFile := filepath.Join(backupDir, "README.txt")
	if _, err := exec.Run(fmt.Sprintf("cat > %s << 'EOF'\n%s\nEOF", metadataFile, metadata)); err != nil {
		return err
	}

	fmt.Println("  ✓ Metadata created")
	return nil
}
