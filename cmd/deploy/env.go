package main

import (
	"fmt"
	"strings"

	"github.com/strandbotics/homebase/internal/envspec"
)

// defaultManifestPath is where provisioning scripts drop the conda manifest
// on robot hosts.
const defaultManifestPath = "/opt/homebase/environment.yml"

// requiredPackages is the conda profile a robot host must declare before
// homebased trials can run against the Python control stack.
var requiredPackages = []string{
	"python",
	"cmake",
	"pybind11",
	"pytorch",
	"torchvision",
	"pinocchio",
	"pip",
}

// requiredChannels must be declared for the pinned pytorch stack to resolve.
var requiredChannels = []string{
	"conda-forge",
	"pytorch",
}

// EnvCheck verifies the robot's Python environment manifest: shape, lint
// findings, and the required package profile.
type EnvCheck struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	ManifestPath  string
}

// Execute performs the environment check
func (c *EnvCheck) Execute() error {
	exec := NewExecutor(c.Target, c.SSHUser, c.SSHKey, c.IdentityAgent, false)

	fmt.Printf("Checking environment manifest: %s\n", c.ManifestPath)

	f, err := c.loadManifest(exec)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	if f.Name != "" {
		fmt.Printf("Environment: %s\n", f.Name)
	}
	if channels := f.ChannelNames(); len(channels) > 0 {
		fmt.Printf("Channels: %s\n", strings.Join(channels, ", "))
	}

	// Step 1: Lint findings
	if err := c.lintManifest(f); err != nil {
		return err
	}

	// Step 2: Required channels
	if err := c.checkChannels(f); err != nil {
		return err
	}

	// Step 3: Required package profile
	if err := c.checkRequired(f); err != nil {
		return err
	}

	// Step 4: Pip section summary
	if pip := f.PipRequirements(); len(pip) > 0 {
		fmt.Printf("  ✓ %d pip requirements declared\n", len(pip))
	}

	fmt.Println("\n✓ Environment manifest verified")
	return nil
}

func (c *EnvCheck) loadManifest(exec *Executor) (*envspec.File, error) {
	if exec.IsLocal() {
		return envspec.Load(c.ManifestPath)
	}

	raw, err := exec.Run(fmt.Sprintf("cat %s", c.ManifestPath))
	if err != nil {
		return nil, err
	}
	return envspec.Parse([]byte(raw))
}

func (c *EnvCheck) lintManifest(f *envspec.File) error {
	fmt.Println("Linting manifest...")

	issues := envspec.Lint(f)
	if len(issues) > 0 {
		for _, issue := range issues {
			fmt.Printf("  ✗ %s\n", issue)
		}
		return fmt.Errorf("manifest has %d lint findings", len(issues))
	}

	fmt.Println("  ✓ No lint findings")
	return nil
}

func (c *EnvCheck) checkChannels(f *envspec.File) error {
	fmt.Println("Checking required channels...")

	var missing []string
	for _, name := range requiredChannels {
		if !f.HasChannel(name) {
			fmt.Printf("  ✗ %s MISSING\n", name)
			missing = append(missing, name)
			continue
		}
		fmt.Printf("  ✓ %s\n", name)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required channels: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *EnvCheck) checkRequired(f *envspec.File) error {
	fmt.Println("Checking required packages...")

	var missing []string
	for _, name := range requiredPackages {
		req, ok := f.Find(name)
		if !ok {
			fmt.Printf("  ✗ %s MISSING\n", name)
			missing = append(missing, name)
			continue
		}
		if req.Version != "" {
			fmt.Printf("  ✓ %s %s%s\n", name, req.Comparator, req.Version)
		} else {
			fmt.Printf("  ✓ %s\n", name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required packages: %s", strings.Join(missing, ", "))
	}
	return nil
}
