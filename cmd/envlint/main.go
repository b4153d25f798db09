// Command envlint validates conda environment manifests.
//
// Usage:
//
//	envlint -f environment.yml
//	envlint -f environment.yml -list
//	envlint -f environment.yml -fmt > environment.yml.new
//
// Exit codes:
//   - 0: Manifest is valid
//   - 1: Manifest is invalid (parse error or lint findings)
//   - 2: Usage error (missing required flag)
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/strandbotics/homebase/internal/envspec"
)

func main() {
	var file string
	var quiet bool
	var list bool
	var format bool

	flag.StringVar(&file, "file", "", "path to the environment manifest")
	flag.StringVar(&file, "f", "", "path to the environment manifest (shorthand)")
	flag.BoolVar(&quiet, "q", false, "suppress output, report through the exit code only")
	flag.BoolVar(&list, "list", false, "print the resolved package table")
	flag.BoolVar(&format, "fmt", false, "print the manifest re-rendered in canonical form")
	flag.Parse()

	if file == "" {
		fmt.Fprintln(os.Stderr, "Error: -f is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  envlint -f environment.yml")
		fmt.Fprintln(os.Stderr, "  envlint -f environment.yml -list")
		fmt.Fprintln(os.Stderr, "  envlint -f environment.yml -fmt > environment.yml.new")
		os.Exit(2)
	}

	os.Exit(run(os.Stdout, os.Stderr, file, quiet, list, format))
}

// run lints one manifest and returns the process exit code.
func run(out, errOut io.Writer, file string, quiet, list, format bool) int {
	f, err := envspec.Load(file)
	if err != nil {
		if !quiet {
			fmt.Fprintf(errOut, "Manifest error in %s:\n", file)
			fmt.Fprintf(errOut, "  %v\n", err)
		}
		return 1
	}

	issues := envspec.Lint(f)
	if len(issues) > 0 {
		if !quiet {
			fmt.Fprintf(errOut, "Lint findings in %s:\n", file)
			for _, issue := range issues {
				fmt.Fprintf(errOut, "  %s\n", issue)
			}
		}
		return 1
	}

	// Canonical re-render mode writes only the manifest so the output can
	// be redirected over the original file.
	if format {
		if err := f.Encode(out); err != nil {
			fmt.Fprintf(errOut, "Failed to write manifest: %v\n", err)
			return 1
		}
		return 0
	}

	if list {
		printPackages(out, f)
	}
	if !quiet {
		fmt.Fprintf(out, "✓ %s is valid (%d packages)\n", file, len(f.PackageNames()))
	}
	return 0
}

// printPackages writes the resolved package table: every conda and pip
// requirement with its constraint and source, one line per package.
func printPackages(out io.Writer, f *envspec.File) {
	if f.Name != "" {
		fmt.Fprintf(out, "environment: %s\n", f.Name)
	}
	if channels := f.ChannelNames(); len(channels) > 0 {
		fmt.Fprintf(out, "channels: %s\n", strings.Join(channels, ", "))
	}
	fmt.Fprintf(out, "%-28s %-4s %-16s %s\n", "NAME", "OP", "VERSION", "SOURCE")
	for _, req := range f.CondaRequirements() {
		fmt.Fprintf(out, "%-28s %-4s %-16s conda\n", req.Name, req.Comparator, req.Version)
	}
	for _, req := range f.PipRequirements() {
		name := req.Name
		if len(req.Extras) > 0 {
			name = fmt.Sprintf("%s[%s]", req.Name, strings.Join(req.Extras, ","))
		}
		fmt.Fprintf(out, "%-28s %-4s %-16s pip\n", name, req.Comparator, req.Version)
	}
}
