// Package envspec parses and lints conda environment manifests, the
// environment.yml files that pin the robot's Python runtime. Parsing keeps
// the order of every list and the inline comment annotations on requirement
// lines, so tooling can report findings against the file as written.
package envspec

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxManifestSize caps how large a manifest file may be.
const MaxManifestSize = 1 << 20

// File is a parsed environment manifest.
type File struct {
	// Name is the environment name, empty if the manifest has none.
	Name string

	// Channels lists the conda channels in priority order.
	Channels []ChannelRef

	// Dependencies holds the dependency entries in file order.
	Dependencies []Entry

	// unknownKeys records top-level keys the format does not define,
	// for the lint pass to report.
	unknownKeys []keyRef
}

// ChannelRef is one entry of the channels list.
type ChannelRef struct {
	Name string
	Line int
}

// Entry is one element of the dependencies sequence: either a plain conda
// requirement or a pip block. Exactly one of Conda and Pip is set.
type Entry struct {
	Conda *Requirement

	// Pip holds the requirements of a "pip:" block. PipPresent
	// distinguishes an empty block from a plain entry.
	Pip        []Requirement
	PipPresent bool

	Line int
}

type keyRef struct {
	name string
	line int
}

// Load reads and parses a manifest from disk.
func Load(path string) (*File, error) {
	if !strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml") {
		return nil, fmt.Errorf("manifest must be a .yml or .yaml file, got: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access manifest: %w", err)
	}
	if info.Size() > MaxManifestSize {
		return nil, fmt.Errorf("manifest too large: %d bytes (max %d)", info.Size(), MaxManifestSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes manifest bytes. It rejects documents that do not follow the
// manifest structure: a top-level mapping whose dependencies are strings or
// single-key pip mappings. Checks that need the whole file, like duplicate
// names, live in Lint.
func Parse(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty manifest")
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: manifest root must be a mapping", doc.Line)
	}

	f := &File{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		switch key.Value {
		case "name":
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: name must be a string", value.Line)
			}
			f.Name = value.Value
		case "channels":
			channels, err := parseChannels(value)
			if err != nil {
				return nil, err
			}
			f.Channels = channels
		case "dependencies":
			deps, err := parseDependencies(value)
			if err != nil {
				return nil, err
			}
			f.Dependencies = deps
		default:
			f.unknownKeys = append(f.unknownKeys, keyRef{name: key.Value, line: key.Line})
		}
	}
	return f, nil
}

func parseChannels(node *yaml.Node) ([]ChannelRef, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: channels must be a sequence", node.Line)
	}
	channels := make([]ChannelRef, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: channel entries must be strings", item.Line)
		}
		channels = append(channels, ChannelRef{Name: item.Value, Line: item.Line})
	}
	return channels, nil
}

func parseDependencies(node *yaml.Node) ([]Entry, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: dependencies must be a sequence", node.Line)
	}
	entries := make([]Entry, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			req := ParseRequirement(item.Value, false)
			req.Line = item.Line
			req.Comment = trimComment(item.LineComment)
			entries = append(entries, Entry{Conda: &req, Line: item.Line})
		case yaml.MappingNode:
			entry, err := parsePipEntry(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		default:
			return nil, fmt.Errorf("line %d: dependency entry must be a string or a pip mapping", item.Line)
		}
	}
	return entries, nil
}

func parsePipEntry(node *yaml.Node) (Entry, error) {
	if len(node.Content) != 2 {
		return Entry{}, fmt.Errorf("line %d: dependency mapping must have exactly one key", node.Line)
	}
	key, value := node.Content[0], node.Content[1]
	if key.Value != "pip" {
		return Entry{}, fmt.Errorf("line %d: unexpected dependency mapping key %q, only pip is allowed", key.Line, key.Value)
	}

	entry := Entry{PipPresent: true, Line: key.Line}
	switch value.Kind {
	case yaml.ScalarNode:
		// A bare "pip:" with no entries parses as a null scalar.
		if value.Tag == "!!null" {
			return entry, nil
		}
		return Entry{}, fmt.Errorf("line %d: pip block must be a sequence", value.Line)
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return Entry{}, fmt.Errorf("line %d: pip entries must be strings", item.Line)
			}
			req := ParseRequirement(item.Value, true)
			req.Line = item.Line
			req.Comment = trimComment(item.LineComment)
			entry.Pip = append(entry.Pip, req)
		}
		return entry, nil
	default:
		return Entry{}, fmt.Errorf("line %d: pip block must be a sequence", value.Line)
	}
}

func trimComment(comment string) string {
	return strings.TrimSpace(strings.TrimLeft(comment, "# "))
}

// CondaRequirements returns the plain conda requirements in file order.
func (f *File) CondaRequirements() []Requirement {
	var reqs []Requirement
	for _, entry := range f.Dependencies {
		if entry.Conda != nil {
			reqs = append(reqs, *entry.Conda)
		}
	}
	return reqs
}

// PipRequirements returns the requirements of all pip blocks in file order.
func (f *File) PipRequirements() []Requirement {
	var reqs []Requirement
	for _, entry := range f.Dependencies {
		reqs = append(reqs, entry.Pip...)
	}
	return reqs
}

// ChannelNames returns the channel list as plain strings.
func (f *File) ChannelNames() []string {
	names := make([]string, len(f.Channels))
	for i, ch := range f.Channels {
		names[i] = ch.Name
	}
	return names
}

// PackageNames returns every package name in the manifest, in file order.
func (f *File) PackageNames() []string {
	var names []string
	for _, entry := range f.Dependencies {
		if entry.Conda != nil {
			names = append(names, entry.Conda.Name)
		}
		for _, req := range entry.Pip {
			names = append(names, req.Name)
		}
	}
	return names
}

// Find looks up a requirement by package name. Conda names match as written,
// pip names under pip's name folding rules. Conda entries win when both lists
// carry the name.
func (f *File) Find(name string) (Requirement, bool) {
	for _, req := range f.CondaRequirements() {
		if req.Name == name {
			return req, true
		}
	}
	want := Requirement{Name: name}.NormalizedName()
	for _, req := range f.PipRequirements() {
		if req.NormalizedName() == want {
			return req, true
		}
	}
	return Requirement{}, false
}

// HasChannel reports whether the named channel appears in the channels list.
func (f *File) HasChannel(name string) bool {
	for _, ch := range f.Channels {
		if ch.Name == name {
			return true
		}
	}
	return false
}

// Encode writes the manifest back out in canonical form: name, channels,
// then dependencies in original order. Requirement lines are rebuilt from
// their parsed form with inline comments kept, so parsing a well-formed
// manifest and encoding it again reproduces the file.
func (f *File) Encode(w io.Writer) error {
	var b strings.Builder
	if f.Name != "" {
		fmt.Fprintf(&b, "name: %s\n", f.Name)
	}
	if len(f.Channels) > 0 {
		b.WriteString("channels:\n")
		for _, ch := range f.Channels {
			fmt.Fprintf(&b, "  - %s\n", ch.Name)
		}
	}
	if len(f.Dependencies) > 0 {
		b.WriteString("dependencies:\n")
		for _, entry := range f.Dependencies {
			if entry.Conda != nil {
				writeRequirement(&b, "  - ", *entry.Conda)
				continue
			}
			if entry.PipPresent {
				b.WriteString("  - pip:\n")
				for _, req := range entry.Pip {
					writeRequirement(&b, "      - ", req)
				}
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRequirement(b *strings.Builder, prefix string, req Requirement) {
	b.WriteString(prefix)
	b.WriteString(req.String())
	if req.Comment != "" {
		b.WriteString("  # ")
		b.WriteString(req.Comment)
	}
	b.WriteString("\n")
}
