package envspec

import "fmt"

// Issue codes reported by Lint.
const (
	CodeChannels   = "channels"
	CodeDuplicate  = "duplicate"
	CodeName       = "name"
	CodeVersion    = "version"
	CodeConstraint = "constraint"
	CodePip        = "pip"
	CodeUnknownKey = "unknown-key"
)

// Issue is a single lint finding, tied to the manifest line it concerns.
type Issue struct {
	Line    int
	Code    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

func issuef(line int, code, format string, args ...interface{}) Issue {
	return Issue{Line: line, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Lint checks a parsed manifest for problems the structural parse cannot
// catch: duplicate names within a list, constraints outside the grammar and
// misshapen pip sections. It reports findings and never fails; an empty
// result means the manifest is clean.
func Lint(f *File) []Issue {
	var issues []Issue

	issues = append(issues, lintChannels(f.Channels)...)
	issues = append(issues, lintConda(f)...)
	issues = append(issues, lintPip(f)...)

	for _, key := range f.unknownKeys {
		issues = append(issues, issuef(key.line, CodeUnknownKey,
			"unknown top-level key %q", key.name))
	}
	return issues
}

func lintChannels(channels []ChannelRef) []Issue {
	var issues []Issue
	if len(channels) == 0 {
		issues = append(issues, issuef(0, CodeChannels, "manifest declares no channels"))
		return issues
	}
	seen := make(map[string]int)
	for _, ch := range channels {
		if first, ok := seen[ch.Name]; ok {
			issues = append(issues, issuef(ch.Line, CodeDuplicate,
				"duplicate channel %q, first listed on line %d", ch.Name, first))
			continue
		}
		seen[ch.Name] = ch.Line
	}
	return issues
}

func lintConda(f *File) []Issue {
	var issues []Issue
	seen := make(map[string]int)
	for _, req := range f.CondaRequirements() {
		issues = append(issues, lintRequirement(req)...)
		if !req.NameValid() {
			continue
		}
		if first, ok := seen[req.Name]; ok {
			issues = append(issues, issuef(req.Line, CodeDuplicate,
				"duplicate dependency %q, first listed on line %d", req.Name, first))
			continue
		}
		seen[req.Name] = req.Line
	}
	return issues
}

func lintPip(f *File) []Issue {
	var issues []Issue
	blocks := 0
	hasPipDep := false
	for _, req := range f.CondaRequirements() {
		if req.Name == "pip" {
			hasPipDep = true
		}
	}

	for _, entry := range f.Dependencies {
		if !entry.PipPresent {
			continue
		}
		blocks++
		if blocks == 2 {
			issues = append(issues, issuef(entry.Line, CodePip,
				"multiple pip sections, first on line %d", firstPipLine(f)))
		}
		if len(entry.Pip) == 0 {
			issues = append(issues, issuef(entry.Line, CodePip, "empty pip section"))
			continue
		}
		seen := make(map[string]int)
		for _, req := range entry.Pip {
			issues = append(issues, lintRequirement(req)...)
			if !req.NameValid() {
				continue
			}
			// pip treats foo-bar, foo_bar and Foo.Bar as one package.
			key := req.NormalizedName()
			if first, ok := seen[key]; ok {
				issues = append(issues, issuef(req.Line, CodeDuplicate,
					"duplicate pip requirement %q, first listed on line %d", req.Name, first))
				continue
			}
			seen[key] = req.Line
		}
	}

	if blocks > 0 && !hasPipDep {
		issues = append(issues, issuef(firstPipLine(f), CodePip,
			"pip section requires a plain pip dependency"))
	}
	return issues
}

func lintRequirement(req Requirement) []Issue {
	var issues []Issue
	if !req.NameValid() {
		issues = append(issues, issuef(req.Line, CodeName,
			"cannot parse requirement %q: only \"==\" and \">=\" constraints are supported", req.Raw))
		return issues
	}
	if req.Pinned() {
		if req.Version == "" || !req.VersionValid() {
			issues = append(issues, issuef(req.Line, CodeVersion,
				"invalid version %q for %s", req.Version, req.Name))
		} else if req.Wildcard() && req.Comparator == CompGte {
			issues = append(issues, issuef(req.Line, CodeConstraint,
				"wildcard version %q cannot be used with >=", req.Version))
		}
	}
	return issues
}

func firstPipLine(f *File) int {
	for _, entry := range f.Dependencies {
		if entry.PipPresent {
			return entry.Line
		}
	}
	return 0
}
