package envspec

import (
	"regexp"
	"strings"
)

// Comparator values a requirement may carry. None means the requirement is
// unpinned.
const (
	CompNone = ""
	CompEq   = "=="
	CompGte  = ">="
)

// Requirement is a single dependency line: a package name, an optional
// version constraint and the inline comment annotation, if any.
type Requirement struct {
	// Raw is the requirement string as written.
	Raw string

	Name       string
	Comparator string
	Version    string

	// Extras holds pip extras, the bracketed names in "package[extra]".
	Extras []string

	// Comment is the inline annotation with the leading "#" stripped.
	Comment string

	Line int
}

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9*][A-Za-z0-9._*+!]*$`)
	pep503Runs     = regexp.MustCompile(`[-_.]+`)
)

// ParseRequirement splits a requirement string into name, comparator and
// version. Only "==" and ">=" are part of the grammar; a string with neither
// is an unpinned name. The parse is lenient: malformed text lands in Name and
// is caught by Lint, so a bad line never aborts reading the manifest.
func ParseRequirement(raw string, pip bool) Requirement {
	req := Requirement{Raw: raw}
	rest := strings.TrimSpace(raw)

	if i := comparatorIndex(rest); i >= 0 {
		req.Name = strings.TrimSpace(rest[:i])
		req.Comparator = rest[i : i+2]
		req.Version = strings.TrimSpace(rest[i+2:])
	} else {
		req.Name = rest
	}

	if pip {
		req.Name, req.Extras = splitExtras(req.Name)
	}
	return req
}

// comparatorIndex returns the byte offset of the first comparator in s, or -1.
func comparatorIndex(s string) int {
	eq := strings.Index(s, CompEq)
	gte := strings.Index(s, CompGte)
	switch {
	case eq < 0:
		return gte
	case gte < 0:
		return eq
	case eq < gte:
		return eq
	default:
		return gte
	}
}

// splitExtras separates "package[a,b]" into the package name and its extras.
// Anything that does not close its bracket is left alone for Lint to flag.
func splitExtras(name string) (string, []string) {
	open := strings.Index(name, "[")
	if open < 0 || !strings.HasSuffix(name, "]") {
		return name, nil
	}
	var extras []string
	for _, extra := range strings.Split(name[open+1:len(name)-1], ",") {
		extra = strings.TrimSpace(extra)
		if extra != "" {
			extras = append(extras, extra)
		}
	}
	return name[:open], extras
}

// Pinned reports whether the requirement carries a version constraint.
func (r Requirement) Pinned() bool {
	return r.Comparator != CompNone
}

// NameValid reports whether the parsed name is a well-formed package name.
// A false result usually means the line used syntax outside the manifest
// grammar, like a "<=" constraint.
func (r Requirement) NameValid() bool {
	return namePattern.MatchString(r.Name)
}

// VersionValid reports whether the version text is well formed, including
// wildcard forms like "3.8.*".
func (r Requirement) VersionValid() bool {
	return versionPattern.MatchString(r.Version)
}

// Wildcard reports whether the version contains a "*" segment.
func (r Requirement) Wildcard() bool {
	return strings.Contains(r.Version, "*")
}

// NormalizedName returns the name folded the way pip compares package names:
// lowercased, with runs of "-", "_" and "." collapsed to a single "-".
// Conda names are compared as written, so callers only use this for pip
// blocks.
func (r Requirement) NormalizedName() string {
	return pep503Runs.ReplaceAllString(strings.ToLower(r.Name), "-")
}

// String reconstructs the requirement without its comment.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteString("]")
	}
	if r.Pinned() {
		b.WriteString(r.Comparator)
		b.WriteString(r.Version)
	}
	return b.String()
}
