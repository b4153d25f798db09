package envspec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		pip  bool
		want Requirement
	}{
		{
			name: "bare name",
			raw:  "cmake",
			want: Requirement{Raw: "cmake", Name: "cmake"},
		},
		{
			name: "exact pin",
			raw:  "mypy==0.981",
			want: Requirement{Raw: "mypy==0.981", Name: "mypy", Comparator: CompEq, Version: "0.981"},
		},
		{
			name: "lower bound",
			raw:  "numpy>=1.21",
			want: Requirement{Raw: "numpy>=1.21", Name: "numpy", Comparator: CompGte, Version: "1.21"},
		},
		{
			name: "wildcard pin",
			raw:  "python==3.8.*",
			want: Requirement{Raw: "python==3.8.*", Name: "python", Comparator: CompEq, Version: "3.8.*"},
		},
		{
			name: "spaces around constraint",
			raw:  "  scipy == 1.9.3 ",
			want: Requirement{Raw: "  scipy == 1.9.3 ", Name: "scipy", Comparator: CompEq, Version: "1.9.3"},
		},
		{
			name: "pip extras",
			raw:  "imageio[ffmpeg]>=2.9",
			pip:  true,
			want: Requirement{Raw: "imageio[ffmpeg]>=2.9", Name: "imageio", Comparator: CompGte, Version: "2.9", Extras: []string{"ffmpeg"}},
		},
		{
			name: "extras ignored for conda",
			raw:  "imageio[ffmpeg]",
			want: Requirement{Raw: "imageio[ffmpeg]", Name: "imageio[ffmpeg]"},
		},
		{
			name: "unsupported comparator lands in name",
			raw:  "scipy<=1.5",
			want: Requirement{Raw: "scipy<=1.5", Name: "scipy<=1.5"},
		},
		{
			name: "first comparator wins",
			raw:  "weird>=1.0==2.0",
			want: Requirement{Raw: "weird>=1.0==2.0", Name: "weird", Comparator: CompGte, Version: "1.0==2.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRequirement(tt.raw, tt.pip)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRequirement(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestRequirementValidity(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		nameOK      bool
		versionOK   bool
		hasWildcard bool
	}{
		{"plain name", "cmake", true, false, false},
		{"pinned", "pytorch==1.13.*", true, true, true},
		{"lower bound", "numpy>=1.21", true, true, false},
		{"local version", "torch==1.13.1+cu117", true, true, false},
		{"bad comparator", "scipy<=1.5", false, false, false},
		{"leading dash", "-numpy", false, false, false},
		{"spaces in name", "two words", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ParseRequirement(tt.raw, false)
			if got := req.NameValid(); got != tt.nameOK {
				t.Errorf("NameValid() = %v, want %v", got, tt.nameOK)
			}
			if req.Pinned() {
				if got := req.VersionValid(); got != tt.versionOK {
					t.Errorf("VersionValid() = %v, want %v", got, tt.versionOK)
				}
				if got := req.Wildcard(); got != tt.hasWildcard {
					t.Errorf("Wildcard() = %v, want %v", got, tt.hasWildcard)
				}
			}
		})
	}
}

func TestNormalizedName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"opencv-python", "opencv-python"},
		{"opencv_python", "opencv-python"},
		{"OpenCV.Python", "opencv-python"},
		{"scikit__image", "scikit-image"},
		{"numpy", "numpy"},
	}

	for _, tt := range tests {
		req := ParseRequirement(tt.raw, true)
		if got := req.NormalizedName(); got != tt.want {
			t.Errorf("NormalizedName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestRequirementString(t *testing.T) {
	tests := []struct {
		raw  string
		pip  bool
		want string
	}{
		{"cmake", false, "cmake"},
		{"numpy>=1.21", false, "numpy>=1.21"},
		{" scipy == 1.9.3 ", false, "scipy==1.9.3"},
		{"imageio[ffmpeg]>=2.9", true, "imageio[ffmpeg]>=2.9"},
	}

	for _, tt := range tests {
		req := ParseRequirement(tt.raw, tt.pip)
		if got := req.String(); got != tt.want {
			t.Errorf("String() for %q = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
