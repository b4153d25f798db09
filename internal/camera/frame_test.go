package camera

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/num/quat"

	"github.com/strandbotics/homebase/internal/geom"
)

func TestParseInfoRoundTrip(t *testing.T) {
	want := Info{
		T:      1756100000.25,
		Width:  640,
		Height: 480,
		Fx:     615.3,
		Fy:     615.9,
		Cx:     319.5,
		Cy:     239.5,
		Pose:   [7]float64{0.05, 0, 1.35, 1, 0, 0, 0},
	}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	got, err := ParseInfo(data)
	if err != nil {
		t.Fatalf("ParseInfo failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInfoErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "][ nope"},
		{"empty object", "{}"},
		{"missing timestamp", `{"w":640,"h":480}`},
		{"zero width", `{"t":1,"w":0,"h":480}`},
		{"negative height", `{"t":1,"w":640,"h":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseInfo([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestInfoCameraPose(t *testing.T) {
	info := Info{
		T:      1,
		Width:  640,
		Height: 480,
		Pose:   [7]float64{0.1, 0, 1.4, 1, 0, 0, 0},
	}
	got := info.CameraPose()
	want := geom.PosQuat{Pos: [3]float64{0.1, 0, 1.4}, Rot: quat.Number{Real: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pose mismatch (-want +got):\n%s", diff)
	}
}

func TestInfoCameraPoseRotated(t *testing.T) {
	want := geom.PosQuat{Pos: [3]float64{0, 0.1, 1.2}, Rot: geom.RotationZ(math.Pi / 2)}
	info := Info{T: 1, Width: 640, Height: 480, Pose: want.Vector7()}

	got := info.CameraPose()
	const tol = 1e-12
	for i := range want.Pos {
		if math.Abs(got.Pos[i]-want.Pos[i]) > tol {
			t.Errorf("Pos[%d] = %v, want %v", i, got.Pos[i], want.Pos[i])
		}
	}
	if math.Abs(got.Rot.Real-want.Rot.Real) > tol || math.Abs(got.Rot.Imag-want.Rot.Imag) > tol ||
		math.Abs(got.Rot.Jmag-want.Rot.Jmag) > tol || math.Abs(got.Rot.Kmag-want.Rot.Kmag) > tol {
		t.Errorf("Rot = %+v, want %+v", got.Rot, want.Rot)
	}
}

func TestInfoTime(t *testing.T) {
	info := Info{T: 1756100000.25}
	want := time.Unix(1756100000, 250000000).UTC()
	if got := info.Time(); !got.Equal(want) {
		t.Errorf("Time() = %v, want %v", got, want)
	}
}

func TestEncodeDecodeRGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(40 * x), G: uint8(80 * y), B: uint8(10 * x * y), A: 255})
		}
	}

	data, err := EncodeRGB(img)
	if err != nil {
		t.Fatalf("EncodeRGB failed: %v", err)
	}
	got, err := DecodeRGB(data)
	if err != nil {
		t.Fatalf("DecodeRGB failed: %v", err)
	}

	if got.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v, want %v", got.Bounds(), img.Bounds())
	}
	if !bytes.Equal(got.Pix, img.Pix) {
		t.Error("decoded pixels differ from original")
	}
}

func TestDecodeRGBConvertsOtherLayouts(t *testing.T) {
	// A PNG with partial alpha decodes as NRGBA and must be converted.
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := DecodeRGB(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeRGB failed: %v", err)
	}
	if got.Bounds() != src.Bounds() {
		t.Errorf("bounds = %v, want %v", got.Bounds(), src.Bounds())
	}
}

func TestDecodeRGBInvalid(t *testing.T) {
	if _, err := DecodeRGB([]byte("definitely not a png")); err == nil {
		t.Error("expected error for junk input")
	}
}

func TestEncodeDecodeDepth(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 2))
	values := []uint16{0, 1, 12345, 30000, 54321, 65535}
	i := 0
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetGray16(x, y, color.Gray16{Y: values[i]})
			i++
		}
	}

	data, err := EncodeDepth(img)
	if err != nil {
		t.Fatalf("EncodeDepth failed: %v", err)
	}
	got, err := DecodeDepth(data)
	if err != nil {
		t.Fatalf("DecodeDepth failed: %v", err)
	}

	if got.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v, want %v", got.Bounds(), img.Bounds())
	}
	if !bytes.Equal(got.Pix, img.Pix) {
		t.Error("decoded depth values differ from original")
	}
}

func TestDecodeDepthRejectsColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	data, err := EncodeRGB(img)
	if err != nil {
		t.Fatalf("EncodeRGB failed: %v", err)
	}
	if _, err := DecodeDepth(data); err == nil {
		t.Error("expected error for color input")
	}
}

func TestDepthAt(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 3))
	img.SetGray16(1, 1, color.Gray16{Y: 12345})

	got, err := DepthAt(img, 1, 1, 10000)
	if err != nil {
		t.Fatalf("DepthAt failed: %v", err)
	}
	if want := 1.2345; got != want {
		t.Errorf("DepthAt(1, 1) = %v, want %v", got, want)
	}

	// A pixel with no sensor return reads as zero meters.
	got, err = DepthAt(img, 0, 0, 10000)
	if err != nil {
		t.Fatalf("DepthAt failed: %v", err)
	}
	if got != 0 {
		t.Errorf("DepthAt(0, 0) = %v, want 0", got)
	}

	if _, err := DepthAt(img, 5, 5, 10000); err == nil {
		t.Error("expected error for out of bounds pixel")
	}
	if _, err := DepthAt(img, 1, 1, 0); err == nil {
		t.Error("expected error for zero depth scale")
	}
	if _, err := DepthAt(img, 1, 1, -1); err == nil {
		t.Error("expected error for negative depth scale")
	}
}
