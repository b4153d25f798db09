package camera

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"time"

	"github.com/strandbotics/homebase/internal/geom"
)

// Info carries per-frame camera metadata: capture time, image geometry,
// pinhole intrinsics and the camera pose in the robot base frame. The pose
// vector layout is [x y z qw qx qy qz].
type Info struct {
	T      float64    `json:"t"`
	Width  int        `json:"w"`
	Height int        `json:"h"`
	Fx     float64    `json:"fx"`
	Fy     float64    `json:"fy"`
	Cx     float64    `json:"cx"`
	Cy     float64    `json:"cy"`
	Pose   [7]float64 `json:"pose"`
}

// ParseInfo decodes an info frame payload.
func ParseInfo(data []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("failed to parse camera info: %w", err)
	}
	if info.T == 0 {
		return Info{}, fmt.Errorf("camera info missing timestamp")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, fmt.Errorf("camera info has invalid geometry %dx%d", info.Width, info.Height)
	}
	return info, nil
}

// CameraPose returns the camera pose in the robot base frame.
func (i Info) CameraPose() geom.PosQuat {
	return geom.PosQuatFromVector7(i.Pose)
}

// Time converts the frame timestamp to wall-clock time.
func (i Info) Time() time.Time {
	sec, frac := math.Modf(i.T)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// DecodeRGB decodes a PNG color frame. Images decoded in another layout are
// converted to RGBA.
func DecodeRGB(data []byte) (*image.RGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode color frame: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// DecodeDepth decodes a 16-bit grayscale PNG depth frame.
func DecodeDepth(data []byte) (*image.Gray16, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode depth frame: %w", err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, fmt.Errorf("depth frame decoded as %T, want 16-bit grayscale", img)
	}
	return gray, nil
}

// DepthAt returns the depth at pixel (x, y) in meters. Depth images store
// counts of 1/depthScale meters, so a scale of 10000 gives 0.1 mm steps.
// A zero reading means the sensor had no return at that pixel.
func DepthAt(img *image.Gray16, x, y int, depthScale float64) (float64, error) {
	if depthScale <= 0 {
		return 0, fmt.Errorf("depth scale must be positive, got %g", depthScale)
	}
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return 0, fmt.Errorf("pixel (%d, %d) outside image bounds %v", x, y, img.Bounds())
	}
	return float64(img.Gray16At(x, y).Y) / depthScale, nil
}

// EncodeRGB encodes a color frame as PNG.
func EncodeRGB(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode color frame: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDepth encodes a depth frame as 16-bit grayscale PNG.
func EncodeDepth(img *image.Gray16) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode depth frame: %w", err)
	}
	return buf.Bytes(), nil
}
