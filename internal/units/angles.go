package units

import "math"

// Angle unit constants
const (
	RAD = "rad"
	DEG = "deg"
)

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{RAD, DEG}

// IsValidAngleUnit checks if the given unit is a supported angle unit
func IsValidAngleUnit(unit string) bool {
	for _, validUnit := range ValidAngleUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidAngleUnitsString returns a comma-separated string of valid angle units for error messages
func GetValidAngleUnitsString() string {
	return "rad, deg"
}

// DegToRad converts degrees to radians
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// ConvertToRad converts an angle in the given units to radians. Goal headings
// arrive at the API in either unit; the controller only sees radians.
func ConvertToRad(angle float64, fromUnits string) float64 {
	switch fromUnits {
	case DEG:
		return DegToRad(angle)
	default:
		return angle
	}
}
