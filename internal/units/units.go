// Package units provides shared constants, validation and SI conversion for
// the traffic quantities handled by the filter: speed, flow and density.
package units

import "strings"

// Speed units
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Flow units
const (
	VehPerSecond = "veh/s"
	VehPerHour   = "veh/h"
)

// Density units
const (
	VehPerMeter     = "veh/m"
	VehPerKilometer = "veh/km"
	VehPerMile      = "veh/mi"
)

// Plain SI values with no display transform, e.g. for dimensionless quantities.
const SI = "si"

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, VehPerSecond, VehPerHour, VehPerMeter, VehPerKilometer, VehPerMile, SI}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// Dimension names the physical dimension of a unit: "speed", "flow",
// "density", or "" for SI and unknown units.
func Dimension(unit string) string {
	switch unit {
	case MPS, MPH, KMPH, KPH:
		return "speed"
	case VehPerSecond, VehPerHour:
		return "flow"
	case VehPerMeter, VehPerKilometer, VehPerMile:
		return "density"
	default:
		return ""
	}
}

// FromSI converts an SI value (m/s, veh/s, veh/m) to the given display unit.
// Unknown units return the value unchanged.
func FromSI(v float64, unit string) float64 {
	switch unit {
	case MPS, MPH, KMPH, KPH:
		return ConvertSpeed(v, unit)
	case VehPerSecond, VehPerHour:
		return ConvertFlow(v, unit)
	case VehPerMeter, VehPerKilometer, VehPerMile:
		return ConvertDensity(v, unit)
	default:
		return v
	}
}

// ToSI is the inverse of FromSI.
func ToSI(v float64, unit string) float64 {
	switch unit {
	case MPS, MPH, KMPH, KPH:
		return ConvertToMPS(v, unit)
	case VehPerSecond, VehPerHour:
		return ConvertToVehPerSecond(v, unit)
	case VehPerMeter, VehPerKilometer, VehPerMile:
		return ConvertToVehPerMeter(v, unit)
	default:
		return v
	}
}
