package units

const metersPerMile = 1609.344

// ConvertFlow converts a flow in vehicles per second to the target units
func ConvertFlow(vehPerSecond float64, targetUnits string) float64 {
	switch targetUnits {
	case VehPerHour:
		return vehPerSecond * 3600
	default:
		return vehPerSecond
	}
}

// ConvertToVehPerSecond converts a flow in the given units to vehicles per second
func ConvertToVehPerSecond(flow float64, fromUnits string) float64 {
	switch fromUnits {
	case VehPerHour:
		return flow / 3600
	default:
		return flow
	}
}

// ConvertDensity converts a density in vehicles per meter to the target units
func ConvertDensity(vehPerMeter float64, targetUnits string) float64 {
	switch targetUnits {
	case VehPerKilometer:
		return vehPerMeter * 1000
	case VehPerMile:
		return vehPerMeter * metersPerMile
	default:
		return vehPerMeter
	}
}

// ConvertToVehPerMeter converts a density in the given units to vehicles per meter
func ConvertToVehPerMeter(density float64, fromUnits string) float64 {
	switch fromUnits {
	case VehPerKilometer:
		return density / 1000
	case VehPerMile:
		return density / metersPerMile
	default:
		return density
	}
}
