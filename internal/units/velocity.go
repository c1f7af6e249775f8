package units

const mpsToMPH = 2.2369362920544

// ConvertSpeed converts a speed from meters per second to the target units
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * mpsToMPH
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ConvertToMPS converts a speed in the given units to meters per second
func ConvertToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case MPS:
		return speed
	case MPH:
		return speed / mpsToMPH
	case KMPH, KPH:
		return speed / 3.6
	default:
		return speed
	}
}

// KmhToMPS is a shorthand for ConvertToMPS(v, KMPH), used for the filter's
// wave speed parameters which are always configured in km/h.
func KmhToMPS(v float64) float64 {
	return v / 3.6
}
