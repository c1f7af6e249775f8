package fusion

// WeightedMean accumulates sum(w*v) / sum(w). An empty mean is NaN.
type WeightedMean struct {
	Numerator   float64
	Denominator float64
}

// Add accumulates value v with weight w.
func (m *WeightedMean) Add(v, w float64) {
	m.Numerator += v * w
	m.Denominator += w
}

// Mean returns the weighted mean; 0/0 yields NaN.
func (m WeightedMean) Mean() float64 {
	return m.Numerator / m.Denominator
}

// DualWeightedMean keeps one weighted mean per wave hypothesis.
type DualWeightedMean struct {
	Cong WeightedMean
	Free WeightedMean
}

// Add accumulates v with the congestion and free-flow kernel weights.
func (m *DualWeightedMean) Add(v, phiCong, phiFree float64) {
	m.Cong.Add(v, phiCong)
	m.Free.Add(v, phiFree)
}
