package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/speedfield/internal/units"
)

// DefaultConfigPath is the path to the canonical filter defaults file.
const DefaultConfigPath = "config/filter.defaults.json"

// Kernel shapes
const (
	ShapeExponential = "exponential"
	ShapeGaussian    = "gaussian"
)

// Algorithms
const (
	AlgorithmDirect = "direct"
	AlgorithmFast   = "fast"
)

// Convolution strategies for the fast algorithm
const (
	ConvolutionFFT    = "fft"
	ConvolutionDirect = "direct"
)

// StreamConfig holds the reliability of one quantity for a data source.
// Thetas are given in the quantity's display unit.
type StreamConfig struct {
	Source    string   `json:"source"`
	Quantity  string   `json:"quantity"`
	ThetaCong *float64 `json:"theta_cong,omitempty"`
	ThetaFree *float64 `json:"theta_free,omitempty"`
}

// FilterConfig represents the root configuration of the fusion filter.
// Unset fields fall back to the calibrated defaults through the Get* methods,
// so partial configs are safe.
type FilterConfig struct {
	// Wave model, all in km/h
	CongestionWaveSpeed *float64 `json:"congestion_wave_speed,omitempty"`
	FreeFlowWaveSpeed   *float64 `json:"free_flow_wave_speed,omitempty"`
	SpeedScale          *float64 `json:"speed_scale,omitempty"`
	ThresholdSpeed      *float64 `json:"threshold_speed,omitempty"`

	// Kernel
	KernelShape *string  `json:"kernel_shape,omitempty"` // "exponential" or "gaussian"
	Sigma       *float64 `json:"sigma,omitempty"`        // m
	Tau         *float64 `json:"tau,omitempty"`          // s
	XMax        *float64 `json:"x_max,omitempty"`        // m, unset means unbounded
	TMax        *float64 `json:"t_max,omitempty"`        // s, unset means unbounded

	// Algorithm selection
	Algorithm   *string `json:"algorithm,omitempty"`   // "direct" or "fast"
	Convolution *string `json:"convolution,omitempty"` // "fft" or "direct"

	// Data source reliability
	Streams []StreamConfig `json:"streams,omitempty"`
}

// EmptyFilterConfig returns a FilterConfig with all fields set to nil.
func EmptyFilterConfig() *FilterConfig {
	return &FilterConfig{}
}

// LoadFilterConfig loads a FilterConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadFilterConfig(path string) (*FilterConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFilterConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical filter defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *FilterConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFilterConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FilterConfig) Validate() error {
	type field struct {
		name string
		v    *float64
	}

	for _, f := range []field{
		{"congestion_wave_speed", c.CongestionWaveSpeed},
		{"free_flow_wave_speed", c.FreeFlowWaveSpeed},
	} {
		if f.v != nil && (*f.v == 0 || math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%s must be finite and non-zero, got %f", f.name, *f.v)
		}
	}

	for _, f := range []field{
		{"speed_scale", c.SpeedScale},
		{"sigma", c.Sigma},
		{"tau", c.Tau},
		{"x_max", c.XMax},
		{"t_max", c.TMax},
	} {
		if f.v != nil && !(*f.v > 0) {
			return fmt.Errorf("%s must be positive, got %f", f.name, *f.v)
		}
	}

	if c.KernelShape != nil {
		switch *c.KernelShape {
		case ShapeExponential, ShapeGaussian:
		default:
			return fmt.Errorf("unsupported kernel_shape %q: expected %s or %s", *c.KernelShape, ShapeExponential, ShapeGaussian)
		}
	}

	if c.Algorithm != nil {
		switch *c.Algorithm {
		case AlgorithmDirect, AlgorithmFast:
		default:
			return fmt.Errorf("unsupported algorithm %q: expected %s or %s", *c.Algorithm, AlgorithmDirect, AlgorithmFast)
		}
	}

	if c.Convolution != nil {
		switch *c.Convolution {
		case ConvolutionFFT, ConvolutionDirect:
		default:
			return fmt.Errorf("unsupported convolution %q: expected %s or %s", *c.Convolution, ConvolutionFFT, ConvolutionDirect)
		}
	}

	seen := make(map[[2]string]bool)
	for i, s := range c.Streams {
		if s.Source == "" || s.Quantity == "" {
			return fmt.Errorf("streams[%d]: source and quantity are required", i)
		}
		key := [2]string{s.Source, s.Quantity}
		if seen[key] {
			return fmt.Errorf("streams[%d]: duplicate stream %s/%s", i, s.Source, s.Quantity)
		}
		seen[key] = true
		if (s.ThetaCong != nil && !(*s.ThetaCong > 0)) || (s.ThetaFree != nil && !(*s.ThetaFree > 0)) {
			return fmt.Errorf("streams[%d]: thetas must be positive", i)
		}
	}

	return nil
}

// GetCongestionWaveSpeed returns the congestion wave speed in km/h or the default.
func (c *FilterConfig) GetCongestionWaveSpeed() float64 {
	if c.CongestionWaveSpeed == nil {
		return -18.0
	}
	return *c.CongestionWaveSpeed
}

// GetFreeFlowWaveSpeed returns the free-flow wave speed in km/h or the default.
func (c *FilterConfig) GetFreeFlowWaveSpeed() float64 {
	if c.FreeFlowWaveSpeed == nil {
		return 80.0
	}
	return *c.FreeFlowWaveSpeed
}

// GetSpeedScale returns the congestion indicator speed scale in km/h or the default.
func (c *FilterConfig) GetSpeedScale() float64 {
	if c.SpeedScale == nil {
		return 10.0
	}
	return *c.SpeedScale
}

// GetThresholdSpeed returns the congestion threshold speed in km/h or the default.
func (c *FilterConfig) GetThresholdSpeed() float64 {
	if c.ThresholdSpeed == nil {
		return 80.0
	}
	return *c.ThresholdSpeed
}

// GetKernelShape returns the kernel shape or the default.
func (c *FilterConfig) GetKernelShape() string {
	if c.KernelShape == nil {
		return ShapeExponential
	}
	return *c.KernelShape
}

// GetSigma returns the spatial kernel width in m or the default.
func (c *FilterConfig) GetSigma() float64 {
	if c.Sigma == nil {
		return 300.0
	}
	return *c.Sigma
}

// GetTau returns the temporal kernel width in s or the default.
func (c *FilterConfig) GetTau() float64 {
	if c.Tau == nil {
		return 30.0
	}
	return *c.Tau
}

// GetXMax returns the spatial kernel bound in m; unset means +Inf.
func (c *FilterConfig) GetXMax() float64 {
	if c.XMax == nil {
		return math.Inf(1)
	}
	return *c.XMax
}

// GetTMax returns the temporal kernel bound in s; unset means +Inf.
func (c *FilterConfig) GetTMax() float64 {
	if c.TMax == nil {
		return math.Inf(1)
	}
	return *c.TMax
}

// GetAlgorithm returns the algorithm name or the default.
func (c *FilterConfig) GetAlgorithm() string {
	if c.Algorithm == nil {
		return AlgorithmDirect
	}
	return *c.Algorithm
}

// GetConvolution returns the convolution strategy or the default.
func (c *FilterConfig) GetConvolution() string {
	if c.Convolution == nil {
		return ConvolutionFFT
	}
	return *c.Convolution
}

// ThetaCongSI returns the congestion theta of the stream in SI, converting
// from the given display unit. Unset thetas default to 1.0 SI.
func (s StreamConfig) ThetaCongSI(unit string) float64 {
	if s.ThetaCong == nil {
		return 1.0
	}
	return units.ToSI(*s.ThetaCong, unit)
}

// ThetaFreeSI returns the free-flow theta of the stream in SI.
func (s StreamConfig) ThetaFreeSI(unit string) float64 {
	if s.ThetaFree == nil {
		return 1.0
	}
	return units.ToSI(*s.ThetaFree, unit)
}
