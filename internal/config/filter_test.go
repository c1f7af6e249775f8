package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

func TestEmptyFilterConfigDefaults(t *testing.T) {
	cfg := EmptyFilterConfig()

	if cfg.GetCongestionWaveSpeed() != -18.0 {
		t.Errorf("GetCongestionWaveSpeed() = %f, want -18", cfg.GetCongestionWaveSpeed())
	}
	if cfg.GetFreeFlowWaveSpeed() != 80.0 {
		t.Errorf("GetFreeFlowWaveSpeed() = %f, want 80", cfg.GetFreeFlowWaveSpeed())
	}
	if cfg.GetSpeedScale() != 10.0 {
		t.Errorf("GetSpeedScale() = %f, want 10", cfg.GetSpeedScale())
	}
	if cfg.GetThresholdSpeed() != 80.0 {
		t.Errorf("GetThresholdSpeed() = %f, want 80", cfg.GetThresholdSpeed())
	}
	if cfg.GetKernelShape() != ShapeExponential {
		t.Errorf("GetKernelShape() = %s, want %s", cfg.GetKernelShape(), ShapeExponential)
	}
	if cfg.GetSigma() != 300.0 || cfg.GetTau() != 30.0 {
		t.Errorf("kernel widths = %f/%f, want 300/30", cfg.GetSigma(), cfg.GetTau())
	}
	if !math.IsInf(cfg.GetXMax(), 1) || !math.IsInf(cfg.GetTMax(), 1) {
		t.Errorf("kernel bounds = %f/%f, want +Inf", cfg.GetXMax(), cfg.GetTMax())
	}
	if cfg.GetAlgorithm() != AlgorithmDirect {
		t.Errorf("GetAlgorithm() = %s, want %s", cfg.GetAlgorithm(), AlgorithmDirect)
	}
	if cfg.GetConvolution() != ConvolutionFFT {
		t.Errorf("GetConvolution() = %s, want %s", cfg.GetConvolution(), ConvolutionFFT)
	}
}

func TestLoadFilterConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "filter.json")

	testJSON := `{
  "congestion_wave_speed": -15,
  "kernel_shape": "gaussian",
  "sigma": 200,
  "x_max": 1000,
  "algorithm": "fast",
  "streams": [
    {"source": "loops", "quantity": "speed", "theta_cong": 7.2, "theta_free": 3.6}
  ]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFilterConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetCongestionWaveSpeed() != -15 {
		t.Errorf("GetCongestionWaveSpeed() = %f, want -15", cfg.GetCongestionWaveSpeed())
	}
	if cfg.GetKernelShape() != ShapeGaussian {
		t.Errorf("GetKernelShape() = %s, want gaussian", cfg.GetKernelShape())
	}
	if cfg.GetXMax() != 1000 {
		t.Errorf("GetXMax() = %f, want 1000", cfg.GetXMax())
	}
	// unset fields keep defaults
	if cfg.GetTau() != 30 {
		t.Errorf("GetTau() = %f, want 30", cfg.GetTau())
	}
	if len(cfg.Streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(cfg.Streams))
	}
	if got := cfg.Streams[0].ThetaCongSI("kmph"); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("ThetaCongSI = %f, want 2", got)
	}
	if got := cfg.Streams[0].ThetaFreeSI("kmph"); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("ThetaFreeSI = %f, want 1", got)
	}
}

func TestLoadFilterConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFilterConfig("/nonexistent/path/to/config.json"); err == nil {
			t.Error("Expected error when loading missing file, got nil")
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		if _, err := LoadFilterConfig(filepath.Join(tmpDir, "config.yaml")); err == nil {
			t.Error("Expected error for non-json extension, got nil")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		p := filepath.Join(tmpDir, "invalid.json")
		if err := os.WriteFile(p, []byte(`{"sigma": "wide"`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFilterConfig(p); err == nil {
			t.Error("Expected error when loading invalid JSON, got nil")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		p := filepath.Join(tmpDir, "bad_values.json")
		if err := os.WriteFile(p, []byte(`{"tau": -1}`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFilterConfig(p); err == nil {
			t.Error("Expected validation error, got nil")
		}
	})
}

func TestValidate(t *testing.T) {
	theta := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		cfg     FilterConfig
		wantErr bool
	}{
		{"empty config", FilterConfig{}, false},
		{"zero congestion wave", FilterConfig{CongestionWaveSpeed: ptrFloat64(0)}, true},
		{"infinite free wave", FilterConfig{FreeFlowWaveSpeed: ptrFloat64(math.Inf(1))}, true},
		{"negative speed scale", FilterConfig{SpeedScale: ptrFloat64(-1)}, true},
		{"zero sigma", FilterConfig{Sigma: ptrFloat64(0)}, true},
		{"valid bounds", FilterConfig{XMax: ptrFloat64(500), TMax: ptrFloat64(60)}, false},
		{"unknown shape", FilterConfig{KernelShape: ptrString("triangle")}, true},
		{"unknown algorithm", FilterConfig{Algorithm: ptrString("magic")}, true},
		{"unknown convolution", FilterConfig{Convolution: ptrString("wavelet")}, true},
		{"stream without source", FilterConfig{Streams: []StreamConfig{{Quantity: "speed"}}}, true},
		{"duplicate stream", FilterConfig{Streams: []StreamConfig{
			{Source: "a", Quantity: "speed"}, {Source: "a", Quantity: "speed"},
		}}, true},
		{"negative theta", FilterConfig{Streams: []StreamConfig{
			{Source: "a", Quantity: "speed", ThetaCong: theta(-2)},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetThresholdSpeed() != 80.0 {
		t.Errorf("default threshold speed = %f, want 80", cfg.GetThresholdSpeed())
	}
	if cfg.GetAlgorithm() != AlgorithmDirect {
		t.Errorf("default algorithm = %s, want direct", cfg.GetAlgorithm())
	}
}
