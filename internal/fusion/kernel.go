package fusion

import (
	"fmt"
	"math"
)

// Default kernel widths.
const (
	DefaultSigma = 300.0 // m
	DefaultTau   = 30.0  // s
)

// Shape computes the weight of a measurement at offset (dx, dt) from the
// estimation point, given the assumed propagation speed c. dt - dx/c is the
// time offset along the characteristic line through the measurement.
type Shape interface {
	Weight(c, dx, dt float64) float64
}

// ExpShape weighs by exp(-|dx|/sigma - |dt - dx/c|/tau).
type ExpShape struct {
	sigma, tau float64
}

// NewExpShape returns an exponential shape with spatial width sigma (m) and
// temporal width tau (s).
func NewExpShape(sigma, tau float64) (ExpShape, error) {
	if err := checkWidths(sigma, tau); err != nil {
		return ExpShape{}, err
	}
	return ExpShape{sigma: sigma, tau: tau}, nil
}

// Weight implements Shape.
func (s ExpShape) Weight(c, dx, dt float64) float64 {
	return math.Exp(-math.Abs(dx)/s.sigma - math.Abs(dt-dx/c)/s.tau)
}

// Sigma is the spatial width in m.
func (s ExpShape) Sigma() float64 { return s.sigma }

// Tau is the temporal width in s.
func (s ExpShape) Tau() float64 { return s.tau }

func (s ExpShape) String() string {
	return fmt.Sprintf("exp(sigma=%gm, tau=%gs)", s.sigma, s.tau)
}

// GaussShape weighs by exp(-dx^2/(2 sigma^2) - (dt - dx/c)^2/(2 tau^2)).
type GaussShape struct {
	sigma, tau float64
}

// NewGaussShape returns a Gaussian shape with spatial width sigma (m) and
// temporal width tau (s).
func NewGaussShape(sigma, tau float64) (GaussShape, error) {
	if err := checkWidths(sigma, tau); err != nil {
		return GaussShape{}, err
	}
	return GaussShape{sigma: sigma, tau: tau}, nil
}

// Weight implements Shape.
func (s GaussShape) Weight(c, dx, dt float64) float64 {
	ddt := dt - dx/c
	return math.Exp(-(dx*dx)/(2*s.sigma*s.sigma) - (ddt*ddt)/(2*s.tau*s.tau))
}

// Sigma is the spatial width in m.
func (s GaussShape) Sigma() float64 { return s.sigma }

// Tau is the temporal width in s.
func (s GaussShape) Tau() float64 { return s.tau }

func (s GaussShape) String() string {
	return fmt.Sprintf("gauss(sigma=%gm, tau=%gs)", s.sigma, s.tau)
}

func checkWidths(sigma, tau float64) error {
	if !(sigma > 0) || !(tau > 0) || math.IsInf(sigma, 0) || math.IsInf(tau, 0) {
		return fmt.Errorf("sigma=%v tau=%v: %w", sigma, tau, ErrInvalidKernel)
	}
	return nil
}

// Kernel bounds the support of a Shape to |dx| <= xMax and |dt| <= tMax.
// Either bound may be +Inf. Kernels are immutable.
type Kernel struct {
	xMax, tMax float64
	shape      Shape
}

// NewKernel returns a kernel over shape with the given bounds.
func NewKernel(xMax, tMax float64, shape Shape) (*Kernel, error) {
	if shape == nil {
		return nil, fmt.Errorf("kernel shape: %w", ErrNilArgument)
	}
	if !(xMax > 0) || !(tMax > 0) {
		return nil, fmt.Errorf("xMax=%v tMax=%v: %w", xMax, tMax, ErrInvalidKernel)
	}
	return &Kernel{xMax: xMax, tMax: tMax, shape: shape}, nil
}

// DefaultKernel is the unbounded exponential kernel with default widths.
func DefaultKernel() *Kernel {
	return &Kernel{
		xMax:  math.Inf(1),
		tMax:  math.Inf(1),
		shape: ExpShape{sigma: DefaultSigma, tau: DefaultTau},
	}
}

// Weight delegates to the shape.
func (k *Kernel) Weight(c, dx, dt float64) float64 {
	return k.shape.Weight(c, dx, dt)
}

// FromLocation is the lowest location within support of x.
func (k *Kernel) FromLocation(x float64) float64 { return x - k.xMax }

// ToLocation is the highest location within support of x.
func (k *Kernel) ToLocation(x float64) float64 { return x + k.xMax }

// FromTime is the earliest time within support of t.
func (k *Kernel) FromTime(t float64) float64 { return t - k.tMax }

// ToTime is the latest time within support of t.
func (k *Kernel) ToTime(t float64) float64 { return t + k.tMax }

// XMax is the spatial bound in m.
func (k *Kernel) XMax() float64 { return k.xMax }

// TMax is the temporal bound in s.
func (k *Kernel) TMax() float64 { return k.tMax }

// Shape returns the weight function.
func (k *Kernel) Shape() Shape { return k.shape }

// Bounded reports whether both bounds are finite.
func (k *Kernel) Bounded() bool {
	return !math.IsInf(k.xMax, 1) && !math.IsInf(k.tMax, 1)
}

func (k *Kernel) String() string {
	return fmt.Sprintf("Kernel[xMax=%g, tMax=%g, %v]", k.xMax, k.tMax, k.shape)
}
