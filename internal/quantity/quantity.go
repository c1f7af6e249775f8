// Package quantity identifies the physical traffic quantities the filter
// estimates. A Quantity is a comparable value; two quantities denote the same
// property when their names match.
package quantity

import (
	"fmt"
	"strings"

	"github.com/banshee-data/speedfield/internal/units"
)

// Quantity is a named measurement type with SI storage and a display unit.
type Quantity struct {
	name  string
	speed bool
	unit  string
}

// Predefined traffic quantities.
var (
	Speed   = NewSpeed("Speed", units.KMPH)
	Flow    = New("Flow", units.VehPerHour)
	Density = New("Density", units.VehPerKilometer)
)

// New returns a non-speed quantity shown in the given display unit.
func New(name, unit string) Quantity {
	return Quantity{name: name, unit: unit}
}

// NewSpeed returns a speed quantity. The filter uses speed quantities to
// derive its congestion indicator.
func NewSpeed(name, unit string) Quantity {
	return Quantity{name: name, speed: true, unit: unit}
}

// WithUnit returns q shown in another display unit. The unit must be one of
// units.ValidUnits and, unless it is units.SI, of the same dimension as the
// current one. The result still equals q.
func (q Quantity) WithUnit(unit string) (Quantity, error) {
	if !units.IsValid(unit) {
		return Quantity{}, fmt.Errorf("%s: invalid unit %q, must be one of: %s", q.name, unit, units.GetValidUnitsString())
	}
	if want := units.Dimension(q.unit); unit != units.SI && want != "" && units.Dimension(unit) != want {
		return Quantity{}, fmt.Errorf("%s: unit %q is not a %s unit", q.name, unit, want)
	}
	q.unit = unit
	return q, nil
}

// Name identifies the quantity.
func (q Quantity) Name() string { return q.name }

// IsSpeed reports whether the quantity is a speed.
func (q Quantity) IsSpeed() bool { return q.speed }

// Unit is the display unit used by Convert.
func (q Quantity) Unit() string { return q.unit }

// IsZero reports whether q is the zero Quantity, which stands for an absent
// reference in the filter API.
func (q Quantity) IsZero() bool { return q.name == "" }

// Equal compares by name.
func (q Quantity) Equal(o Quantity) bool { return q.name == o.name }

func (q Quantity) String() string {
	if q.unit == "" {
		return q.name
	}
	return q.name + " [" + q.unit + "]"
}

// Convert returns a copy of an SI-valued grid in the quantity's display unit.
// NaN cells stay NaN.
func (q Quantity) Convert(si [][]float64) [][]float64 {
	out := make([][]float64, len(si))
	for i, row := range si {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = units.FromSI(v, q.unit)
		}
	}
	return out
}

// FromDisplay converts a single display-unit value to SI.
func (q Quantity) FromDisplay(v float64) float64 {
	return units.ToSI(v, q.unit)
}

// Lookup resolves a quantity name case-insensitively against the predefined
// quantities.
func Lookup(name string) (Quantity, bool) {
	for _, q := range []Quantity{Speed, Flow, Density} {
		if strings.EqualFold(q.name, name) {
			return q, true
		}
	}
	return Quantity{}, false
}
