package heating

import (
	"fmt"
	"math"
)

// CurveParams describes offset + multiplier / (1 + e^(-sharpness*(x - turning_point))).
type CurveParams struct {
	Sharpness    float64
	TurningPoint float64
	Multiplier   float64
	Offset       float64
}

func (p CurveParams) Validate() error {
	for _, v := range []float64{p.Sharpness, p.TurningPoint, p.Multiplier, p.Offset} {
		if !finite(v) {
			return ErrInvalidCurve
		}
	}
	return nil
}

// Compute evaluates the curve at x.
func (p CurveParams) Compute(x float64) (float64, error) {
	if !finite(x) {
		return 0, fmt.Errorf("%w: outside temperature %v", ErrInvalidInput, x)
	}
	return p.Offset + p.Multiplier/(1+math.Exp(-p.Sharpness*(x-p.TurningPoint))), nil
}

// WorkingRange is the target tank temperature band.
type WorkingRange struct {
	Min float64
	Max float64
}

func (r WorkingRange) Width() float64 { return r.Max - r.Min }

// Position maps t onto the range: 0 at Min, 1 at Max. Not ok when the range
// is degenerate or t is not finite.
func (r WorkingRange) Position(t float64) (float64, bool) {
	w := r.Width()
	if w <= 0 || !finite(t) {
		return 0, false
	}
	return (t - r.Min) / w, true
}

// WorkingTempModel holds the two independent curves of the working range.
type WorkingTempModel struct {
	Min CurveParams
	Max CurveParams
}

func (m WorkingTempModel) Validate() error {
	if err := m.Min.Validate(); err != nil {
		return fmt.Errorf("min: %w", err)
	}
	if err := m.Max.Validate(); err != nil {
		return fmt.Errorf("max: %w", err)
	}
	return nil
}

// Range computes both bounds at the given outside temperature. When the min
// curve lands above the max curve, max is clamped to min and clamped is true.
func (m WorkingTempModel) Range(outside float64) (r WorkingRange, clamped bool, err error) {
	if r.Min, err = m.Min.Compute(outside); err != nil {
		return WorkingRange{}, false, err
	}
	if r.Max, err = m.Max.Compute(outside); err != nil {
		return WorkingRange{}, false, err
	}
	if r.Min > r.Max {
		r.Max = r.Min
		clamped = true
	}
	return r, clamped, nil
}
