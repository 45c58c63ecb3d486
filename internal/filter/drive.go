package filter

import "math"

// CurveSize is the number of points in a drive curve.
const CurveSize = 1024

// Curve is a waveshaping transfer function sampled over [-1,1].
type Curve [CurveSize]float32

// NewDriveCurve samples tanh(x*(1+drive*8)).
func NewDriveCurve(drive float64) *Curve {
	amount := 1 + drive*8
	var c Curve
	for i := range c {
		x := float64(i)/float64(CurveSize-1)*2 - 1
		c[i] = float32(math.Tanh(x * amount))
	}
	return &c
}

// Apply shapes one sample. Inputs outside [-1,1] take the end values.
func (c *Curve) Apply(x float32) float32 {
	v := float32(CurveSize-1) * 0.5 * (x + 1)
	if !(v > 0) {
		return c[0]
	}
	if v >= CurveSize-1 {
		return c[CurveSize-1]
	}
	k := int(v)
	f := v - float32(k)
	return c[k] + (c[k+1]-c[k])*f
}
