package shader

import "math"

// Ease maps linear progress to the curve every effect sees: a sine ease-out,
// sin(linear*pi/2). Input is clamped to [0, 1].
func Ease(linear float64) float64 {
	if linear <= 0 {
		return 0
	}
	if linear >= 1 {
		return 1
	}
	return math.Sin(linear * math.Pi / 2)
}
