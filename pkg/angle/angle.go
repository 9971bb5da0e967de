package angle

import "math"

// PlusMinusPi is a heading in radians, stored as a value in range (-π, π].
// All operations wrap their output into range.
type PlusMinusPi struct {
	float64
}

func (a PlusMinusPi) Add(b PlusMinusPi) PlusMinusPi {
	return FromRadians(a.float64 + b.float64)
}

func (a PlusMinusPi) Sub(b PlusMinusPi) PlusMinusPi {
	return FromRadians(a.float64 - b.float64)
}

// Radians returns the angle in radians, range (-π, π].
func (a PlusMinusPi) Radians() float64 {
	return a.float64
}

func (a PlusMinusPi) Degrees() float64 {
	return ToDegrees(a.float64)
}

// FromRadians converts an angle of any magnitude to a PlusMinusPi by
// calculating r mod 2π and shifting into range.
func FromRadians(r float64) PlusMinusPi {
	d := math.Mod(r, 2*math.Pi)
	if d <= -math.Pi {
		d += 2 * math.Pi
	} else if d > math.Pi {
		d -= 2 * math.Pi
	}
	return PlusMinusPi{d}
}

func FromDegrees(d float64) PlusMinusPi {
	return FromRadians(ToRadians(d))
}

// Shortest returns the signed rotation, in radians, that takes heading from
// to heading to.  Positive is CCW.
func Shortest(from, to float64) float64 {
	return FromRadians(to - from).Radians()
}

func ToRadians(d float64) float64 {
	return d * math.Pi / 180
}

func ToDegrees(r float64) float64 {
	return r * 180 / math.Pi
}
