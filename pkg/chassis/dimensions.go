package chassis

import "math"

// Measured on the SoccerBot build.
const (
	WheelRadiusCM float64 = 2.072
	TrackWidthCM  float64 = 18.2
)

// Chassis describes a two-wheel differential drive.  Each wheel may have its
// own radius to absorb calibration differences.
type Chassis struct {
	LeftRadiusCM  float64 `mapstructure:"leftRadiusCM" yaml:"leftRadiusCM"`
	RightRadiusCM float64 `mapstructure:"rightRadiusCM" yaml:"rightRadiusCM"`
	TrackWidthCM  float64 `mapstructure:"trackWidthCM" yaml:"trackWidthCM"`
}

func Default() Chassis {
	return Chassis{
		LeftRadiusCM:  WheelRadiusCM,
		RightRadiusCM: WheelRadiusCM,
		TrackWidthCM:  TrackWidthCM,
	}
}

// DistanceToWheelDegrees returns how far (in degrees) a wheel of the given
// radius has to turn to roll distanceCM.
func DistanceToWheelDegrees(radiusCM, distanceCM float64) float64 {
	return (180.0 * distanceCM) / (math.Pi * radiusCM)
}

// WheelDegreesToDistance is the inverse of DistanceToWheelDegrees.
func WheelDegreesToDistance(radiusCM, degrees float64) float64 {
	return degrees * math.Pi * radiusCM / 180.0
}

// LeftDegrees and RightDegrees return the wheel angle for a straight move.
func (c Chassis) LeftDegrees(distanceCM float64) float64 {
	return DistanceToWheelDegrees(c.LeftRadiusCM, distanceCM)
}

func (c Chassis) RightDegrees(distanceCM float64) float64 {
	return DistanceToWheelDegrees(c.RightRadiusCM, distanceCM)
}

// SpinDegrees returns the wheel angle each wheel must turn (in opposite
// directions) for the bot to rotate in place by rotation radians.
func (c Chassis) SpinDegrees(radius, rotation float64) float64 {
	return DistanceToWheelDegrees(radius, c.TrackWidthCM*rotation/2)
}
