package picobldc

// CountsPerRev is the resolution of the travel counters.
const CountsPerRev = 256

type travelReader interface {
	RawDistancesTraveled() (PerMotorVal[int16], error)
}

// WheelTracker turns the controller's wrapping 16-bit travel counters into
// cumulative wheel angles in degrees.
type WheelTracker struct {
	pico  travelReader
	start PerMotorVal[float64]

	seeded bool
	last   PerMotorVal[int16]
	counts PerMotorVal[int64]
}

// NewWheelTracker returns a tracker whose totals begin at start, so that a
// tracker on a freshly reopened controller carries on where the old one
// stopped.
func NewWheelTracker(pico travelReader, start PerMotorVal[float64]) *WheelTracker {
	return &WheelTracker{
		pico:  pico,
		start: start,
	}
}

// Poll reads the counters and returns the updated totals.  The first poll
// only records where the counters are.
func (w *WheelTracker) Poll() (PerMotorVal[float64], error) {
	raw, err := w.pico.RawDistancesTraveled()
	if err != nil {
		return w.Degrees(), err
	}
	if w.seeded {
		for m := range raw {
			// int16 subtraction wraps the same way the counters do.
			w.counts[m] += int64(raw[m] - w.last[m])
		}
	}
	w.last = raw
	w.seeded = true
	return w.Degrees(), nil
}

func (w *WheelTracker) Degrees() (deg PerMotorVal[float64]) {
	for m, c := range w.counts {
		deg[m] = w.start[m] + float64(c)*360/CountsPerRev
	}
	return deg
}
