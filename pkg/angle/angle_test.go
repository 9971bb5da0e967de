package angle

import (
	"math"
	"testing"
)

func TestFromDegrees(t *testing.T) {
	expectWrapped(t, 0, 0)
	expectWrapped(t, 179, 179)
	expectWrapped(t, -179, -179)
	expectWrapped(t, 180, 180)
	expectWrapped(t, -180, 180)
	expectWrapped(t, 360, 0)
	expectWrapped(t, 361, 1)
	expectWrapped(t, 359, -1)
	expectWrapped(t, 720+90, 90)
	expectWrapped(t, -450, -90)
}

func expectWrapped(t *testing.T, in, expected float64) {
	t.Helper()
	got := FromDegrees(in).Degrees()
	if math.Abs(got-expected) > 1e-9 {
		t.Errorf("FromDegrees(%v) = %v, expected %v", in, got, expected)
	}
}

func TestShortest(t *testing.T) {
	for _, tc := range []struct {
		from, to, expected float64
	}{
		{0, 90, 90},
		{90, 0, -90},
		{170, -170, 20},
		{-170, 170, -20},
		{90, 13, -77},
		{350, 10, 20},
	} {
		got := ToDegrees(Shortest(ToRadians(tc.from), ToRadians(tc.to)))
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("Shortest(%v, %v) = %v, expected %v", tc.from, tc.to, got, tc.expected)
		}
	}
}

func TestAddSub(t *testing.T) {
	a := FromDegrees(170)
	b := FromDegrees(20)
	if got := a.Add(b).Degrees(); math.Abs(got+170) > 1e-9 {
		t.Errorf("170+20 = %v, expected -170", got)
	}
	if got := b.Sub(a).Degrees(); math.Abs(got+150) > 1e-9 {
		t.Errorf("20-170 = %v, expected -150", got)
	}
}
