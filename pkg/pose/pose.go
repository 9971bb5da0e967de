package pose

import (
	"fmt"
	"math"
	"sync"
)

// Pose is where we believe the bot to be on the floor grid.  X and Y are in
// centimetres, Theta is in radians, +tive CCW.
type Pose struct {
	X, Y  float64
	Theta float64
}

func (p Pose) String() string {
	return fmt.Sprintf("(x=%.2fcm y=%.2fcm theta=%.1fdeg)", p.X, p.Y, p.Theta*180/math.Pi)
}

// Store holds the tracked pose.  The odometer updates it continuously; the
// light localizer overwrites it once at the end of a run.  All three fields
// are always read and written together under the lock.
type Store struct {
	lock sync.RWMutex
	pose Pose
}

func NewStore(initial Pose) *Store {
	return &Store{pose: initial}
}

func (s *Store) Get() Pose {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.pose
}

func (s *Store) Set(p Pose) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pose = p
}

func (s *Store) SetPose(x, y, theta float64) {
	s.Set(Pose{X: x, Y: y, Theta: theta})
}

// Update applies f to the stored pose as a single read-modify-write.
func (s *Store) Update(f func(p *Pose)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	f(&s.pose)
}
