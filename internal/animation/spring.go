package animation

import "math"

// Spring is a critically damped spring. Step uses the closed-form solution,
// so the result stays bounded for any non-negative dt.
type Spring struct {
	// Omega is the natural angular frequency (rad/s)
	Omega float64
}

// NewSpring creates a spring with the given natural frequency in Hz.
func NewSpring(hz float64) Spring {
	if hz <= 0 {
		hz = 2.5
	}
	return Spring{Omega: 2 * math.Pi * hz}
}

// Step advances (cur, vel) toward target by dt seconds and returns the new
// position and velocity.
func (s Spring) Step(cur, vel, target, dt float64) (float64, float64) {
	if dt <= 0 {
		return cur, vel
	}
	w := s.Omega
	x0 := cur - target
	decay := math.Exp(-w * dt)
	c := vel + w*x0

	x := (x0 + c*dt) * decay
	v := (vel - w*c*dt) * decay
	return target + x, v
}
