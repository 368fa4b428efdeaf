package animation

import (
	"math"

	"keyavatar/internal/normalize"
)

// step is the working state of one Driver.Step call.
type step struct {
	cur  *PoseFrame
	prev *PoseFrame
	in   *Input
	dt   float64 // seconds, clamped
	t    float64 // seconds since the driver started
}

type layer interface {
	name() string
	apply(s *step)
}

// motionLayer writes the baseline of every parameter. Hand and body
// parameters ease toward 1 while a zone that drives them is held.
type motionLayer struct {
	cfg *Config
}

func (motionLayer) name() string { return "motion" }

func (m motionLayer) apply(s *step) {
	targets := map[string]float64{}
	if len(s.in.Zones) > 0 {
		targets[ParamBodyActive] = 1
	}
	for _, zone := range s.in.Zones {
		if hand, ok := m.cfg.ZoneHands[zone]; ok {
			targets[hand] = 1
		}
	}

	alpha := 1.0
	if m.cfg.Ease > 0 {
		alpha = 1 - math.Exp(-s.dt/m.cfg.Ease.Seconds())
	}

	left := targets[ParamHandLeftDown]
	right := targets[ParamHandRightDown]
	// hair leans away from the active hand; accessories follow body activity
	targets[ParamHairSway] = 0.5 * (right - left)
	targets[ParamAccessorySway] = 0.3 * targets[ParamBodyActive]

	for _, spec := range s.cur.layout.specs {
		target, driven := targets[spec.Name]
		switch spec.Name {
		case ParamBodyActive, ParamHandLeftDown, ParamHandRightDown:
			prev, ok := s.prev.Get(spec.Name)
			if !ok {
				prev = spec.Default
			}
			s.cur.put(spec.Name, prev+(target-prev)*alpha)
		default:
			if driven {
				s.cur.put(spec.Name, target)
			} else {
				s.cur.put(spec.Name, spec.Default)
			}
		}
	}
}

// physicsLayer moves Physics parameters with a critically damped spring from
// their previous value toward the motion baseline.
type physicsLayer struct {
	spring Spring
	vel    map[string]float64
}

func (*physicsLayer) name() string { return "physics" }

func (p *physicsLayer) apply(s *step) {
	for _, spec := range s.cur.layout.specs {
		if !spec.Physics {
			continue
		}
		target := s.cur.Value(spec.Name)
		prev, ok := s.prev.Get(spec.Name)
		if !ok {
			prev = target
		}
		pos, vel := p.spring.Step(prev, p.vel[spec.Name], target, s.dt)
		p.vel[spec.Name] = vel
		s.cur.put(spec.Name, pos)
	}
}

func (p *physicsLayer) reset() {
	p.vel = make(map[string]float64)
}

// poseSwitchLayer replaces every part-opacity parameter: 1 for the visible
// part set, 0 otherwise.
type poseSwitchLayer struct{}

func (poseSwitchLayer) name() string { return "pose-switch" }

func (poseSwitchLayer) apply(s *step) {
	visible := make(map[string]bool, len(s.in.Visible))
	for _, p := range s.in.Visible {
		if !IsPart(p) {
			p = PartPrefix + p
		}
		visible[p] = true
	}
	for _, spec := range s.cur.layout.specs {
		if !IsPart(spec.Name) {
			continue
		}
		if visible[spec.Name] {
			s.cur.put(spec.Name, 1)
		} else {
			s.cur.put(spec.Name, 0)
		}
	}
}

// proceduralLayer adds input-independent motion: a periodic blink on
// eye.open and a sinusoidal breath on body.breath.
type proceduralLayer struct {
	cfg *Config
}

func (proceduralLayer) name() string { return "procedural" }

func (p proceduralLayer) apply(s *step) {
	if interval := p.cfg.BlinkInterval.Seconds(); interval > 0 && p.cfg.BlinkDuration > 0 {
		dur := p.cfg.BlinkDuration.Seconds()
		phase := math.Mod(s.t, interval)
		if phase < dur {
			// triangle: closes fully at mid-blink
			closed := 1 - math.Abs(2*phase/dur-1)
			s.cur.add(ParamEyeOpen, -closed*s.cur.Value(ParamEyeOpen))
		}
	}
	if period := p.cfg.BreathPeriod.Seconds(); period > 0 {
		s.cur.add(ParamBodyBreath, p.cfg.BreathAmplitude*math.Sin(2*math.Pi*s.t/period))
	}
}

// overrideLayer maps the live pointer and buttons directly onto the
// parameters it owns. It runs last and always wins.
type overrideLayer struct {
	cfg *Config
}

func (overrideLayer) name() string { return "override" }

// Owned lists the parameters written by the manual override layer.
var Owned = []string{
	ParamHeadAngleX, ParamHeadAngleY, ParamArmAngle,
	ParamEyeBallX, ParamEyeBallY, ParamMouseX, ParamMouseY,
	ParamMouseLeft, ParamMouseRight, ParamMouseMiddle,
}

func (o overrideLayer) apply(s *step) {
	for name, v := range o.values(s.in) {
		s.cur.put(name, v)
	}
}

// values computes the override from pointer and buttons alone.
func (o overrideLayer) values(in *Input) map[string]float64 {
	c := o.cfg
	out := map[string]float64{
		ParamMouseLeft:   flag(in.Buttons.Left),
		ParamMouseRight:  flag(in.Buttons.Right),
		ParamMouseMiddle: flag(in.Buttons.Middle),
	}

	if !in.HasPointer {
		out[ParamHeadAngleX] = 0
		out[ParamHeadAngleY] = 0
		out[ParamArmAngle] = 0
		out[ParamEyeBallX] = 0
		out[ParamEyeBallY] = 0
		out[ParamMouseX] = 0.5
		out[ParamMouseY] = 0.5
		return out
	}

	dx := in.Pointer.X - c.AttachX
	dy := in.Pointer.Y - c.AttachY
	angle := degrees(math.Atan2(dy, dx))

	out[ParamHeadAngleX] = clamp(angle*c.HeadScale, -c.HeadLimitDeg, c.HeadLimitDeg)
	out[ParamHeadAngleY] = clamp(degrees(math.Atan2(dy, c.Reach))*c.HeadScale, -c.HeadLimitDeg, c.HeadLimitDeg)
	out[ParamArmAngle] = clamp(wrapDegrees(angle+c.ArmOffsetDeg), -c.ArmLimitDeg, c.ArmLimitDeg)

	reach := c.Reach
	if reach <= 0 {
		reach = 1
	}
	out[ParamEyeBallX] = clamp(dx/reach, -1, 1)
	out[ParamEyeBallY] = clamp(dy/reach, -1, 1)

	if c.ScreenWidth > 0 {
		out[ParamMouseX] = clamp(in.Pointer.X/c.ScreenWidth, 0, 1)
	}
	if c.ScreenHeight > 0 {
		out[ParamMouseY] = clamp(in.Pointer.Y/c.ScreenHeight, 0, 1)
	}
	return out
}

// OverrideValues returns what the override layer writes for in under cfg.
func OverrideValues(cfg Config, in Input) map[string]float64 {
	return overrideLayer{cfg: &cfg}.values(&in)
}

// DefaultZoneHands maps the default zones to the hand they move.
func DefaultZoneHands() map[string]string {
	return map[string]string{
		normalize.ZoneLeftHand:   ParamHandLeftDown,
		normalize.ZoneModifier:   ParamHandLeftDown,
		normalize.ZoneFunction:   ParamHandLeftDown,
		normalize.ZoneThumb:      ParamHandLeftDown,
		normalize.ZoneRightHand:  ParamHandRightDown,
		normalize.ZoneNavigation: ParamHandRightDown,
		normalize.ZoneMouse:      ParamHandRightDown,
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// wrapDegrees maps a to (-180, 180].
func wrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
