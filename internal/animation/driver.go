package animation

import (
	"math"
	"time"

	"keyavatar/internal/input"
)

// Config controls every layer.
type Config struct {
	// MaxDelta bounds the delta-time seen by time-integrating layers
	MaxDelta time.Duration
	// Ease is the time constant of motion easing
	Ease     time.Duration
	SpringHz float64

	BlinkInterval   time.Duration
	BlinkDuration   time.Duration
	BreathPeriod    time.Duration
	BreathAmplitude float64

	// AttachX and AttachY locate the head/arm pivot in screen space
	AttachX, AttachY float64
	Reach            float64
	HeadScale        float64
	HeadLimitDeg     float64
	ArmOffsetDeg     float64
	ArmLimitDeg      float64

	ScreenWidth, ScreenHeight float64

	// ZoneHands maps a zone to the hand parameter it pushes down
	ZoneHands map[string]string
}

// DefaultConfig returns the built-in animation settings.
func DefaultConfig() Config {
	return Config{
		MaxDelta:        100 * time.Millisecond,
		Ease:            60 * time.Millisecond,
		SpringHz:        2.5,
		BlinkInterval:   4 * time.Second,
		BlinkDuration:   150 * time.Millisecond,
		BreathPeriod:    3200 * time.Millisecond,
		BreathAmplitude: 0.04,
		AttachX:         960,
		AttachY:         540,
		Reach:           600,
		HeadScale:       0.25,
		HeadLimitDeg:    30,
		ArmOffsetDeg:    90,
		ArmLimitDeg:     120,
		ScreenWidth:     1920,
		ScreenHeight:    1080,
		ZoneHands:       DefaultZoneHands(),
	}
}

// Buttons is the mouse button state.
type Buttons struct {
	Left, Right, Middle bool
}

// Input is everything the layers read from the avatar for one tick.
type Input struct {
	Now        time.Time
	Zones      []string
	Visible    []string
	Pointer    input.Point
	HasPointer bool
	Buttons    Buttons
}

// Driver runs the layers. It keeps the previous frame as the only state
// carried between ticks, plus spring velocities.
type Driver struct {
	cfg     Config
	base    []ParamSpec
	layout  *layout
	layers  []layer
	physics *physicsLayer
	prev    PoseFrame
	start   time.Time
	last    time.Time
}

// NewDriver creates a driver over specs. A nil spec list means DefaultParams.
func NewDriver(cfg Config, specs []ParamSpec) (*Driver, error) {
	if specs == nil {
		specs = DefaultParams()
	}
	if cfg.ZoneHands == nil {
		cfg.ZoneHands = DefaultZoneHands()
	}
	l, err := newLayout(specs)
	if err != nil {
		return nil, err
	}

	d := &Driver{cfg: cfg, base: specs, layout: l}
	d.physics = &physicsLayer{spring: NewSpring(cfg.SpringHz)}
	d.physics.reset()
	d.layers = []layer{
		motionLayer{cfg: &d.cfg},
		d.physics,
		poseSwitchLayer{},
		proceduralLayer{cfg: &d.cfg},
		overrideLayer{cfg: &d.cfg},
	}
	d.prev = defaultFrame(l)
	return d, nil
}

// Layers returns the layer names in execution order.
func (d *Driver) Layers() []string {
	out := make([]string, len(d.layers))
	for i, l := range d.layers {
		out[i] = l.name()
	}
	return out
}

// SetParts replaces the part-opacity parameters, e.g. after a mode switch.
// Values of parameters present before and after are carried over.
func (d *Driver) SetParts(parts []string) error {
	specs := make([]ParamSpec, 0, len(d.base)+len(parts))
	specs = append(specs, d.base...)
	for _, p := range parts {
		specs = append(specs, PartSpec(p))
	}
	l, err := newLayout(specs)
	if err != nil {
		return err
	}

	next := defaultFrame(l)
	for i, s := range l.specs {
		if v, ok := d.prev.Get(s.Name); ok {
			next.values[i] = v
		}
	}
	d.layout = l
	d.prev = next
	return nil
}

// Names returns the declared parameter names in output order.
func (d *Driver) Names() []string {
	return d.prev.Names()
}

// Last returns the most recent successful frame.
func (d *Driver) Last() PoseFrame {
	return d.prev
}

// Step computes the PoseFrame for in.Now. On an AnimationError the previous
// frame stays the driver's state and nothing of this tick is kept.
func (d *Driver) Step(in Input) (PoseFrame, error) {
	if d.start.IsZero() {
		d.start = in.Now
		d.last = in.Now
	}

	dt := in.Now.Sub(d.last)
	if dt < 0 {
		dt = 0
	}
	if d.cfg.MaxDelta > 0 && dt > d.cfg.MaxDelta {
		dt = d.cfg.MaxDelta
	}

	cur := newFrame(d.layout)
	s := &step{
		cur:  &cur,
		prev: &d.prev,
		in:   &in,
		dt:   dt.Seconds(),
		t:    in.Now.Sub(d.start).Seconds(),
	}

	savedVel := make(map[string]float64, len(d.physics.vel))
	for k, v := range d.physics.vel {
		savedVel[k] = v
	}

	for _, l := range d.layers {
		l.apply(s)
	}

	owned := make(map[string]bool, len(Owned))
	for _, name := range Owned {
		owned[name] = true
	}
	for i, spec := range d.layout.specs {
		if !cur.set[i] {
			d.physics.vel = savedVel
			return PoseFrame{}, &AnimationError{Param: spec.Name, Layer: d.layers[len(d.layers)-1].name(), Err: ErrMissingParameter}
		}
		v := cur.values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			d.physics.vel = savedVel
			return PoseFrame{}, &AnimationError{Param: spec.Name, Err: ErrInvalidValue}
		}
		if !owned[spec.Name] {
			cur.values[i] = spec.clamp(v)
		}
	}

	d.prev = cur
	d.last = in.Now
	return cur.Clone(), nil
}

// Reset drops all carried state; the next Step starts from defaults.
func (d *Driver) Reset() {
	d.prev = defaultFrame(d.layout)
	d.physics.reset()
	d.start = time.Time{}
	d.last = time.Time{}
}
