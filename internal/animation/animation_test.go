package animation

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"keyavatar/internal/input"
	"keyavatar/internal/normalize"
)

const epsilon = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

var t0 = time.Unix(1700000000, 0)

func tick(i int) time.Time {
	return t0.Add(time.Duration(i) * 16 * time.Millisecond)
}

func newTestDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	d, err := NewDriver(cfg, nil)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	return d
}

func TestLayerOrder(t *testing.T) {
	d := newTestDriver(t, DefaultConfig())
	want := []string{"motion", "physics", "pose-switch", "procedural", "override"}
	got := d.Layers()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected layers %v, got %v", want, got)
	}
}

func TestFrameComplete(t *testing.T) {
	d := newTestDriver(t, DefaultConfig())
	if err := d.SetParts([]string{"background", "face.happy"}); err != nil {
		t.Fatalf("SetParts failed: %v", err)
	}
	f, err := d.Step(Input{Now: tick(0)})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if f.Len() != len(DefaultParams())+2 {
		t.Errorf("Expected %d parameters, got %d", len(DefaultParams())+2, f.Len())
	}
	for _, name := range f.Names() {
		if _, ok := f.Get(name); !ok {
			t.Errorf("Parameter %s missing", name)
		}
	}
}

// TestSpringStable runs the spring at every delta-time up to the clamp
func TestSpringStable(t *testing.T) {
	s := NewSpring(2.5)
	maxDelta := 0.1
	rng := rand.New(rand.NewSource(1))

	for _, dt := range []float64{0, 0.001, 0.016, 0.05, maxDelta} {
		pos, vel := 5.0, -20.0
		for i := 0; i < 10000; i++ {
			pos, vel = s.Step(pos, vel, 1, dt)
			if math.IsNaN(pos) || math.Abs(pos) > 10 {
				t.Fatalf("dt=%v: diverged at step %d: %v", dt, i, pos)
			}
		}
		if dt > 0 && !approxTol(pos, 1, 1e-6) {
			t.Errorf("dt=%v: expected to settle at 1, got %v", dt, pos)
		}
	}

	// random delta-times within the clamp
	pos, vel := -3.0, 0.0
	for i := 0; i < 10000; i++ {
		pos, vel = s.Step(pos, vel, 1, rng.Float64()*maxDelta)
		if math.Abs(pos) > 10 {
			t.Fatalf("Random dt diverged at step %d: %v", i, pos)
		}
	}
}

func approxTol(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

// TestPhysicsLayerHitch checks that a long frame hitch is clamped
func TestPhysicsLayerHitch(t *testing.T) {
	d := newTestDriver(t, DefaultConfig())
	in := Input{Zones: []string{normalize.ZoneRightHand}}

	now := t0
	for i := 0; i < 10000; i++ {
		// alternate normal frames with 5s stalls
		if i%100 == 0 {
			now = now.Add(5 * time.Second)
		} else {
			now = now.Add(16 * time.Millisecond)
		}
		in.Now = now
		f, err := d.Step(in)
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if v := f.Value(ParamHairSway); v < -1 || v > 1 {
			t.Fatalf("Step %d: hair sway out of range: %v", i, v)
		}
	}
}

func TestMotionEasesHands(t *testing.T) {
	d := newTestDriver(t, DefaultConfig())
	var f PoseFrame
	for i := 0; i < 60; i++ {
		f, _ = d.Step(Input{Now: tick(i), Zones: []string{normalize.ZoneLeftHand}})
	}
	if v := f.Value(ParamHandLeftDown); v < 0.99 {
		t.Errorf("Expected left hand down, got %v", v)
	}
	if v := f.Value(ParamHandRightDown); v != 0 {
		t.Errorf("Expected right hand up, got %v", v)
	}
	if v := f.Value(ParamBodyActive); v < 0.99 {
		t.Errorf("Expected body active, got %v", v)
	}
}

func TestPoseSwitchReplaces(t *testing.T) {
	d := newTestDriver(t, DefaultConfig())
	d.SetParts([]string{"face.neutral", "face.surprised", "background"})

	f, _ := d.Step(Input{Now: tick(0), Visible: []string{"part.face.surprised", "background"}})
	if f.Value("part.face.surprised") != 1 || f.Value("part.background") != 1 {
		t.Errorf("Expected surprised face and background visible, got %v", f.Map())
	}
	if f.Value("part.face.neutral") != 0 {
		t.Errorf("Expected neutral face hidden, got %v", f.Value("part.face.neutral"))
	}

	f, _ = d.Step(Input{Now: tick(1), Visible: []string{"part.face.neutral"}})
	if f.Value("part.face.surprised") != 0 || f.Value("part.face.neutral") != 1 {
		t.Errorf("Expected switch to neutral face, got %v", f.Map())
	}
}

func TestProceduralDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	a := newTestDriver(t, cfg)
	b := newTestDriver(t, cfg)
	for i := 0; i < 400; i++ {
		fa, _ := a.Step(Input{Now: tick(i)})
		fb, _ := b.Step(Input{Now: tick(i)})
		if fa.Value(ParamBodyBreath) != fb.Value(ParamBodyBreath) || fa.Value(ParamEyeOpen) != fb.Value(ParamEyeOpen) {
			t.Fatalf("Tick %d differs between identical drivers", i)
		}
	}

	// mid-blink at t = duration/2 the eye is closed
	d := newTestDriver(t, cfg)
	d.Step(Input{Now: t0})
	f, _ := d.Step(Input{Now: t0.Add(cfg.BlinkDuration / 2)})
	if v := f.Value(ParamEyeOpen); v > 0.01 {
		t.Errorf("Expected eye closed mid-blink, got %v", v)
	}
	f, _ = d.Step(Input{Now: t0.Add(time.Second)})
	if v := f.Value(ParamEyeOpen); v != 1 {
		t.Errorf("Expected eye open between blinks, got %v", v)
	}

	// a quarter breath period is the positive peak
	want := cfg.BreathAmplitude
	f, _ = d.Step(Input{Now: t0.Add(cfg.BreathPeriod / 4)})
	if !approxTol(f.Value(ParamBodyBreath), want, 1e-6) {
		t.Errorf("Expected breath %v, got %v", want, f.Value(ParamBodyBreath))
	}
}

// TestOverrideWins checks the override layer against every other layer
func TestOverrideWins(t *testing.T) {
	cfg := DefaultConfig()
	d := newTestDriver(t, cfg)
	rng := rand.New(rand.NewSource(3))
	zones := []string{normalize.ZoneLeftHand, normalize.ZoneRightHand, normalize.ZoneMouse}

	for i := 0; i < 500; i++ {
		in := Input{
			Now:        tick(i),
			Zones:      zones[:rng.Intn(len(zones)+1)],
			Pointer:    input.Point{X: rng.Float64() * 3000, Y: rng.Float64() * 2000},
			HasPointer: true,
			Buttons:    Buttons{Left: rng.Intn(2) == 0, Right: rng.Intn(2) == 0},
		}
		f, err := d.Step(in)
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		want := OverrideValues(cfg, in)
		for _, name := range Owned {
			if f.Value(name) != want[name] {
				t.Fatalf("Tick %d: %s expected %v, got %v", i, name, want[name], f.Value(name))
			}
		}
	}
}

// TestHeadAngleFromOffset moves the pointer 10px right of the attachment point
func TestHeadAngleFromOffset(t *testing.T) {
	cfg := DefaultConfig()
	d := newTestDriver(t, cfg)

	f, err := d.Step(Input{Now: t0, Pointer: input.Point{X: cfg.AttachX + 10, Y: cfg.AttachY}, HasPointer: true})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	want := clamp(math.Atan2(0, 10)*180/math.Pi*cfg.HeadScale, -cfg.HeadLimitDeg, cfg.HeadLimitDeg)
	if !approx(f.Value(ParamHeadAngleX), want) {
		t.Errorf("Expected head angle %v, got %v", want, f.Value(ParamHeadAngleX))
	}
	if !approx(f.Value(ParamEyeBallX), 10/cfg.Reach) {
		t.Errorf("Expected eye x %v, got %v", 10/cfg.Reach, f.Value(ParamEyeBallX))
	}
	if !approx(f.Value(ParamArmAngle), cfg.ArmOffsetDeg) {
		t.Errorf("Expected arm angle %v, got %v", cfg.ArmOffsetDeg, f.Value(ParamArmAngle))
	}

	// straight below: 90 degrees, clamped by the head limit
	f, _ = d.Step(Input{Now: tick(1), Pointer: input.Point{X: cfg.AttachX, Y: cfg.AttachY + 500}, HasPointer: true})
	if !approx(f.Value(ParamHeadAngleX), math.Min(90*cfg.HeadScale, cfg.HeadLimitDeg)) {
		t.Errorf("Expected clamped head angle, got %v", f.Value(ParamHeadAngleX))
	}
}

func TestInvalidValueKeepsLastFrame(t *testing.T) {
	cfg := DefaultConfig()
	d := newTestDriver(t, cfg)
	good, err := d.Step(Input{Now: t0})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	_, err = d.Step(Input{Now: tick(1), Pointer: input.Point{X: math.NaN()}, HasPointer: true})
	var aerr *AnimationError
	if !errors.As(err, &aerr) || !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Expected AnimationError with ErrInvalidValue, got %v", err)
	}
	if last := d.Last(); last.Value(ParamMouseX) != good.Value(ParamMouseX) {
		t.Errorf("Expected last good frame kept, got mouse.x %v", last.Value(ParamMouseX))
	}
}

func TestDuplicateParameter(t *testing.T) {
	specs := append(DefaultParams(), ParamSpec{Name: ParamEyeOpen})
	if _, err := NewDriver(DefaultConfig(), specs); !errors.Is(err, ErrDuplicateParameter) {
		t.Errorf("Expected ErrDuplicateParameter, got %v", err)
	}
	d := newTestDriver(t, DefaultConfig())
	if err := d.SetParts([]string{"a", "part.a"}); !errors.Is(err, ErrDuplicateParameter) {
		t.Errorf("Expected ErrDuplicateParameter for repeated part, got %v", err)
	}
}

func TestFrameJSONOrdered(t *testing.T) {
	l, _ := newLayout([]ParamSpec{{Name: "z", Default: 1}, {Name: "a", Default: 0.5}})
	f := defaultFrame(l)

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"z":1,"a":0.5}` {
		t.Errorf("Expected ordered object, got %s", data)
	}
}

func TestWrapDegrees(t *testing.T) {
	tests := map[float64]float64{0: 0, 180: 180, 190: -170, -190: 170, 540: 180}
	for in, want := range tests {
		if got := wrapDegrees(in); !approx(got, want) {
			t.Errorf("wrapDegrees(%v): expected %v, got %v", in, want, got)
		}
	}
}
