// Package scheduler runs the per-frame pipeline: poll backends, normalize,
// update the avatar state, and step the animation driver.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"keyavatar/internal/animation"
	"keyavatar/internal/assets"
	"keyavatar/internal/avatar"
	"keyavatar/internal/hotkey"
	"keyavatar/internal/input"
	"keyavatar/internal/log"
	"keyavatar/internal/normalize"
)

// Options configure a Scheduler.
type Options struct {
	// Backends are opened by New and closed by Close
	Backends []input.Backend

	// Assets is the loaded asset tree; nil means the builtin default mode
	Assets *assets.Table
	Mode   string

	// Zones overrides the zone table on top of the mode's key use
	Zones map[string][]string

	Animation animation.Config
	Rules     avatar.Rules

	ActivityWindow time.Duration
	BurstWindow    time.Duration

	// PollBudget bounds the time spent polling backends per tick
	PollBudget time.Duration

	// MaxEventsPerPoll bounds the events taken from one backend per tick
	MaxEventsPerPoll int

	// Clock measures the poll budget. Defaults to time.Now.
	Clock func() time.Time

	// OnFrame is called on the tick thread after every tick
	OnFrame func(seq uint64, frame animation.PoseFrame)
}

const defaultMaxEventsPerPoll = 256

// Stats counts pipeline events since start.
type Stats struct {
	Ticks               uint64          `json:"ticks"`
	AnimationErrors     uint64          `json:"animation_errors"`
	Panics              uint64          `json:"panics"`
	NormalizationErrors uint64          `json:"normalization_errors"`
	Dropped             uint64          `json:"dropped"`
	BudgetOverruns      uint64          `json:"budget_overruns"`
	ModeFallbacks       uint64          `json:"mode_fallbacks"`
	Resyncs             uint64          `json:"resyncs"`
	Normalizer          normalize.Stats `json:"normalizer"`
}

// Snapshot is the state published after each tick for other goroutines.
type Snapshot struct {
	Seq        uint64            `json:"seq"`
	Time       time.Time         `json:"time"`
	Phase      avatar.Phase      `json:"phase"`
	Expression avatar.Expression `json:"expression"`
	Face       string            `json:"face,omitempty"`
	Zones      []string          `json:"zones"`
	Mode       string            `json:"mode"`
	Modes      []string          `json:"modes"`
	Pointer    *input.Point      `json:"pointer,omitempty"`
	Backends   []string          `json:"backends"`
	Devices    []input.Device    `json:"devices"`
	Params     []string          `json:"params"`
	Stats      Stats             `json:"stats"`
}

// Scheduler owns the whole per-tick pipeline. Tick must only be called from
// one goroutine; RequestResync, RequestMode and Snapshot are safe from any.
type Scheduler struct {
	opts     Options
	backends []input.Backend
	table    *assets.Table
	mode     *assets.Mode

	norm     *normalize.Normalizer
	state    *avatar.State
	activity *avatar.ActivityWindow
	rules    avatar.Rules
	driver   *animation.Driver
	hotkeys  *hotkey.Manager

	face      string // face id chosen by hotkey, cleared on expression change
	rawHeld   map[uint16]bool
	buf       []input.RawEvent
	pollStart int
	last      animation.PoseFrame
	seq       uint64
	stats     Stats
	errCounts map[string]uint64

	resync  atomic.Bool
	modeReq atomic.Pointer[string]
	snap    atomic.Pointer[Snapshot]
	closed  atomic.Bool

	logger *slog.Logger
}

// New builds the pipeline and opens every backend. A backend that fails to
// open is logged and dropped, unless it can rescan on resync.
func New(opts Options) (*Scheduler, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxEventsPerPoll <= 0 {
		opts.MaxEventsPerPoll = defaultMaxEventsPerPoll
	}
	if opts.Rules == (avatar.Rules{}) {
		opts.Rules = avatar.DefaultRules()
	}
	table := opts.Assets
	if table == nil {
		table, _ = assets.Load("")
	}

	driver, err := animation.NewDriver(opts.Animation, nil)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		opts:      opts,
		table:     table,
		norm:      normalize.New(nil),
		state:     avatar.NewState(),
		activity:  avatar.NewActivityWindow(opts.ActivityWindow, opts.BurstWindow),
		rules:     table.RulesOver(opts.Rules),
		driver:    driver,
		hotkeys:   hotkey.NewManager(),
		rawHeld:   make(map[uint16]bool),
		errCounts: make(map[string]uint64),
		logger:    log.Component("scheduler"),
	}

	for _, f := range table.Faces {
		if err := s.hotkeys.Register(f.HotKey, f.ID); err != nil {
			s.logger.Warn("ignoring face hotkey", "face", f.ID, "error", err)
		}
	}

	s.openBackends(opts.Backends)
	s.switchMode(opts.Mode)
	s.last = s.driver.Last().Clone()
	s.publish(time.Time{})
	return s, nil
}

func (s *Scheduler) openBackends(backends []input.Backend) {
	for _, b := range backends {
		devices, err := b.Open()
		if err != nil {
			if _, ok := b.(input.Resyncer); ok {
				s.logger.Warn("backend has no devices yet, waiting for resync", "backend", b.Name(), "error", err)
				s.backends = append(s.backends, b)
				continue
			}
			s.logger.Warn("backend unavailable", "backend", b.Name(), "error", err)
			b.Close()
			continue
		}
		s.logger.Info("backend opened", "backend", b.Name(), "devices", len(devices))
		s.backends = append(s.backends, b)
	}
}

// RequestResync asks the next tick to rescan devices and release held keys.
func (s *Scheduler) RequestResync() {
	s.resync.Store(true)
}

// RequestMode asks the next tick to switch modes.
func (s *Scheduler) RequestMode(name string) {
	s.modeReq.Store(&name)
}

// Snapshot returns the state published by the latest tick.
func (s *Scheduler) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Tick runs one frame and returns its PoseFrame. It never blocks on I/O and
// never panics: on failure it returns the last good frame.
func (s *Scheduler) Tick(now time.Time) (frame animation.PoseFrame) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.Panics++
			s.logError("tick panicked", fmt.Errorf("%v", r))
			frame = s.last.Clone()
		}
	}()

	if s.closed.Load() {
		return s.last.Clone()
	}
	s.stats.Ticks++

	s.handleRequests(now)
	s.poll()

	for _, ev := range s.norm.Drain() {
		s.state.Apply(ev)
		s.activity.Record(ev)
	}

	sample := s.activity.Sample(now)
	if s.state.Update(now, sample, s.rules) {
		s.face = ""
	}
	if id, ok := s.hotkeys.Update(s.heldCodes()); ok {
		s.face = id
	}

	pointer, hasPointer := s.state.Pointer()
	in := animation.Input{
		Now:        now,
		Zones:      s.state.Zones(),
		Visible:    s.visible(),
		Pointer:    pointer,
		HasPointer: hasPointer,
		Buttons: animation.Buttons{
			Left:   s.state.Button(input.BtnLeft),
			Right:  s.state.Button(input.BtnRight),
			Middle: s.state.Button(input.BtnMiddle),
		},
	}

	f, err := s.driver.Step(in)
	if err != nil {
		s.stats.AnimationErrors++
		s.logError("animation step failed", err)
		f = s.last.Clone()
	} else {
		s.last = f
	}

	s.seq++
	s.publish(now)
	if s.opts.OnFrame != nil {
		s.opts.OnFrame(s.seq, f)
	}
	return f
}

func (s *Scheduler) handleRequests(now time.Time) {
	if name := s.modeReq.Swap(nil); name != nil {
		s.switchMode(*name)
	}
	if s.resync.Swap(false) {
		s.doResync(now)
	}
}

// poll drains every backend within the poll budget. The starting backend
// rotates so a flooding backend cannot starve the others.
func (s *Scheduler) poll() {
	n := len(s.backends)
	if n == 0 {
		return
	}
	var deadline time.Time
	if s.opts.PollBudget > 0 {
		deadline = s.opts.Clock().Add(s.opts.PollBudget)
	}

	for i := 0; i < n; i++ {
		if i > 0 && !deadline.IsZero() && s.opts.Clock().After(deadline) {
			s.stats.BudgetOverruns++
			break
		}
		b := s.backends[(s.pollStart+i)%n]
		s.buf = b.Poll(s.buf[:0], s.opts.MaxEventsPerPoll)
		for _, ev := range s.buf {
			s.ingest(ev)
		}
	}
	s.pollStart = (s.pollStart + 1) % n
}

func (s *Scheduler) ingest(ev input.RawEvent) {
	if !ev.IsMotion() {
		if ev.Pressed {
			s.rawHeld[ev.Code] = true
		} else {
			delete(s.rawHeld, ev.Code)
		}
	}
	if err := s.norm.Ingest(ev); err != nil {
		var nerr *normalize.NormalizationError
		if errors.As(err, &nerr) {
			s.stats.NormalizationErrors++
		}
		s.logError("event normalized", err)
	}
}

func (s *Scheduler) heldCodes() []uint16 {
	out := make([]uint16, 0, len(s.rawHeld))
	for c := range s.rawHeld {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// doResync rescans devices and releases everything held, since releases that
// happened while a device was gone will never arrive.
func (s *Scheduler) doResync(now time.Time) {
	s.stats.Resyncs++
	for _, b := range s.backends {
		r, ok := b.(input.Resyncer)
		if !ok {
			continue
		}
		devices, err := r.Resync()
		if err != nil {
			s.logger.Warn("resync failed", "backend", b.Name(), "error", err)
			continue
		}
		s.logger.Info("resynced", "backend", b.Name(), "devices", len(devices))
	}
	s.norm.ReleaseAll(now)
	clear(s.rawHeld)
}

// switchMode activates a mode, falling back to the default mode when it is
// unavailable. Zones and part parameters follow the mode.
func (s *Scheduler) switchMode(name string) {
	mode, fallback := s.table.Resolve(name)
	if fallback {
		s.stats.ModeFallbacks++
		s.logger.Warn("mode unavailable, using default", "requested", name, "mode", mode.Name)
	}

	zones, err := normalize.DefaultZoneTable().With(mode.Zones)
	if err == nil && len(s.opts.Zones) > 0 {
		zones, err = zones.With(s.opts.Zones)
	}
	if err != nil {
		s.logger.Warn("invalid zone overrides, keeping zone table", "mode", mode.Name, "error", err)
	} else {
		s.norm.SetZones(zones)
	}

	if err := s.driver.SetParts(s.table.Parts(mode.Name)); err != nil {
		s.logger.Warn("invalid part list", "mode", mode.Name, "error", err)
	}

	s.mode = mode
	s.face = ""
	s.logger.Info("mode active", "mode", mode.Name)
}

// visible lists the parts shown this tick: the expression's part set with
// a hotkey face swapped in, plus the parts of held keys.
func (s *Scheduler) visible() []string {
	parts := s.table.PartSet(s.mode.Name, s.state.Expression())
	if s.face != "" {
		kept := parts[:0]
		for _, p := range parts {
			if !strings.HasPrefix(p, "part.face.") {
				kept = append(kept, p)
			}
		}
		parts = append(kept, "part.face."+s.face)
	}
	return append(parts, s.table.KeyParts(s.mode.Name, s.heldCodes())...)
}

func (s *Scheduler) currentFace() string {
	if s.face != "" {
		return s.face
	}
	for _, p := range s.table.PartSet(s.mode.Name, s.state.Expression()) {
		if id, ok := strings.CutPrefix(p, "part.face."); ok {
			return id
		}
	}
	return ""
}

func (s *Scheduler) publish(now time.Time) {
	var dropped uint64
	names := make([]string, 0, len(s.backends))
	var devices []input.Device
	for _, b := range s.backends {
		names = append(names, b.Name())
		if dc, ok := b.(input.DropCounter); ok {
			dropped += dc.Dropped()
		}
		if dl, ok := b.(input.DeviceLister); ok {
			devices = append(devices, dl.Devices()...)
		}
	}
	s.stats.Dropped = dropped
	s.stats.Normalizer = s.norm.Stats()

	snap := &Snapshot{
		Seq:        s.seq,
		Time:       now,
		Phase:      s.state.Phase(),
		Expression: s.state.Expression(),
		Face:       s.currentFace(),
		Zones:      s.state.Zones(),
		Mode:       s.mode.Name,
		Modes:      s.table.ModeNames(),
		Backends:   names,
		Devices:    devices,
		Params:     s.driver.Names(),
		Stats:      s.stats,
	}
	if p, ok := s.state.Pointer(); ok {
		snap.Pointer = &p
	}
	s.snap.Store(snap)
}

// logError logs the first occurrence of each message and then every 100th.
func (s *Scheduler) logError(msg string, err error) {
	s.errCounts[msg]++
	if n := s.errCounts[msg]; n%100 == 1 {
		s.logger.Warn(msg, "error", err, "count", n)
	}
}

// Close stops ticking, then closes every backend. Backends join their capture
// threads before releasing devices.
func (s *Scheduler) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, b := range s.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}
