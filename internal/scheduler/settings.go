package scheduler

import (
	"time"

	"keyavatar/internal/animation"
	"keyavatar/internal/avatar"
	"keyavatar/internal/config"
	"keyavatar/internal/input"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// AnimationConfig converts the settings file into driver settings.
func AnimationConfig(cfg config.Config) animation.Config {
	a := cfg.Animation
	out := animation.DefaultConfig()
	out.MaxDelta = ms(a.MaxDeltaMS)
	out.Ease = ms(a.EaseMS)
	out.SpringHz = a.SpringHz
	out.BlinkInterval = ms(a.BlinkIntervalMS)
	out.BlinkDuration = ms(a.BlinkDurationMS)
	out.BreathPeriod = ms(a.BreathPeriodMS)
	out.BreathAmplitude = a.BreathAmplitude
	out.AttachX, out.AttachY = a.AttachX, a.AttachY
	out.Reach = a.Reach
	out.HeadScale = a.HeadScale
	out.HeadLimitDeg = a.HeadLimitDeg
	out.ArmOffsetDeg = a.ArmOffsetDeg
	out.ArmLimitDeg = a.ArmLimitDeg
	out.ScreenWidth = float64(cfg.Capture.ScreenWidth)
	out.ScreenHeight = float64(cfg.Capture.ScreenHeight)
	return out
}

// BaseRules returns the expression rules of the settings file. The asset
// tree may override them.
func BaseRules(cfg config.Config) avatar.Rules {
	r := avatar.DefaultRules()
	r.IdleTimeout = ms(cfg.Avatar.IdleTimeoutMS)
	return r
}

// DetectConfig converts the settings file into backend settings.
func DetectConfig(cfg config.Config) input.DetectConfig {
	c := cfg.Capture
	reconnect := input.DefaultReconnectConfig()
	reconnect.MaxRetries = c.X11MaxRetries

	return input.DetectConfig{
		Backend:       c.Backend,
		QueueCapacity: c.QueueCapacity,
		Evdev: input.EvdevOptions{
			Glob:               c.DeviceGlob,
			MaxEventsPerDevice: c.MaxEventsPerDevice,
			ScreenWidth:        c.ScreenWidth,
			ScreenHeight:       c.ScreenHeight,
		},
		X11: input.X11Options{
			Display:        c.X11Display,
			SampleInterval: ms(c.X11SampleMS),
			QueueCapacity:  c.QueueCapacity,
			Reconnect:      reconnect,
		},
	}
}

// pollDevices is the device count PollLimit sizes a backend poll for
const pollDevices = 16

// PollLimit returns the per-backend event bound of one poll. It covers
// pollDevices devices each reading MaxEventsPerDevice records. Backends keep
// whatever is over the bound for the next tick.
func PollLimit(cfg config.Config) int {
	limit := cfg.Capture.MaxEventsPerDevice * pollDevices
	if limit < defaultMaxEventsPerPoll {
		limit = defaultMaxEventsPerPoll
	}
	return limit
}
