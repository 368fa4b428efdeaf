package input

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Env is the part of the process environment that decides which backend
// can see user input.
type Env struct {
	GOOS           string
	Display        string
	WaylandDisplay string
}

// EnvFromOS reads Env from the running process.
func EnvFromOS() Env {
	return Env{
		GOOS:           runtime.GOOS,
		Display:        os.Getenv("DISPLAY"),
		WaylandDisplay: os.Getenv("WAYLAND_DISPLAY"),
	}
}

// DetectConfig carries the settings of every backend variant.
type DetectConfig struct {
	// Backend is auto, windows, x11, evdev or none
	Backend       string
	QueueCapacity int
	Evdev         EvdevOptions
	X11           X11Options
}

// Detect chooses backend variants for the environment. With "auto":
// Windows gets the hook backend; a Wayland session reads evdev devices
// directly since X clients cannot observe other Wayland clients; an X11
// session uses the X11 backend; a console session falls back to evdev.
// Backends are returned unopened.
func Detect(cfg DetectConfig, env Env) ([]Backend, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" {
		name = "auto"
	}

	if cfg.X11.Display == "" {
		cfg.X11.Display = env.Display
	}
	if cfg.X11.QueueCapacity == 0 {
		cfg.X11.QueueCapacity = cfg.QueueCapacity
	}

	switch name {
	case "none":
		return nil, nil
	case "windows":
		return []Backend{NewHookBackend(cfg.QueueCapacity)}, nil
	case "x11":
		return []Backend{NewX11Backend(cfg.X11)}, nil
	case "evdev", "wayland":
		return []Backend{NewEvdevBackend(cfg.Evdev)}, nil
	case "auto":
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}

	switch env.GOOS {
	case "windows":
		return []Backend{NewHookBackend(cfg.QueueCapacity)}, nil
	case "linux":
		switch {
		case env.WaylandDisplay != "":
			return []Backend{NewEvdevBackend(cfg.Evdev)}, nil
		case env.Display != "":
			return []Backend{NewX11Backend(cfg.X11)}, nil
		default:
			return []Backend{NewEvdevBackend(cfg.Evdev)}, nil
		}
	case "freebsd", "openbsd", "netbsd":
		if env.Display != "" {
			return []Backend{NewX11Backend(cfg.X11)}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", env.GOOS, ErrUnsupported)
}
