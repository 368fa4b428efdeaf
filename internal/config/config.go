// Package config provides settings management for the keyavatar service.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"keyavatar/internal/log"
)

// Config represents the application settings
type Config struct {
	// General contains process-wide settings
	General GeneralConfig `json:"general"`

	// Capture configures device backends and the raw event path
	Capture CaptureConfig `json:"capture"`

	// Avatar configures the state model timing
	Avatar AvatarConfig `json:"avatar"`

	// Animation configures the layered pose computation
	Animation AnimationConfig `json:"animation"`

	// Server configures the pose stream endpoint
	Server ServerConfig `json:"server"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level"`

	// LogFormat is text or json
	LogFormat string `json:"log_format"`

	// AssetsPath is the root of the avatar asset tree
	AssetsPath string `json:"assets_path"`

	// Mode is the requested avatar mode (falls back to the first available one)
	Mode string `json:"mode"`

	// FrameRate is the host frame rate the service simulates
	FrameRate int `json:"frame_rate"`

	// ShowTray enables the system tray menu
	ShowTray bool `json:"show_tray"`
}

// CaptureConfig contains device backend settings
type CaptureConfig struct {
	// Backend selects the device backend: auto, windows, x11, evdev or none
	Backend string `json:"backend"`

	// QueueCapacity bounds the hook/sampler thread to tick thread handoff
	QueueCapacity int `json:"queue_capacity"`

	// PollBudgetMS is the time budget for polling all backends in one tick
	PollBudgetMS int `json:"poll_budget_ms"`

	// MaxEventsPerDevice bounds reads per device per tick
	MaxEventsPerDevice int `json:"max_events_per_device"`

	// DeviceGlob is the evdev device file pattern
	DeviceGlob string `json:"device_glob"`

	// X11Display overrides $DISPLAY for the X11 backend
	X11Display string `json:"x11_display,omitempty"`

	// X11SampleMS is the sampling interval of the X11 capture thread
	X11SampleMS int `json:"x11_sample_ms"`

	// X11MaxRetries bounds reconnect attempts after a lost X connection
	X11MaxRetries int `json:"x11_max_retries"`

	// ScreenWidth and ScreenHeight bound the virtual cursor of relative devices
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`

	// Zones overrides the key zone table: zone name -> key names
	Zones map[string][]string `json:"zones,omitempty"`
}

// AvatarConfig contains state model timing
type AvatarConfig struct {
	// IdleTimeoutMS returns the expression to neutral after this much inactivity
	IdleTimeoutMS int `json:"idle_timeout_ms"`

	// ActivityWindowMS is the sliding window used for the press rate
	ActivityWindowMS int `json:"activity_window_ms"`

	// BurstWindowMS is the window used for counting simultaneous distinct zones
	BurstWindowMS int `json:"burst_window_ms"`
}

// AnimationConfig contains layered pose settings
type AnimationConfig struct {
	MaxDeltaMS      int     `json:"max_delta_ms"`
	EaseMS          int     `json:"ease_ms"`
	SpringHz        float64 `json:"spring_hz"`
	BlinkIntervalMS int     `json:"blink_interval_ms"`
	BlinkDurationMS int     `json:"blink_duration_ms"`
	BreathPeriodMS  int     `json:"breath_period_ms"`
	BreathAmplitude float64 `json:"breath_amplitude"`

	// AttachX and AttachY locate the head/arm attachment point in screen space
	AttachX float64 `json:"attach_x"`
	AttachY float64 `json:"attach_y"`

	// Reach is the pointer distance that maps to a full eye deflection
	Reach float64 `json:"reach"`

	HeadScale    float64 `json:"head_scale"`
	HeadLimitDeg float64 `json:"head_limit_deg"`
	ArmOffsetDeg float64 `json:"arm_offset_deg"`
	ArmLimitDeg  float64 `json:"arm_limit_deg"`
}

// ServerConfig contains pose stream settings
type ServerConfig struct {
	// Enabled starts the HTTP/websocket server
	Enabled bool `json:"enabled"`

	// Addr is the listen address (default: 127.0.0.1:18090)
	Addr string `json:"addr"`

	// Token is an optional bearer token for API requests
	Token string `json:"token,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:   "info",
			LogFormat:  "text",
			AssetsPath: "./assets/bongo_cat",
			Mode:       "keyboard",
			FrameRate:  60,
			ShowTray:   false,
		},
		Capture: CaptureConfig{
			Backend:            "auto",
			QueueCapacity:      1024,
			PollBudgetMS:       2,
			MaxEventsPerDevice: 64,
			DeviceGlob:         "/dev/input/event*",
			X11SampleMS:        8,
			X11MaxRetries:      5,
			ScreenWidth:        1920,
			ScreenHeight:       1080,
		},
		Avatar: AvatarConfig{
			IdleTimeoutMS:    5000,
			ActivityWindowMS: 1000,
			BurstWindowMS:    100,
		},
		Animation: AnimationConfig{
			MaxDeltaMS:      100,
			EaseMS:          60,
			SpringHz:        2.5,
			BlinkIntervalMS: 4000,
			BlinkDurationMS: 150,
			BreathPeriodMS:  3200,
			BreathAmplitude: 0.04,
			AttachX:         960,
			AttachY:         540,
			Reach:           600,
			HeadScale:       0.25,
			HeadLimitDeg:    30,
			ArmOffsetDeg:    90,
			ArmLimitDeg:     120,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:18090",
		},
	}
}

// Normalize fills zero or invalid values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.General.FrameRate <= 0 || c.General.FrameRate > 480 {
		c.General.FrameRate = d.General.FrameRate
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = d.General.LogLevel
	}
	if c.Capture.Backend == "" {
		c.Capture.Backend = d.Capture.Backend
	}
	if c.Capture.QueueCapacity <= 0 {
		c.Capture.QueueCapacity = d.Capture.QueueCapacity
	}
	if c.Capture.PollBudgetMS <= 0 {
		c.Capture.PollBudgetMS = d.Capture.PollBudgetMS
	}
	if c.Capture.MaxEventsPerDevice <= 0 {
		c.Capture.MaxEventsPerDevice = d.Capture.MaxEventsPerDevice
	}
	if c.Capture.DeviceGlob == "" {
		c.Capture.DeviceGlob = d.Capture.DeviceGlob
	}
	if c.Capture.X11SampleMS <= 0 {
		c.Capture.X11SampleMS = d.Capture.X11SampleMS
	}
	if c.Capture.X11MaxRetries <= 0 {
		c.Capture.X11MaxRetries = d.Capture.X11MaxRetries
	}
	if c.Capture.ScreenWidth <= 0 || c.Capture.ScreenHeight <= 0 {
		c.Capture.ScreenWidth, c.Capture.ScreenHeight = d.Capture.ScreenWidth, d.Capture.ScreenHeight
	}
	if c.Avatar.IdleTimeoutMS <= 0 {
		c.Avatar.IdleTimeoutMS = d.Avatar.IdleTimeoutMS
	}
	if c.Avatar.ActivityWindowMS <= 0 {
		c.Avatar.ActivityWindowMS = d.Avatar.ActivityWindowMS
	}
	if c.Avatar.BurstWindowMS <= 0 {
		c.Avatar.BurstWindowMS = d.Avatar.BurstWindowMS
	}

	a := &c.Animation
	if a.MaxDeltaMS <= 0 {
		a.MaxDeltaMS = d.Animation.MaxDeltaMS
	}
	if a.EaseMS <= 0 {
		a.EaseMS = d.Animation.EaseMS
	}
	if a.SpringHz <= 0 {
		a.SpringHz = d.Animation.SpringHz
	}
	if a.BlinkIntervalMS <= 0 {
		a.BlinkIntervalMS = d.Animation.BlinkIntervalMS
	}
	if a.BlinkDurationMS <= 0 || a.BlinkDurationMS >= a.BlinkIntervalMS {
		a.BlinkDurationMS = d.Animation.BlinkDurationMS
	}
	if a.BreathPeriodMS <= 0 {
		a.BreathPeriodMS = d.Animation.BreathPeriodMS
	}
	if a.Reach <= 0 {
		a.Reach = d.Animation.Reach
	}
	if a.HeadScale == 0 {
		a.HeadScale = d.Animation.HeadScale
	}
	if a.HeadLimitDeg <= 0 {
		a.HeadLimitDeg = d.Animation.HeadLimitDeg
	}
	if a.ArmLimitDeg <= 0 {
		a.ArmLimitDeg = d.Animation.ArmLimitDeg
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a new configuration manager. An empty path selects the
// per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.configPath
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "keyavatar")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "keyavatar")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "keyavatar")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "keyavatar")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.config.Normalize()
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return err
	}
	cfg.Normalize()
	m.config = cfg
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Info("config: saving settings", "path", m.configPath, "bytes", len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set updates the configuration
func (m *Manager) Set(config Config) {
	config.Normalize()
	m.mu.Lock()
	m.config = &config
	cb := m.onChanged
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
