package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	d := DefaultConfig()
	if cfg.General.FrameRate != d.General.FrameRate || cfg.Server.Addr != d.Server.Addr {
		t.Errorf("Expected defaults, got %+v", cfg.General)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"general":{"mode":"standard","frame_rate":0},"capture":{"backend":"evdev","zones":{"thumb":["SPACE","B"]}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m, _ := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := m.Get()

	if cfg.General.Mode != "standard" {
		t.Errorf("Expected mode standard, got %s", cfg.General.Mode)
	}
	if cfg.General.FrameRate != 60 {
		t.Errorf("Expected invalid frame rate replaced by 60, got %d", cfg.General.FrameRate)
	}
	if cfg.Capture.Backend != "evdev" || len(cfg.Capture.Zones["thumb"]) != 2 {
		t.Errorf("Expected capture overrides, got %+v", cfg.Capture)
	}
	if cfg.Avatar.IdleTimeoutMS != 5000 {
		t.Errorf("Expected untouched sections to keep defaults, got %d", cfg.Avatar.IdleTimeoutMS)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	m, _ := NewManager(path)
	if err := m.Load(); err == nil {
		t.Error("Expected error for invalid JSON")
	}
	if m.Get().General.FrameRate != 60 {
		t.Error("Expected defaults kept after failed load")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	m, _ := NewManager(path)

	cfg := m.Get()
	cfg.Server.Token = "secret"
	cfg.Animation.SpringHz = 4
	m.Set(cfg)
	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	other, _ := NewManager(path)
	if err := other.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := other.Get(); got.Server.Token != "secret" || got.Animation.SpringHz != 4 {
		t.Errorf("Expected saved values, got token %q spring %v", got.Server.Token, got.Animation.SpringHz)
	}
}

func TestNormalizeBlinkDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Animation.BlinkIntervalMS = 1000
	cfg.Animation.BlinkDurationMS = 2000
	cfg.Normalize()

	if cfg.Animation.BlinkDurationMS >= cfg.Animation.BlinkIntervalMS {
		t.Errorf("Expected blink shorter than interval, got %d >= %d", cfg.Animation.BlinkDurationMS, cfg.Animation.BlinkIntervalMS)
	}
}

func TestChangeCallback(t *testing.T) {
	m, _ := NewManager(filepath.Join(t.TempDir(), "config.json"))
	calls := 0
	m.RegisterChangeCallback(func() { calls++ })

	m.Set(m.Get())
	if calls != 1 {
		t.Errorf("Expected 1 callback, got %d", calls)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("APPDATA", "/tmp/appdata")
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if filepath.Base(m.Path()) != "config.json" || filepath.Base(filepath.Dir(m.Path())) != "keyavatar" {
		t.Errorf("Expected .../keyavatar/config.json, got %s", m.Path())
	}
}
