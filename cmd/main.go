// KeyAvatar - reactive avatar driven by keyboard and mouse input
// Captures input devices and streams layered avatar poses over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"keyavatar/internal/animation"
	"keyavatar/internal/api"
	"keyavatar/internal/assets"
	"keyavatar/internal/autostart"
	"keyavatar/internal/config"
	"keyavatar/internal/input"
	"keyavatar/internal/log"
	"keyavatar/internal/network"
	"keyavatar/internal/normalize"
	"keyavatar/internal/osutils"
	"keyavatar/internal/protocol"
	"keyavatar/internal/scheduler"
	"keyavatar/internal/tray"
)

var (
	version     = "0.1.0"
	showVer     = flag.Bool("version", false, "Show version")
	configPath  = flag.String("config", "", "Settings file (default: per-user config dir)")
	assetsPath  = flag.String("assets", "", "Asset tree root (overrides settings)")
	modeName    = flag.String("mode", "", "Avatar mode (overrides settings)")
	listDevs    = flag.Bool("list-devices", false, "List input devices of the detected backends")
	captureTest = flag.Bool("capture-test", false, "Print raw input events until interrupted")
	validate    = flag.Bool("validate", false, "Validate the asset tree and exit")
	tailAddr    = flag.String("tail", "", "Subscribe to a running pose stream at host:port and print it")
	demo        = flag.Bool("demo", false, "Drive the avatar from a scripted typist instead of devices")
	autoStart   = flag.String("autostart", "", "Start on login: on, off or status")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("keyavatar version %s\n", version)
		return
	}

	// Initialize config
	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		fatal("failed to initialize config", err)
	}
	loadErr := cfgMgr.Load()

	cfg := cfgMgr.Get()
	if *assetsPath != "" {
		cfg.General.AssetsPath = *assetsPath
	}
	if *modeName != "" {
		cfg.General.Mode = *modeName
	}
	cfgMgr.Set(cfg)

	if err := log.Init(log.Options{Level: cfg.General.LogLevel, Format: cfg.General.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log settings: %v\n", err)
	}
	if loadErr != nil {
		log.Warn("failed to load config, using defaults", "path", cfgMgr.Path(), "error", loadErr)
	}

	switch {
	case *validate:
		runValidate(cfg.General.AssetsPath)
	case *listDevs:
		listDevices(cfg)
	case *captureTest:
		runCaptureTest(cfg)
	case *autoStart != "":
		runAutostart(*autoStart, *configPath)
	case *tailAddr != "":
		runTail(*tailAddr, cfg.Server.Token)
	default:
		runService(cfgMgr)
	}
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func runValidate(root string) {
	report := assets.Validate(root)
	for _, e := range report.Errors {
		fmt.Printf("ERROR   %s\n", e)
	}
	for _, w := range report.Warnings {
		fmt.Printf("WARNING %s\n", w)
	}
	fmt.Printf("%s: %d modes, %d faces, %d errors, %d warnings\n",
		root, len(report.Modes), report.Faces, len(report.Errors), len(report.Warnings))
	if !report.OK() {
		os.Exit(1)
	}
}

func runAutostart(action, cfgPath string) {
	switch action {
	case "on":
		var args []string
		if cfgPath != "" {
			if abs, err := filepath.Abs(cfgPath); err == nil {
				cfgPath = abs
			}
			args = []string{"-config", cfgPath}
		}
		entry, err := autostart.Current(args...)
		if err != nil {
			fatal("failed to resolve executable", err)
		}
		if err := autostart.Enable(entry); err != nil {
			fatal("failed to enable autostart", err)
		}
		fmt.Printf("Autostart enabled: %s\n", entry.CommandLine())
	case "off":
		if err := autostart.Disable(); err != nil {
			fatal("failed to disable autostart", err)
		}
		fmt.Println("Autostart disabled")
	case "status":
		fmt.Printf("Autostart enabled: %v\n", autostart.IsEnabled())
	default:
		fmt.Fprintf(os.Stderr, "unknown autostart action %q (want on, off or status)\n", action)
		os.Exit(2)
	}
}

func openBackends(cfg config.Config) []input.Backend {
	backends, err := input.Detect(scheduler.DetectConfig(cfg), input.EnvFromOS())
	if err != nil {
		fatal("failed to select input backend", err)
	}
	for _, b := range backends {
		if ok, hint := osutils.CaptureAccess(b.Name()); hint != "" {
			if ok {
				log.Warn("input capture limited", "backend", b.Name(), "reason", hint)
			} else {
				log.Error("input capture unavailable", "backend", b.Name(), "reason", hint)
			}
		}
	}
	return backends
}

func listDevices(cfg config.Config) {
	backends := openBackends(cfg)
	if len(backends) == 0 {
		fmt.Println("No input backend selected")
		return
	}

	for _, b := range backends {
		fmt.Printf("Backend: %s\n", b.Name())
		fmt.Println("-------------------")
		devices, err := b.Open()
		if err != nil {
			fmt.Printf("  unavailable: %v\n\n", err)
			continue
		}
		for _, d := range devices {
			fmt.Printf("ID: %s\n", d.ID)
			fmt.Printf("  Name: %s\n", d.Name)
			if d.Path != "" {
				fmt.Printf("  Path: %s\n", d.Path)
			}
			fmt.Printf("  Capabilities: %s\n", d.Caps)
		}
		fmt.Println()
		b.Close()
	}
}

func runCaptureTest(cfg config.Config) {
	zones, err := normalize.DefaultZoneTable().With(cfg.Capture.Zones)
	if err != nil {
		fatal("invalid zone overrides", err)
	}
	norm := normalize.New(zones)

	backends := openBackends(cfg)
	var open []input.Backend
	for _, b := range backends {
		devices, err := b.Open()
		if err != nil {
			log.Warn("backend unavailable", "backend", b.Name(), "error", err)
			continue
		}
		log.Info("capturing", "backend", b.Name(), "devices", len(devices))
		open = append(open, b)
	}
	if len(open) == 0 {
		fatal("no input backend could be opened", input.ErrUnsupported)
	}
	defer func() {
		for _, b := range open {
			b.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	fmt.Println("Capturing input. Press Ctrl+C to stop.")
	limit := scheduler.PollLimit(cfg)
	var buf []input.RawEvent
	for {
		select {
		case <-sigCh:
			fmt.Printf("%+v\n", norm.Stats())
			return
		case <-ticker.C:
			for _, b := range open {
				buf = b.Poll(buf[:0], limit)
				for _, ev := range buf {
					if err := norm.Ingest(ev); err != nil {
						log.Debug("event dropped", "backend", b.Name(), "error", err)
					}
				}
			}
			for _, ev := range norm.Drain() {
				printEvent(ev)
			}
		}
	}
}

func printEvent(ev normalize.InputEvent) {
	ts := ev.Time.Format("15:04:05.000")
	if ev.Kind == normalize.MouseMove {
		fmt.Printf("%s #%-6d %-12s %-12s %.0f,%.0f\n", ts, ev.Seq, ev.DeviceID, ev.Kind, ev.Pos.X, ev.Pos.Y)
		return
	}
	zone := ev.Zone
	if zone == "" {
		zone = "-"
	}
	state := "up"
	if ev.Pressed {
		state = "down"
	}
	fmt.Printf("%s #%-6d %-12s %-12s %-10s %-4s %-10s (0x%X)\n", ts, ev.Seq, ev.DeviceID, ev.Kind, input.KeyName(ev.Code), state, zone, ev.Code)
}

func runTail(addr, token string) {
	var mu sync.Mutex
	var params []string

	c := network.NewPoseClient(addr, token)
	c.OnHello = func(h protocol.HelloPayload) {
		mu.Lock()
		params = h.Params
		mu.Unlock()
		fmt.Printf("session %s mode %s (%d params)\n", h.Session, h.Mode, len(h.Params))
	}
	c.OnPose = func(p protocol.PosePayload) {
		values, err := p.DecodeParams()
		if err != nil {
			log.Warn("invalid pose", "seq", p.Seq, "error", err)
			return
		}
		mu.Lock()
		names := params
		mu.Unlock()

		var sb strings.Builder
		for _, name := range names {
			if v := values[name]; v != 0 {
				fmt.Fprintf(&sb, " %s=%.3g", name, v)
			}
		}
		fmt.Printf("#%d%s\n", p.Seq, sb.String())
	}
	c.Start()
	defer c.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func runService(cfgMgr *config.Manager) {
	cfg := cfgMgr.Get()
	log.Info("keyavatar starting", "version", version, "config", cfgMgr.Path())

	table, errs := assets.Load(cfg.General.AssetsPath)
	for _, err := range errs {
		log.Warn("asset tree problem", "error", err)
	}

	var backends []input.Backend
	var typist *input.ManualBackend
	if *demo {
		typist = input.NewManualBackend(cfg.Capture.QueueCapacity)
		backends = []input.Backend{typist}
	} else {
		backends = openBackends(cfg)
	}

	var apiServer *api.Server
	opts := scheduler.Options{
		Backends:         backends,
		Assets:           table,
		Mode:             cfg.General.Mode,
		Zones:            cfg.Capture.Zones,
		Animation:        scheduler.AnimationConfig(cfg),
		Rules:            scheduler.BaseRules(cfg),
		ActivityWindow:   time.Duration(cfg.Avatar.ActivityWindowMS) * time.Millisecond,
		BurstWindow:      time.Duration(cfg.Avatar.BurstWindowMS) * time.Millisecond,
		PollBudget:       time.Duration(cfg.Capture.PollBudgetMS) * time.Millisecond,
		MaxEventsPerPoll: scheduler.PollLimit(cfg),
		OnFrame: func(seq uint64, frame animation.PoseFrame) {
			if apiServer != nil {
				apiServer.PublishPose(seq, frame)
			}
		},
	}
	sched, err := scheduler.New(opts)
	if err != nil {
		fatal("failed to build pipeline", err)
	}
	defer sched.Close()

	// Start API server if enabled
	if cfg.Server.Enabled {
		// Remote viewers need an inbound rule on Windows
		if port, remote := listenPort(cfg.Server.Addr); remote {
			go func() {
				if err := osutils.EnsureFirewallRule(port); err != nil {
					log.Warn("firewall rule", "port", port, "error", err)
				}
			}()
		}

		apiServer = api.NewServer(api.Options{Controller: sched, Token: cfg.Server.Token, Version: version})
		go func() {
			if err := apiServer.Start(cfg.Server.Addr); err != nil {
				log.Error("pose stream stopped", "error", err)
			}
		}()
	}

	// Settings reload: log level and mode apply live
	cfgMgr.RegisterChangeCallback(func() {
		next := cfgMgr.Get()
		if err := log.Init(log.Options{Level: next.General.LogLevel, Format: next.General.LogFormat}); err != nil {
			log.Warn("invalid log settings", "error", err)
		}
		if next.General.Mode != cfg.General.Mode {
			sched.RequestMode(next.General.Mode)
		}
		cfg = next
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	rate := cfg.General.FrameRate

	wg.Add(1)
	go func() {
		defer wg.Done()
		runFrames(ctx, sched, rate)
	}()

	if typist != nil {
		script := newTypist(typist, opts.Animation)
		wg.Add(1)
		go func() {
			defer wg.Done()
			script.run(ctx)
		}()
	}

	stop := func() {
		log.Info("shutting down")
		cancel()
		wg.Wait()
		if apiServer != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				log.Warn("pose stream shutdown", "error", err)
			}
		}
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	if cfg.General.ShowTray {
		t := tray.New(sched, nil)
		go func() {
			for sig := range sigCh {
				if sig == syscall.SIGHUP {
					reload(cfgMgr)
					continue
				}
				t.Stop()
				return
			}
		}()
		log.Info("keyavatar running in tray")
		t.Run()
		stop()
		return
	}

	log.Info("keyavatar running. Press Ctrl+C to stop.", "frame_rate", rate)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			reload(cfgMgr)
			continue
		}
		break
	}
	stop()
}

// listenPort returns the port of addr and whether addr accepts remote peers.
func listenPort(addr string) (int, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	if host == "localhost" {
		return port, false
	}
	ip := net.ParseIP(host)
	return port, ip == nil || !ip.IsLoopback()
}

func reload(cfgMgr *config.Manager) {
	if err := cfgMgr.Load(); err != nil {
		log.Warn("failed to reload config", "path", cfgMgr.Path(), "error", err)
		return
	}
	log.Info("config reloaded", "path", cfgMgr.Path())
}

// runFrames ticks the pipeline at the host frame rate.
func runFrames(ctx context.Context, sched *scheduler.Scheduler, rate int) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sched.Tick(now)
		}
	}
}
