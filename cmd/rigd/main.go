package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cropeye/rig/internal/config"
	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/camera"
	"github.com/cropeye/rig/pkg/multispec"
	"github.com/cropeye/rig/pkg/plc"
	"github.com/cropeye/rig/pkg/route"
	"github.com/cropeye/rig/pkg/saver"
	"github.com/cropeye/rig/pkg/uplink"
	"github.com/cropeye/rig/pkg/web"
)

func main() {
	configPath := flag.String("config", "rig.yaml", "Path to YAML config")
	listen := flag.String("listen", "", "Listen address override")
	noPLC := flag.Bool("no-plc", false, "Run without the PLC link (camera-only bench mode)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Init("info")
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	level := cfg.LogLevel
	if *debug {
		level = "debug"
	}
	log.Init(level)

	var comps web.Components

	// PLC link. Motion control is unavailable without it; endpoints
	// answer 503 rather than taking the whole daemon down.
	if !*noPLC {
		link, err := plc.Dial(cfg.PLC.Addr, byte(cfg.PLC.SlaveID), cfg.PLC.Timeout())
		if err != nil {
			log.Error("plc unavailable, motion control disabled", "err", err)
		} else {
			defer link.Close()
			comps.Link = link
			comps.Runner = route.NewRunner(link)
			log.Info("plc connected", "addr", cfg.PLC.Addr)
		}
	}

	// Save notifications fan out to websocket viewers and, when
	// configured, to the remote collector. Both consumers are lossy.
	notify := make(chan saver.Event, 64)
	wsEvents := make(chan saver.Event, 64)
	var upEvents chan saver.Event
	if cfg.Uplink.URL != "" {
		upEvents = make(chan saver.Event, 64)
		up := uplink.New(cfg.Uplink.URL, cfg.Uplink.Rig, upEvents)
		up.Start()
		defer up.Stop()
		log.Info("uplink enabled", "url", cfg.Uplink.URL)
	}
	go func() {
		for ev := range notify {
			select {
			case wsEvents <- ev:
			default:
			}
			if upEvents != nil {
				select {
				case upEvents <- ev:
				default:
				}
			}
		}
	}()
	comps.Events = wsEvents
	comps.Notify = notify

	// RGB preview camera and the save pipeline behind it.
	resolver := camera.V4L2Resolver{}
	prevCtrl := camera.NewControlsStore(cfg.Camera.FocusControls())
	preview, err := camera.Open(camera.SessionConfig{
		Name:    "preview",
		Keyword: cfg.Camera.Keyword,
		Width:   cfg.Camera.Width,
		Height:  cfg.Camera.Height,
	}, resolver, camera.UVCOpener(prevCtrl))
	if err != nil {
		log.Error("preview camera unavailable", "err", err)
	} else {
		defer preview.Stop()
		comps.Preview = preview
		comps.PreviewControls = prevCtrl

		pool := saver.New(saver.Options{
			Workers:        cfg.Camera.SaveWorkers,
			JPEGQuality:    cfg.Camera.JPEGQuality,
			PNGCompression: cfg.Camera.PNGCompression,
			Notify:         notify,
		})
		pool.Start()
		comps.Recorder = saver.NewRecorder(preview, pool, saver.RecorderOptions{
			SaveDir:  cfg.Camera.SaveDir,
			Format:   cfg.Camera.SaveFormat,
			Interval: cfg.Camera.Interval(),
		})
		log.Info("preview camera up", "keyword", cfg.Camera.Keyword,
			"width", cfg.Camera.Width, "height", cfg.Camera.Height)
	}

	// Spectral array. Channels that fail to open are skipped inside the
	// registry, so this always succeeds.
	spectral := multispec.NewRegistry(cfg.Multispec.Channels, resolver, camera.SpectralOpener(cfg.Multispec.Controls))
	defer spectral.Stop()
	comps.Spectral = spectral

	srv := web.NewServer(cfg, comps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		if comps.Runner != nil {
			comps.Runner.Stop(false)
		}
		if comps.Recorder != nil {
			comps.Recorder.StopTimed()
			comps.Recorder.Pool().Stop()
		}
		srv.Shutdown()
	}()

	if err := srv.Start(); err != nil {
		log.Error("http server stopped", "err", err)
		os.Exit(1)
	}

	// Give in-flight save jobs a moment to land on disk.
	time.Sleep(100 * time.Millisecond)
}
