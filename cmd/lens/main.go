// Lens - point a camera at a sign, get the text translated.
// Serves the dashboard and headset relay, or scans a single image with -image.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-lens/internal/config"
	lenslog "github.com/teslashibe/go-lens/internal/log"
	"github.com/teslashibe/go-lens/pkg/lens"
	"github.com/teslashibe/go-lens/pkg/web"
)

func main() {
	cfg, image := parseFlags()

	logs := web.NewLogBuffer(500)
	lenslog.InitWithOptions(lenslog.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Wrap: func(h slog.Handler) slog.Handler {
			return logs.Handler(h, slog.LevelInfo)
		},
	})

	app, err := lens.New(cfg, lens.WithLogs(logs), lens.WithLogger(lenslog.L()))
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		app.Shutdown()
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	if image {
		run, err := app.Scan(ctx)
		if err != nil {
			log.Fatalf("❌ Scan failed: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(run)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads the configuration and applies command line overrides.
// It reports whether a one-shot image scan was requested.
func parseFlags() (*config.Config, bool) {
	configPath := flag.String("config", "", "YAML config file")
	image := flag.String("image", "", "Scan this image once, print the result and exit")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	target := flag.String("target", "", "Target language (overrides translate.target)")
	source := flag.String("source", "", "Frame source: relay, webrtc, webcam, image")
	pose := flag.Bool("pose", false, "Enable pose tracking")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	// lens.New validates again after the overrides.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *target != "" {
		cfg.Translate.Target = *target
	}
	if *source != "" {
		cfg.Source.Kind = *source
	}
	if *pose {
		cfg.Pose.Enabled = true
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *image != "" {
		cfg.Source.Kind = "image"
		cfg.Source.ImagePath = *image
	}
	return cfg, *image != ""
}
