package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/emotive-engine/groove/internal/app"
	"github.com/emotive-engine/groove/internal/audiofeed"
	"github.com/emotive-engine/groove/internal/preview"
)

func main() {
	var (
		deviceName    = flag.String("audio-device", "", "Optional PortAudio device name (substring match)")
		width         = flag.Int("width", 80, "Preview frame width")
		height        = flag.Int("height", 24, "Preview frame height")
		targetFPS     = flag.Float64("fps", 60, "Target frames per second")
		bufferSize    = flag.Int("buffer-size", 2048, "Audio capture buffer size (power of two recommended)")
		bpm           = flag.Float64("bpm", 120, "Default tempo before audio lock (40-220)")
		minBPM        = flag.Float64("min-bpm", 40, "Lower tempo bound")
		maxBPM        = flag.Float64("max-bpm", 220, "Upper tempo bound")
		beatsPerBar   = flag.Int("beats-per-bar", 4, "Beats per bar")
		barsPerPhrase = flag.Int("bars-per-phrase", 4, "Bars per phrase")
		noAudio       = flag.Bool("no-audio", false, "Run with a synthetic beat generator")
		debug         = flag.Bool("debug", false, "Enable verbose logging")
		showStatus    = flag.Bool("status", true, "Display status bar")
		noColor       = flag.Bool("no-color", false, "Disable ANSI color output")
		useSDL        = flag.Bool("sdl", false, "Render to an SDL window (requires -tags sdl build)")
		webPort       = flag.Int("web-port", 0, "HTTP control port (0 disables the web server)")
		profilePath   = flag.String("profile", "", "Write per-frame timing CSV to this file")
		listDevs      = flag.Bool("list-audio-devices", false, "List available audio input devices and exit")
	)

	flag.Parse()

	if *width <= 0 || *height <= 0 {
		log.Fatalf("invalid dimensions: width=%d height=%d", *width, *height)
	}
	if *targetFPS <= 0 {
		log.Fatalf("fps must be positive (got %.2f)", *targetFPS)
	}
	if *bufferSize <= 0 {
		log.Fatalf("buffer-size must be positive (got %d)", *bufferSize)
	}
	if *useSDL && !preview.SupportsSDL() {
		log.Fatalf("SDL backend requested but not compiled in; rebuild with -tags sdl")
	}

	if fd := int(os.Stdout.Fd()); fd >= 0 && !*useSDL {
		if w, h, err := term.GetSize(fd); err == nil {
			if w > 0 {
				*width = w
			}
			if h > 0 {
				*height = h
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "[groove] ", log.LstdFlags)
	if !*debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	needAudio := !*noAudio || *listDevs
	if needAudio {
		if err := audiofeed.Initialize(); err != nil {
			logger.Fatalf("failed to initialize PortAudio: %v", err)
		}
		defer audiofeed.Terminate()
	}

	if *listDevs {
		devices, err := audiofeed.ListDevices()
		if err != nil {
			logger.Fatalf("list devices: %v", err)
		}
		fmt.Printf("\n=== Audio Input Devices ===\n\n")
		for _, dev := range devices {
			markers := ""
			if dev.IsDefaultInput {
				markers += " (default)"
			}
			fmt.Printf("- %s [%s]%s\n    inputs:%d sample:%.0f Hz\n",
				dev.Name, dev.HostAPI, markers, dev.MaxInput, dev.DefaultSampleHz)
		}
		return
	}

	a, err := app.New(app.Config{
		DeviceName:    *deviceName,
		Width:         *width,
		Height:        *height,
		TargetFPS:     *targetFPS,
		BufferSize:    *bufferSize,
		DefaultBPM:    *bpm,
		MinBPM:        *minBPM,
		MaxBPM:        *maxBPM,
		BeatsPerBar:   *beatsPerBar,
		BarsPerPhrase: *barsPerPhrase,
		DisableAudio:  *noAudio,
		ShowStatusBar: *showStatus,
		UseANSI:       !*noColor,
		UseSDL:        *useSDL,
		WebPort:       *webPort,
		ProfilePath:   *profilePath,
		Log:           logger,
	})
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nExiting...")
			return
		}
		logger.Fatalf("runtime error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
}
