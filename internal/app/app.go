package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"

	"github.com/emotive-engine/groove/internal/audiofeed"
	"github.com/emotive-engine/groove/internal/engine"
	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/preview"
	"github.com/emotive-engine/groove/internal/tempo"
	"github.com/emotive-engine/groove/internal/web"
)

// Config configures the application runtime.
type Config struct {
	DeviceName    string
	Width         int
	Height        int
	TargetFPS     float64
	BufferSize    int
	DefaultBPM    float64
	MinBPM        float64
	MaxBPM        float64
	BeatsPerBar   int
	BarsPerPhrase int
	DisableAudio  bool
	ShowStatusBar bool
	UseANSI       bool
	UseSDL        bool
	WebPort       int
	ProfilePath   string
	Log           *log.Logger
}

type inputEventKind int

const (
	inputEventQuit inputEventKind = iota
	inputEventTap
	inputEventGroove
	inputEventTrigger
)

type inputEvent struct {
	kind    inputEventKind
	gesture string
}

// gestureKeys maps keyboard characters to built-in gestures. Triggers align
// to the next beat so keystrokes land in time.
var gestureKeys = map[rune]string{
	'b': "bounce",
	's': "sway",
	'p': "pulse",
	'o': "pop",
	'n': "nod",
	'w': "wiggle",
	'r': "spin",
	't': "twist",
	'e': "stretch",
	'f': "flash",
	'k': "sparkle",
	'm': "shimmer",
}

// grooveLevels cycled by the 'g' key; a negative value restores the
// lock-stage table.
var grooveLevels = []float64{0.25, 0.5, 0.75, 1.0, -1}

// App ties together audio analysis, the groove engine, and the preview.
type App struct {
	cfg         Config
	engine      *engine.Engine
	feed        *audiofeed.Feed
	synth       *engine.Synthetic
	renderer    *preview.Renderer
	web         *web.Server
	prof        *frameProfiler
	log         *log.Logger
	deviceLabel string
	last        time.Time

	width        int
	height       int
	renderHeight int

	inputEvents chan inputEvent
	tapTimes    []time.Time
	grooveIdx   int
	grooveLabel string
}

// New constructs the application using the provided configuration.
func New(cfg Config) (*App, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stdout, "", log.LstdFlags)
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	renderHeight := cfg.Height
	if cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	renderer, err := preview.New(cfg.Width, renderHeight, cfg.UseANSI)
	if err != nil {
		return nil, err
	}
	if cfg.UseSDL {
		if err := renderer.EnableSDL(); err != nil {
			return nil, err
		}
	}

	app := &App{
		cfg:          cfg,
		renderer:     renderer,
		log:          cfg.Log,
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
		prof:         openProfiler(cfg.ProfilePath, cfg.Log),
		grooveIdx:    -1,
		grooveLabel:  "auto",
	}

	app.engine = engine.New(engine.Config{
		DefaultBPM:    cfg.DefaultBPM,
		MinBPM:        cfg.MinBPM,
		MaxBPM:        cfg.MaxBPM,
		BeatsPerBar:   cfg.BeatsPerBar,
		BarsPerPhrase: cfg.BarsPerPhrase,
		TargetFPS:     cfg.TargetFPS,
		Log:           cfg.Log,
	})

	if cfg.DisableAudio {
		app.synth = engine.NewSynthetic(cfg.DefaultBPM)
		app.log.Println("audio disabled, using synthetic beat generator")
	} else {
		feed, err := audiofeed.NewFeed(audiofeed.FeedConfig{
			DeviceName: cfg.DeviceName,
			BufferSize: cfg.BufferSize,
			Log:        cfg.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("audio feed: %w", err)
		}
		app.feed = feed
		app.deviceLabel = feed.DeviceName()
	}

	if cfg.WebPort > 0 {
		app.web = web.NewServer(app.engine, cfg.Log)
	}

	app.last = time.Now()
	return app, nil
}

// Engine returns the underlying engine for host-level wiring.
func (a *App) Engine() *engine.Engine { return a.engine }

// Run starts the render loop until context cancellation.
func (a *App) Run(ctx context.Context) error {
	frameDuration := time.Duration(float64(time.Second) / a.cfg.TargetFPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	terminal := !a.cfg.UseSDL
	if terminal {
		enterAltScreen()
		clearScreen()
		hideCursor()
		defer func() {
			showCursor()
			exitAltScreen()
		}()
	}

	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()
	a.startInputListener(inputCtx)
	a.ensureDimensions()

	if a.feed != nil {
		go func() {
			if err := a.feed.Run(inputCtx, func(frame tempo.FeatureFrame) {
				a.engine.IngestFrame(frame)
			}); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Printf("audio feed stopped: %v", err)
			}
		}()
	}

	if a.web != nil {
		go func() {
			if err := a.web.Start(a.cfg.WebPort); err != nil {
				a.log.Printf("web server stopped: %v", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			moveCursorHome()
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			if quit := a.handleInput(evt); quit {
				moveCursorHome()
				return nil
			}
		case now := <-ticker.C:
			if err := a.step(now); err != nil {
				if errors.Is(err, preview.ErrQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases held resources.
func (a *App) Close() error {
	var err error
	if a.feed != nil {
		err = a.feed.Close()
	}
	if cerr := a.renderer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if a.prof != nil {
		if perr := a.prof.Close(); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func (a *App) step(now time.Time) error {
	a.ensureDimensions()
	a.prof.begin(now)

	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / a.cfg.TargetFPS
	}
	a.last = now

	if a.synth != nil {
		a.engine.IngestFrame(a.synth.Next(now))
	}
	a.prof.section(sectionIngest)

	out := a.engine.Step(now)
	a.prof.section(sectionStep)

	fps := 1.0 / delta
	frame := a.renderer.Render(out.Transform, out.State, out.Groove, fps)
	a.prof.section(sectionRender)

	statusText := fmt.Sprintf("%s | groove=%s", frame.Status, a.grooveLabel)
	if a.deviceLabel != "" {
		statusText = fmt.Sprintf("%s | mic=%s", statusText, a.deviceLabel)
	}

	if frame.Present != nil {
		if err := frame.Present(statusText); err != nil {
			return err
		}
	} else {
		moveCursorHome()
		for _, line := range frame.Lines {
			fmt.Println(line)
		}
		if a.cfg.ShowStatusBar {
			fmt.Println(statusBar(statusText, a.width))
		}
	}
	a.prof.section(sectionPresent)

	if a.web != nil {
		a.web.Publish(out)
	}
	a.prof.flush()
	return nil
}

func (a *App) handleInput(evt inputEvent) (quit bool) {
	switch evt.kind {
	case inputEventQuit:
		return true
	case inputEventTap:
		a.handleTap(time.Now())
	case inputEventGroove:
		a.cycleGroove()
	case inputEventTrigger:
		if _, err := a.engine.TriggerGesture(evt.gesture, gesture.NextBeat()); err != nil {
			a.log.Printf("trigger %q: %v", evt.gesture, err)
		}
	}
	return false
}

// handleTap folds spacebar taps into a manual tempo. Taps more than two
// seconds apart start a fresh measurement.
func (a *App) handleTap(now time.Time) {
	if n := len(a.tapTimes); n > 0 && now.Sub(a.tapTimes[n-1]) > 2*time.Second {
		a.tapTimes = a.tapTimes[:0]
	}
	a.tapTimes = append(a.tapTimes, now)
	if len(a.tapTimes) > 5 {
		a.tapTimes = a.tapTimes[len(a.tapTimes)-5:]
	}
	if len(a.tapTimes) < 2 {
		return
	}

	total := a.tapTimes[len(a.tapTimes)-1].Sub(a.tapTimes[0]).Seconds()
	mean := total / float64(len(a.tapTimes)-1)
	applied := a.engine.SetBPM(60.0 / mean)
	a.log.Printf("tap tempo -> %.1f bpm", applied)
}

func (a *App) cycleGroove() {
	a.grooveIdx = (a.grooveIdx + 1) % len(grooveLevels)
	level := grooveLevels[a.grooveIdx]
	if level < 0 {
		a.engine.ClearGrooveConfidence()
		a.grooveLabel = "auto"
		return
	}
	a.engine.SetGrooveConfidence(level)
	a.grooveLabel = fmt.Sprintf("%.2f", level)
}

func (a *App) ensureDimensions() {
	if a.cfg.UseSDL {
		return
	}
	fd := int(os.Stdout.Fd())
	if fd < 0 {
		return
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}

	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}
	if renderHeight <= 0 {
		renderHeight = 1
	}

	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}

	a.width = w
	a.height = h
	a.renderHeight = renderHeight
	a.renderer.Resize(w, renderHeight)
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch {
			case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
				events <- inputEvent{kind: inputEventQuit}
				return
			case char == 'q' || char == 'Q':
				events <- inputEvent{kind: inputEventQuit}
				return
			case key == keyboard.KeySpace:
				select {
				case events <- inputEvent{kind: inputEventTap}:
				default:
				}
			case char == 'g' || char == 'G':
				select {
				case events <- inputEvent{kind: inputEventGroove}:
				default:
				}
			default:
				if name, ok := gestureKeys[lowerRune(char)]; ok {
					select {
					case events <- inputEvent{kind: inputEventTrigger, gesture: name}:
					default:
					}
				}
			}
		}
	}()
}

func lowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	return text + strings.Repeat(" ", padding)
}

func clearScreen() {
	fmt.Print("\x1b[2J")
	moveCursorHome()
}

func moveCursorHome() {
	fmt.Print("\x1b[H")
}

func hideCursor() {
	fmt.Print("\x1b[?25l")
}

func showCursor() {
	fmt.Print("\x1b[?25h")
}

func enterAltScreen() {
	fmt.Print("\x1b[?1049h")
}

func exitAltScreen() {
	fmt.Print("\x1b[?1049l\x1b[0m")
}
