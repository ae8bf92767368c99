//go:build sdl

package preview

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
)

type sdlState struct {
	initialized bool
	window      *sdl.Window
	renderer    *sdl.Renderer
	texture     *sdl.Texture
	pixelBuffer []byte
	width       int
	height      int
	pitch       int
	windowTitle string
}

func (r *Renderer) initSDL(width, height int) error {
	if r.sdl != nil {
		r.mode = backendSDL
		r.useANSI = false
		return nil
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return err
	}
	r.sdl = &sdlState{initialized: true}
	r.mode = backendSDL
	r.useANSI = false
	return nil
}

func (r *Renderer) ensureSDLResources() error {
	if r.sdl == nil {
		return fmt.Errorf("SDL backend not initialized")
	}
	state := r.sdl
	if !state.initialized {
		if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
			return err
		}
		state.initialized = true
	}
	if state.window == nil {
		window, err := sdl.CreateWindow(
			"groove",
			sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
			int32(r.width), int32(r.height),
			sdl.WINDOW_SHOWN,
		)
		if err != nil {
			return err
		}
		state.window = window
	}
	if state.renderer == nil {
		renderer, err := sdl.CreateRenderer(state.window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
		if err != nil {
			return err
		}
		state.renderer = renderer
		_ = renderer.SetLogicalSize(int32(r.width), int32(r.height))
	}
	if state.texture == nil || state.width != r.width || state.height != r.height {
		if state.texture != nil {
			state.texture.Destroy()
			state.texture = nil
		}
		tex, err := state.renderer.CreateTexture(
			sdl.PIXELFORMAT_ABGR8888,
			sdl.TEXTUREACCESS_STREAMING,
			int32(r.width), int32(r.height),
		)
		if err != nil {
			return err
		}
		state.texture = tex
		state.width = r.width
		state.height = r.height
		state.pitch = r.width * 4
		state.pixelBuffer = make([]byte, state.pitch*r.height)
	}
	return nil
}

func (r *Renderer) renderSDL(t gesture.Transform, state rhythm.State, groove, fps float64) Frame {
	if err := r.ensureSDLResources(); err != nil {
		return Frame{
			Status: fmt.Sprintf("SDL init error: %v", err),
			Present: func(string) error {
				return err
			},
		}
	}
	s := r.sdl
	width := r.width
	height := r.height
	pitch := s.pitch

	for y := 0; y < height; y++ {
		vy := (float64(y)/float64(height-1) - 0.5) * 2.0
		rowOffset := y * pitch
		for x := 0; x < width; x++ {
			vx := (float64(x)/float64(width-1) - 0.5) * 2.0
			b := r.sample(vx, vy, t)
			offset := rowOffset + x*4
			// warm mascot against dark background, glow lifts the red channel
			s.pixelBuffer[offset+0] = byte(b * 255)
			s.pixelBuffer[offset+1] = byte(b * (140 + 80*clamp01(t.Glow)))
			s.pixelBuffer[offset+2] = byte(b * 90)
			s.pixelBuffer[offset+3] = 255
		}
	}

	return Frame{
		Status: r.buildStatus(state, groove, fps),
		Present: func(status string) error {
			if status != "" && status != s.windowTitle && s.window != nil {
				_ = s.window.SetTitle(status)
				s.windowTitle = status
			}
			if err := s.texture.Update(nil, s.pixelBuffer, s.pitch); err != nil {
				return err
			}
			if err := s.renderer.Clear(); err != nil {
				return err
			}
			if err := s.renderer.Copy(s.texture, nil, nil); err != nil {
				return err
			}
			s.renderer.Present()
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch event.(type) {
				case *sdl.QuitEvent:
					return ErrQuit
				}
			}
			return nil
		},
	}
}

func (r *Renderer) resizeSDL() {
	if r.sdl == nil {
		return
	}
	r.sdl.width = 0
	r.sdl.height = 0
}

func (r *Renderer) closeSDL() error {
	if r.sdl == nil {
		return nil
	}
	if r.sdl.texture != nil {
		r.sdl.texture.Destroy()
		r.sdl.texture = nil
	}
	if r.sdl.renderer != nil {
		r.sdl.renderer.Destroy()
		r.sdl.renderer = nil
	}
	if r.sdl.window != nil {
		r.sdl.window.Destroy()
		r.sdl.window = nil
	}
	r.sdl.pixelBuffer = nil
	if r.sdl.initialized {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		r.sdl.initialized = false
	}
	r.sdl = nil
	return nil
}

// SupportsSDL reports whether the SDL backend was compiled in.
func SupportsSDL() bool { return true }
