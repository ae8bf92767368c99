//go:build !sdl

package preview

import (
	"errors"

	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
)

type sdlState struct{}

func (r *Renderer) initSDL(width, height int) error {
	return errors.New("SDL backend not enabled; rebuild with -tags sdl")
}

func (r *Renderer) renderSDL(t gesture.Transform, state rhythm.State, groove, fps float64) Frame {
	return Frame{
		Status: "SDL backend unavailable (build without -tags sdl)",
		Present: func(string) error {
			return ErrQuit
		},
	}
}

func (r *Renderer) resizeSDL() {}

func (r *Renderer) closeSDL() error { return nil }

// SupportsSDL reports whether the SDL backend was compiled in.
func SupportsSDL() bool { return false }
