package audiofeed

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var backend struct {
	mu     sync.Mutex
	active bool
}

// Initialize readies the PortAudio host layer. Safe to call repeatedly;
// callers pair it with Terminate.
func Initialize() error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.active {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	backend.active = true
	return nil
}

// Terminate releases the host layer. A no-op unless Initialize succeeded,
// so deferred cleanup never unbalances the PortAudio refcount.
func Terminate() {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if !backend.active {
		return
	}
	_ = portaudio.Terminate()
	backend.active = false
}
