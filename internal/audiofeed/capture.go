package audiofeed

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const defaultBufferSize = 2048

// Capture wraps a PortAudio input stream and exposes thread-safe access to
// the most recent samples through a ring buffer.
type Capture struct {
	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	device     *portaudio.DeviceInfo

	mu     sync.RWMutex
	buffer []float32
	index  int
}

// CaptureConfig controls how a Capture instance is created.
type CaptureConfig struct {
	DeviceName string
	BufferSize int
	Channels   int
}

// NewCapture opens a PortAudio input stream using the provided configuration.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	device, err := findDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		sampleRate: device.DefaultSampleRate,
		channels:   cfg.Channels,
		device:     device,
		buffer:     make([]float32, cfg.BufferSize),
	}

	framesPerBuffer := cfg.BufferSize / cfg.Channels
	if framesPerBuffer < 64 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      c.sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, c.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return c, nil
}

// Close stops and closes the underlying PortAudio stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	if err := c.stream.Stop(); err != nil && !isStoppedStreamErr(err) {
		return err
	}
	return c.stream.Close()
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// DeviceName returns the name of the captured device.
func (c *Capture) DeviceName() string {
	if c.device == nil {
		return ""
	}
	return c.device.Name
}

// Samples returns the most recent samples copied out of the ring buffer,
// oldest first.
func (c *Capture) Samples() []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := make([]float32, len(c.buffer))
	copy(cp, c.buffer[c.index:])
	copy(cp[len(c.buffer)-c.index:], c.buffer[:c.index])
	return cp
}

func (c *Capture) process(in []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channels > 1 {
		mono := make([]float32, len(in)/c.channels)
		for i := range mono {
			sum := float32(0)
			base := i * c.channels
			for ch := 0; ch < c.channels; ch++ {
				sum += in[base+ch]
			}
			mono[i] = sum / float32(c.channels)
		}
		in = mono
	}
	c.write(in)
}

func (c *Capture) write(in []float32) {
	if len(in) == 0 {
		return
	}
	if len(in) >= len(c.buffer) {
		copy(c.buffer, in[len(in)-len(c.buffer):])
		c.index = 0
		return
	}
	n := copy(c.buffer[c.index:], in)
	if n < len(in) {
		copy(c.buffer, in[n:])
	}
	c.index = (c.index + len(in)) % len(c.buffer)
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("list audio devices: %w", err)
		}
		needle := strings.ToLower(name)
		for _, d := range devices {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
				return d, nil
			}
		}
		return nil, fmt.Errorf("audio device %q not found", name)
	}

	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no suitable audio input device found")
}

func isStoppedStreamErr(err error) bool {
	if err == nil {
		return false
	}
	// PortAudio reports stopping an already stopped stream as -9986.
	return strings.Contains(err.Error(), "PaErrorCode -9986")
}
