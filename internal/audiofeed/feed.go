package audiofeed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emotive-engine/groove/internal/tempo"
)

const defaultHop = 20 * time.Millisecond

// FeedConfig controls the capture-to-features pipeline.
type FeedConfig struct {
	DeviceName string
	BufferSize int
	BandCount  int
	Hop        time.Duration
	Log        *log.Logger
}

// Feed couples a live capture stream with feature extraction and pushes
// frames to the engine at a fixed hop interval.
type Feed struct {
	capture   *Capture
	extractor *Extractor
	hop       time.Duration
	log       *log.Logger
}

// NewFeed opens the capture device and prepares the extractor.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	if cfg.Hop <= 0 {
		cfg.Hop = defaultHop
	}
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}

	capture, err := NewCapture(CaptureConfig{
		DeviceName: cfg.DeviceName,
		BufferSize: cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	extractor := NewExtractor(ExtractorConfig{
		SampleRate: capture.SampleRate(),
		BandCount:  cfg.BandCount,
	})

	cfg.Log.Printf("audio feed: device=%q rate=%.0fHz hop=%s",
		capture.DeviceName(), capture.SampleRate(), cfg.Hop)

	return &Feed{
		capture:   capture,
		extractor: extractor,
		hop:       cfg.Hop,
		log:       cfg.Log,
	}, nil
}

// Run extracts features on every hop and hands them to ingest until the
// context is cancelled.
func (f *Feed) Run(ctx context.Context, ingest func(frame tempo.FeatureFrame)) error {
	ticker := time.NewTicker(f.hop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			ingest(f.extractor.Extract(f.capture.Samples(), now))
		}
	}
}

// DeviceName reports the input device the feed captures from.
func (f *Feed) DeviceName() string { return f.capture.DeviceName() }

// Close stops the capture stream and releases the device.
func (f *Feed) Close() error {
	return f.capture.Close()
}
