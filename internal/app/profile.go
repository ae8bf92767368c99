package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// frameSection names one stage of the per-frame pipeline.
type frameSection int

const (
	sectionIngest frameSection = iota // synthetic feature ingestion
	sectionStep                       // engine tick: clock, scheduler, compositor
	sectionRender                     // preview frame generation
	sectionPresent                    // terminal print or SDL present
	sectionCount
)

var sectionColumns = [sectionCount]string{"ingest_ms", "step_ms", "render_ms", "present_ms"}

// frameProfiler accumulates section timings across one render frame and
// appends a single CSV row per frame. A nil profiler is a no-op so call
// sites stay unconditional.
type frameProfiler struct {
	mu      sync.Mutex
	out     io.WriteCloser
	started time.Time
	mark    time.Time
	frame   [sectionCount]float64
}

func openProfiler(path string, logger *log.Logger) *frameProfiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	return newFrameProfiler(f)
}

func newFrameProfiler(out io.WriteCloser) *frameProfiler {
	p := &frameProfiler{out: out}
	fmt.Fprintf(p.out, "timestamp,%s,%s,%s,%s,total_ms\n",
		sectionColumns[0], sectionColumns[1], sectionColumns[2], sectionColumns[3])
	return p
}

func (p *frameProfiler) begin(now time.Time) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = now
	p.mark = now
	p.frame = [sectionCount]float64{}
}

// section charges the time since the previous mark to s. Sections may repeat
// within a frame; the durations accumulate.
func (p *frameProfiler) section(s frameSection) {
	if p == nil || s < 0 || s >= sectionCount {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.frame[s] += now.Sub(p.mark).Seconds() * 1000
	p.mark = now
}

// flush writes the completed frame as one CSV row.
func (p *frameProfiler) flush() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	total := time.Since(p.started).Seconds() * 1000
	fmt.Fprintf(p.out, "%s,%.3f,%.3f,%.3f,%.3f,%.3f\n",
		p.started.Format(time.RFC3339Nano),
		p.frame[sectionIngest], p.frame[sectionStep],
		p.frame[sectionRender], p.frame[sectionPresent], total)
}

func (p *frameProfiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Close()
}
