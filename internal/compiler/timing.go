package compiler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type timingEvent struct {
	Phase      string  `json:"phase"`
	Kind       string  `json:"kind"`
	File       string  `json:"file,omitempty"`
	Status     string  `json:"status,omitempty"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
	EndMS      float64 `json:"end_ms"`
}

// timingRecorder streams pipeline timing events as JSON lines.
type timingRecorder struct {
	enabled bool
	start   time.Time
	mu      sync.Mutex
	file    *os.File
	enc     *json.Encoder
	err     error
}

func newTimingRecorder(start time.Time, path string) *timingRecorder {
	tr := &timingRecorder{start: start}
	if path == "" {
		return tr
	}
	f, err := os.Create(path)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.enabled = true
	tr.file = f
	tr.enc = json.NewEncoder(f)
	return tr
}

func (tr *timingRecorder) Err() error {
	if tr == nil {
		return nil
	}
	return tr.err
}

func (tr *timingRecorder) Close() {
	if tr == nil || tr.file == nil {
		return
	}
	_ = tr.file.Close()
}

func (tr *timingRecorder) record(phase, kind, file, status string, start time.Time, duration time.Duration) {
	if tr == nil || !tr.enabled {
		return
	}
	startMS := durationToMS(start.Sub(tr.start))
	durationMS := durationToMS(duration)
	event := timingEvent{
		Phase:      phase,
		Kind:       kind,
		File:       file,
		Status:     status,
		StartMS:    startMS,
		DurationMS: durationMS,
		EndMS:      startMS + durationMS,
	}
	tr.mu.Lock()
	_ = tr.enc.Encode(event)
	tr.mu.Unlock()
}

func (tr *timingRecorder) RecordStage(phase string, start time.Time, status string) {
	tr.record(phase, "stage", "", status, start, time.Since(start))
}

func (tr *timingRecorder) RecordFile(phase, file, status string, start time.Time) {
	tr.record(phase, "file", file, status, start, time.Since(start))
}

func durationToMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000_000.0
}

// resolveTimingPath picks the JSONL destination: DBCC_TIMING_JSONL wins,
// then an explicit path, then timing.jsonl under root when timing is on.
func (c *Compiler) resolveTimingPath(rootPath string) string {
	if envPath := os.Getenv("DBCC_TIMING_JSONL"); envPath != "" {
		return envPath
	}
	if c.TimingPath != "" {
		return c.TimingPath
	}
	if c.Timing || envBool("DBCC_TIMING") {
		if rootPath == "" {
			return "timing.jsonl"
		}
		return filepath.Join(rootPath, "timing.jsonl")
	}
	return ""
}

func envBool(key string) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return val == "1" || val == "true" || val == "yes" || val == "on"
}
