// Package perfmonitor measures wall-clock spans such as the lifetime of a
// client connection.
package perfmonitor

import (
	"sync"
	"time"
)

// PerformanceMonitor records a start and an end instant. It is safe for
// concurrent use; the zero value is ready to use.
type PerformanceMonitor struct {
	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a monitor with no recorded times.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start records the current time as the start of the span and clears any
// previous end time.
func (pm *PerformanceMonitor) Start() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.startTime = time.Now()
	pm.endTime = time.Time{}
}

// Stop records the current time as the end of the span. It does nothing if
// Start has not been called.
func (pm *PerformanceMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Reset clears both recorded times.
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the measured span. While running (started, not stopped) it
// returns the time since Start. Without a Start it returns 0.
//
// Returns:
//   - The elapsed duration
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.startTime.IsZero() {
		return 0
	}

	if pm.endTime.IsZero() {
		return time.Since(pm.startTime)
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed truncated to whole milliseconds.
func (pm *PerformanceMonitor) ElapsedMilliseconds() int64 {
	return pm.Elapsed().Milliseconds()
}
