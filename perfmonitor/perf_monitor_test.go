package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceMonitor_Start_Stop(t *testing.T) {
	t.Run("new monitor has no times", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
		assert.Equal(t, int64(0), pm.ElapsedMilliseconds())
	})

	t.Run("stop without start does nothing", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Stop()
		assert.True(t, pm.endTime.IsZero())
	})

	t.Run("measures the span between start and stop", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()
		time.Sleep(20 * time.Millisecond)
		pm.Stop()

		elapsed := pm.ElapsedMilliseconds()
		assert.GreaterOrEqual(t, elapsed, int64(20))

		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, elapsed, pm.ElapsedMilliseconds(), "stopped span must not grow")
	})

	t.Run("running span grows", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()
		first := pm.Elapsed()
		time.Sleep(5 * time.Millisecond)
		assert.Greater(t, pm.Elapsed(), first)
	})

	t.Run("start clears a previous end", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		pm.Start()
		pm.Stop()
		pm.Start()
		assert.True(t, pm.endTime.IsZero())
	})
}

func TestPerformanceMonitor_Reset(t *testing.T) {
	pm := NewPerformanceMonitor()
	pm.Start()
	pm.Stop()
	pm.Reset()

	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
	assert.Equal(t, time.Duration(0), pm.Elapsed())
}
