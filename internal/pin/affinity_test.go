package pin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubLogger struct {
	debugCalls int
	errorCalls int
}

func (l *stubLogger) Debugf(format string, args ...any) { l.debugCalls++ }
func (l *stubLogger) Errorf(format string, args ...any) { l.errorCalls++ }

func TestForShardRoundRobin(t *testing.T) {
	assert.Equal(t, 0, ForShard(0, 0, 4))
	assert.Equal(t, 1, ForShard(0, 1, 4))
	assert.Equal(t, 0, ForShard(0, 4, 4))
	assert.Equal(t, 2, ForShard(2, 0, 4))
}

func TestForShardDefaultsNumCPUsWhenUnset(t *testing.T) {
	cpu := ForShard(0, 1, 0)
	assert.GreaterOrEqual(t, cpu, 0)
}

func TestToCPUPinsCurrentGoroutine(t *testing.T) {
	// Pinning a short-lived test goroutine to CPU 0 must not fail or
	// panic; cpu 0 is present on every Linux host this engine targets.
	done := make(chan struct{})
	logger := &stubLogger{}
	go func() {
		defer close(done)
		ToCPU(0, logger)
	}()
	<-done
	assert.Equal(t, 0, logger.errorCalls)
}

func TestStringFormatting(t *testing.T) {
	assert.Equal(t, "shard=3 cpu=1", String(3, 1))
}
