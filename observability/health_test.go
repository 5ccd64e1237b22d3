package observability

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedCounter int

func (f fixedCounter) Count() int { return int(f) }

func TestHealthMonitor_Snapshot(t *testing.T) {
	req := require.New(t)

	monitor, err := NewHealthMonitor(fixedCounter(3))
	req.NoError(err)

	health := monitor.Snapshot()

	req.Equal("ok", health.Status)
	req.Equal(int32(os.Getpid()), health.Pid)
	req.Equal(3, health.Connections)
	req.Positive(health.Goroutines)
}

type fixedRestarts map[string]int

func (f fixedRestarts) Restarts() map[string]int { return f }

func TestHealthMonitor_Reports_Worker_Restarts(t *testing.T) {
	req := require.New(t)
	monitor, err := NewHealthMonitor(fixedCounter(0))
	req.NoError(err)

	req.Nil(monitor.Snapshot().WorkerRestarts)

	monitor.WithWorkers(fixedRestarts{"FanoutShard": 2})
	req.Equal(map[string]int{"FanoutShard": 2}, monitor.Snapshot().WorkerRestarts)
}
