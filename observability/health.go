// Package observability exposes a snapshot of the process for the health endpoint.
package observability

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Health aggregates process and runtime metrics returned by GET /health.
type Health struct {
	Status      string  `json:"status"`
	Pid         int32   `json:"pid"`
	PidStatus   string  `json:"pid_status,omitempty"`
	CpuPercent  float64 `json:"cpu_percent"`
	RamBytes    uint64  `json:"ram_bytes"`
	Goroutines  int     `json:"goroutines"`
	AllocMemMb  uint64  `json:"alloc_mem_mb"`
	NumGC       uint32  `json:"num_gc"`
	Connections int     `json:"connections"`
	Uptime      string  `json:"uptime"`

	// WorkerRestarts is keyed by worker type, only crashed workers appear.
	WorkerRestarts map[string]int `json:"worker_restarts,omitempty"`
}

type ConnectionCounter interface {
	Count() int
}

type RestartCounter interface {
	Restarts() map[string]int
}

type HealthMonitor struct {
	proc        *process.Process
	connections ConnectionCounter
	workers     RestartCounter
	startedAt   time.Time
}

func NewHealthMonitor(connections ConnectionCounter) (*HealthMonitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &HealthMonitor{proc: p, connections: connections, startedAt: time.Now()}, nil
}

func (h *HealthMonitor) WithWorkers(workers RestartCounter) *HealthMonitor {
	h.workers = workers
	return h
}

// Snapshot never fails: metrics gopsutil can't read are left at zero.
func (h *HealthMonitor) Snapshot() Health {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	res := Health{
		Status:      "ok",
		Pid:         h.proc.Pid,
		Goroutines:  runtime.NumGoroutine(),
		AllocMemMb:  m.Alloc / 1024 / 1024,
		NumGC:       m.NumGC,
		Connections: h.connections.Count(),
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.workers != nil {
		if restarts := h.workers.Restarts(); len(restarts) > 0 {
			res.WorkerRestarts = restarts
		}
	}
	if memInfo, err := h.proc.MemoryInfo(); err == nil {
		res.RamBytes = memInfo.RSS
	}
	if cpu, err := h.proc.CPUPercent(); err == nil {
		res.CpuPercent = cpu
	}
	if status, err := h.proc.Status(); err == nil {
		res.PidStatus = status
	}
	return res
}
