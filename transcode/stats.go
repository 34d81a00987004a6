package transcode

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a point-in-time view of the engine process.
type Stats struct {
	PID        int
	Running    bool
	RSS        uint64
	CPUPercent float64
	Uptime     time.Duration
}

// Stats samples the engine process from the process table.
func (s *Stream) Stats() (Stats, error) {
	stats := Stats{
		PID:    s.Pid(),
		Uptime: time.Since(s.startedAt),
	}
	if !s.Running() {
		return stats, nil
	}

	proc, err := process.NewProcess(int32(stats.PID))
	if err != nil {
		return stats, err
	}

	stats.Running, err = proc.IsRunning()
	if err != nil {
		return stats, err
	}

	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSS = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}

	return stats, nil
}
