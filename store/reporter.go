package store

import (
	"context"
	"time"

	"m3u-transcoder/logger"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// Reporter periodically logs the active sessions and their engine usage.
type Reporter struct {
	cron     *cron.Cron
	registry *SessionRegistry
	logger   logger.Logger
}

func NewReporter(registry *SessionRegistry, schedule string, l logger.Logger) (*Reporter, error) {
	r := &Reporter{
		cron:     cron.New(),
		registry: registry,
		logger:   l,
	}

	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and returns a context that is done once a
// running report has finished.
func (r *Reporter) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reporter) Report() {
	sessions := r.registry.Snapshot()
	r.logger.Logf("Active streams: %d", len(sessions))

	for _, session := range sessions {
		stats, err := session.Stats()
		if err != nil {
			r.logger.Debugf("Stats unavailable for session %s (pid %d): %v", session.ID, session.Pid(), err)
			continue
		}

		r.logger.Logf("  %s: channel=%q client=%s pid=%d rss=%s cpu=%.1f%% uptime=%s",
			session.ID, session.Channel, session.RemoteAddr, stats.PID,
			humanize.IBytes(stats.RSS), stats.CPUPercent, stats.Uptime.Round(time.Second))
	}
}
