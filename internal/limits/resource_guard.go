package limits

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ResourceGuard gates connection admission on static limits: a hard
// connection ceiling and a CPU threshold sampled in the background. Limits
// are configured, never auto-adjusted.
type ResourceGuard struct {
	maxConnections     int64
	cpuRejectThreshold float64
	logger             zerolog.Logger

	currentCPU atomic.Value // float64
	conns      *int64       // server's live connection counter, atomic access
}

type ResourceGuardConfig struct {
	MaxConnections     int
	CPURejectThreshold float64
	SampleInterval     time.Duration
	Logger             zerolog.Logger
}

// NewResourceGuard creates a guard over the server's connection counter.
func NewResourceGuard(cfg ResourceGuardConfig, conns *int64) *ResourceGuard {
	rg := &ResourceGuard{
		maxConnections:     int64(cfg.MaxConnections),
		cpuRejectThreshold: cfg.CPURejectThreshold,
		logger:             cfg.Logger.With().Str("component", "resource_guard").Logger(),
		conns:              conns,
	}
	rg.currentCPU.Store(float64(0))
	return rg
}

// StartMonitoring samples CPU usage until ctx is cancelled. cpu.Percent with
// a zero interval compares against the previous call, so each tick reflects
// usage over the sample interval.
func (rg *ResourceGuard) StartMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				percents, err := cpu.Percent(0, false)
				if err != nil || len(percents) == 0 {
					rg.logger.Debug().Err(err).Msg("CPU sample failed")
					continue
				}
				rg.currentCPU.Store(percents[0])
			}
		}
	}()
}

// ShouldAccept reports whether a new connection may be admitted, with a
// reason string when it may not.
func (rg *ResourceGuard) ShouldAccept() (bool, string) {
	if atomic.LoadInt64(rg.conns) >= rg.maxConnections {
		return false, "max_connections"
	}
	if cpuPct, _ := rg.currentCPU.Load().(float64); cpuPct >= rg.cpuRejectThreshold && rg.cpuRejectThreshold > 0 {
		return false, "cpu_threshold"
	}
	return true, ""
}

// CurrentCPU returns the most recent CPU sample, for health reporting.
func (rg *ResourceGuard) CurrentCPU() float64 {
	pct, _ := rg.currentCPU.Load().(float64)
	return pct
}
