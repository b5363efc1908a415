// Package health samples host CPU/memory/disk and raises a system-severity
// alert through the same alert store and bus the risk Assessor uses when it
// hits a store-unavailable error.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/events"
	"github.com/aristath/rpcp/internal/store"
)

// Thresholds above which a sample is considered exhaustion.
type Thresholds struct {
	MaxCPUPercent float64
	MaxMemPercent float64
	MaxDiskPercent float64
	DiskPath string
}

// DefaultThresholds returns conservative single-board limits.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxCPUPercent: 90, MaxMemPercent: 90, MaxDiskPercent: 90, DiskPath: "/"}
}

// Sampler polls host resource usage on an interval and raises a system-kind
// risk alert (the Fatal/system-alert path, the same one the
// Assessor uses for a store-unavailable tick) through the normal alert
// store + bus, so the Coordinator's existing alert watcher needs no second
// code path to notice exhaustion.
type Sampler struct {
	clk clock.Clock
	store *store.Store
	bus *events.Bus
	thresh Thresholds
	period time.Duration
	log zerolog.Logger
}

// NewSampler constructs a Sampler. log defaults to a no-op logger.
func NewSampler(clk clock.Clock, st *store.Store, bus *events.Bus, thresh Thresholds, period time.Duration, log zerolog.Logger) *Sampler {
	return &Sampler{clk: clk, store: st, bus: bus, thresh: thresh, period: period, log: log.With().Str("component", "health").Logger()}
}

// Run polls on period until ctx is cancelled. Sample errors are logged and
// skipped rather than treated as exhaustion: gopsutil failing to read
// /proc is not itself a resource exhaustion signal.
func (s *Sampler) Run(ctx context.Context) {
	ticker := s.clk.NewTicker(s.period, s.period/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 s.tick(ctx)
 }
	}
}

func (s *Sampler) tick(ctx context.Context) {
	cpuPct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
 s.log.Warn().Err(err).Msg("cpu sample failed")
 return
	}
	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
 s.log.Warn().Err(err).Msg("mem sample failed")
 return
	}
	diskStat, err := disk.UsageWithContext(ctx, s.thresh.DiskPath)
	if err != nil {
 s.log.Warn().Err(err).Msg("disk sample failed")
 return
	}

	cpuAvg := 0.0
	if len(cpuPct) > 0 {
 cpuAvg = cpuPct[0]
	}

	switch {
	case cpuAvg > s.thresh.MaxCPUPercent:
 s.raise("cpu", cpuAvg, s.thresh.MaxCPUPercent)
	case memStat.UsedPercent > s.thresh.MaxMemPercent:
 s.raise("memory", memStat.UsedPercent, s.thresh.MaxMemPercent)
	case diskStat.UsedPercent > s.thresh.MaxDiskPercent:
 s.raise("disk", diskStat.UsedPercent, s.thresh.MaxDiskPercent)
	}
}

// raise persists a system alert and publishes risk.alert.created. It reuses
// the host-exhaustion cooldown key so repeated breaches of the same resource
// refresh one alert row instead of spamming new ones, mirroring the
// Assessor's own dedup-by-cooldown-key pattern.
func (s *Sampler) raise(resource string, value, limit float64) {
	ctx := context.Background()
	now := s.clk.Now()
	cooldownKey := "health:" + resource
	message := fmt.Sprintf("%s usage %.1f%% exceeds limit %.1f%%", resource, value, limit)

	s.log.Warn().Str("resource", resource).Float64("value", value).Float64("limit", limit).Msg("host resource exhaustion")

	existing, err := s.store.FindOpenAlertByCooldownKey(ctx, cooldownKey)
	if err != nil {
 s.log.Error().Err(err).Msg("system alert dedup lookup failed")
 return
	}
	alert := domain.RiskAlert{
 Kind: domain.AlertSystem, Severity: domain.SeverityHigh, EntityType: domain.EntitySystem,
 EntityID: "host", Message: message, RecommendedAction: domain.ActionNotifyOnly,
 CooldownKey: cooldownKey, CreatedAt: now, UpdatedAt: now,
	}
	if existing != nil {
 alert.ID = existing.ID
 alert.CreatedAt = existing.CreatedAt
 alert.RefreshCount = existing.RefreshCount + 1
	} else {
 alert.ID = domain.NewID()
	}
	if err := s.store.UpsertAlert(ctx, alert); err != nil {
 s.log.Error().Err(err).Msg("system alert persist failed")
 return
	}
	s.bus.Publish(events.TopicAlertCreated, map[string]interface{}{"alert_id": alert.ID})
}
