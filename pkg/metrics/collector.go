package metrics

import (
	"time"

	"github.com/cuemby/booster/pkg/types"
)

// Source exposes the state the collector samples
type Source interface {
	CatalogCounts() (applied, notApplied int)
	StagedCount() int
	ExecutionCounts() map[types.ExecutionStatus]int
}

var executionStatuses = []types.ExecutionStatus{
	types.StatusIdle,
	types.StatusQueued,
	types.StatusProcessing,
	types.StatusCompleted,
	types.StatusError,
	types.StatusCancelled,
}

// Collector periodically copies component state into gauges
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the source once
func (c *Collector) Collect() {
	applied, notApplied := c.source.CatalogCounts()
	BoostersTotal.WithLabelValues("true").Set(float64(applied))
	BoostersTotal.WithLabelValues("false").Set(float64(notApplied))

	StagedOperations.Set(float64(c.source.StagedCount()))

	counts := c.source.ExecutionCounts()
	for _, status := range executionStatuses {
		ExecutionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
