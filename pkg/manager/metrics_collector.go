package manager

import (
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/types"
)

// Manager feeds the periodic gauge collector
var _ metrics.Source = (*Manager)(nil)

// CatalogCounts implements metrics.Source
func (m *Manager) CatalogCounts() (applied, notApplied int) {
	return m.catalog.Counts()
}

// StagedCount implements metrics.Source
func (m *Manager) StagedCount() int {
	return m.ledger.Count()
}

// ExecutionCounts implements metrics.Source
func (m *Manager) ExecutionCounts() map[types.ExecutionStatus]int {
	return m.registry.Counts()
}

// CollectMetrics samples the gauges once outside the collector's schedule
func (m *Manager) CollectMetrics() {
	m.collector.Collect()
}
