package memory

import "github.com/cuemby/booster/pkg/types"

// DefaultCatalog returns the demo catalog served by the simulator
func DefaultCatalog() []*types.BoosterItem {
	return []*types.BoosterItem{
		{
			ID:          "power-plan-high",
			Name:        "High performance power plan",
			Description: "Switch the active power scheme to high performance",
			Category:    "performance",
			Platform:    "windows",
			Reversible:  true,
			RiskLevel:   types.RiskLow,
			Version:     "1.0.0",
			Tags:        []string{"power", "cpu"},
		},
		{
			ID:           "game-mode",
			Name:         "Game mode",
			Description:  "Prioritize foreground games",
			Category:     "performance",
			Platform:     "windows",
			Dependencies: []string{"power-plan-high"},
			Reversible:   true,
			RiskLevel:    types.RiskLow,
			Version:      "1.0.0",
			Tags:         []string{"gaming"},
		},
		{
			ID:          "power-saver",
			Name:        "Power saver",
			Description: "Reduce CPU frequency to save battery",
			Category:    "performance",
			Platform:    "windows",
			Conflicts:   []string{"power-plan-high"},
			Reversible:  true,
			RiskLevel:   types.RiskLow,
			Version:     "1.0.0",
			Tags:        []string{"power", "battery"},
		},
		{
			ID:          "disable-telemetry",
			Name:        "Disable telemetry",
			Description: "Stop diagnostic data collection services",
			Category:    "privacy",
			Platform:    "windows",
			Reversible:  true,
			RiskLevel:   types.RiskMedium,
			Version:     "1.1.0",
			IsApplied:   true,
			Tags:        []string{"privacy", "services"},
		},
		{
			ID:          "clear-temp",
			Name:        "Clear temporary files",
			Description: "Delete files from the temporary directories",
			Category:    "cleanup",
			Platform:    "windows",
			Reversible:  false,
			RiskLevel:   types.RiskMedium,
			Version:     "1.0.0",
			Tags:        []string{"disk"},
		},
		{
			ID:          "tcp-tuning",
			Name:        "TCP tuning",
			Description: "Adjust TCP window auto-tuning",
			Category:    "network",
			Platform:    "windows",
			Reversible:  true,
			RiskLevel:   types.RiskHigh,
			Version:     "0.9.0",
			Tags:        []string{"network", "latency"},
		},
	}
}
