/*
Package factory provides JSON to Go tier-schedule conversion.

PURPOSE:
  Converts JSON tier-schedule definitions into billing.TierSchedule
  objects. This enables rate configuration without code changes -
  accounting can define overtime brackets in JSON, and the factory
  creates the proper Go structs.

WHY JSON?
  - Non-developers can adjust brackets and multipliers
  - Easy integration with an admin UI
  - Version control for rate definitions
  - Database storage of schedule configs

JSON SCHEMA:
  {
    "id": "overtime-2026",
    "name": "Standard overtime brackets",
    "tiers": [
      {"low": 0, "high": 160, "multiplier": "1.0"},
      {"low": 161, "high": 180, "multiplier": "1.0"},
      {"low": 181, "high": 200, "multiplier": "1.25"},
      {"low": 261, "multiplier": "2.0"}
    ]
  }

  A tier with no "high" is unbounded and must come last. Multipliers are
  decimal strings so "1.25" survives parsing exactly.

USAGE:
  f := factory.NewScheduleFactory()
  schedule, err := f.ParseSchedule(jsonString)

  // Or the built-in default:
  schedule, err := f.ParseSchedule(factory.DefaultScheduleJSON())

SEE ALSO:
  - billing/calculator.go: TierSchedule type and validation
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ScheduleJSON is the JSON representation of a tier schedule.
type ScheduleJSON struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Tiers []TierJSON `json:"tiers"`
}

// TierJSON represents one bracket. High omitted or 0 means unbounded.
type TierJSON struct {
	Low        int64  `json:"low"`
	High       int64  `json:"high,omitempty"`
	Multiplier string `json:"multiplier"`
}

// =============================================================================
// FACTORY
// =============================================================================

// ScheduleFactory creates tier schedules from JSON definitions.
type ScheduleFactory struct{}

// NewScheduleFactory creates a schedule factory.
func NewScheduleFactory() *ScheduleFactory {
	return &ScheduleFactory{}
}

// ParseSchedule converts a JSON definition into a validated TierSchedule.
func (f *ScheduleFactory) ParseSchedule(jsonStr string) (billing.TierSchedule, error) {
	var def ScheduleJSON
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("invalid schedule JSON: %w", err)
	}
	if len(def.Tiers) == 0 {
		return nil, fmt.Errorf("schedule %q has no tiers", def.ID)
	}

	schedule := make(billing.TierSchedule, 0, len(def.Tiers))
	for i, t := range def.Tiers {
		if t.Multiplier == "" {
			return nil, fmt.Errorf("tier %d: multiplier is required", i)
		}
		m, err := decimal.NewFromString(t.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("tier %d: invalid multiplier %q: %w", i, t.Multiplier, err)
		}
		schedule = append(schedule, billing.Tier{
			Low:        t.Low,
			High:       t.High,
			Multiplier: m,
		})
	}

	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", def.ID, err)
	}
	return schedule, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultScheduleJSON returns the standard overtime brackets as JSON,
// matching billing.DefaultTierSchedule().
func DefaultScheduleJSON() string {
	return `{
		"id": "overtime-standard",
		"name": "Standard overtime brackets",
		"tiers": [
			{"low": 0,   "high": 160, "multiplier": "1.0"},
			{"low": 161, "high": 180, "multiplier": "1.0"},
			{"low": 181, "high": 200, "multiplier": "1.25"},
			{"low": 201, "high": 220, "multiplier": "1.5"},
			{"low": 221, "high": 240, "multiplier": "1.5"},
			{"low": 241, "high": 260, "multiplier": "1.75"},
			{"low": 261, "multiplier": "2.0"}
		]
	}`
}
