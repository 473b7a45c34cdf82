// internal/writer/builder.go
package writer

import (
	cfg "github.com/tamzrod/sensorbox/internal/config"
)

// BuildPlan derives the destination plan from settings.
// Pure. No IO.
func BuildPlan(s *cfg.Settings) Plan {
	return Plan{
		Raw:  Target{Path: s.LocalFiles.RawData, Lock: LockRawData},
		Calc: Target{Path: s.LocalFiles.CalcData, Lock: LockCalcData},
	}
}

// Build opens the raw and calculated destinations of plan.
func Build(plan Plan, locks Locker) (raw, calc *CSV) {
	return NewCSV(plan.Raw, locks), NewCSV(plan.Calc, locks)
}
