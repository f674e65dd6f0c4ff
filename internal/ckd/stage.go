package ckd

import (
	"fmt"
	"math"
)

// Lower eGFR bound (mL/min/1.73m²) of stages 1 to 4. Anything below the last
// bound is stage 5.
var stageThresholds = [...]float64{90, 60, 30, 15}

// ComputeStage maps an eGFR value to a CKD stage between 1 and 5. A value
// on a boundary belongs to the healthier stage.
func ComputeStage(egfr float64) (int, error) {
	if err := checkPositive("eGFR", egfr); err != nil {
		return 0, err
	}
	for i, bound := range stageThresholds {
		if egfr >= bound {
			return i + 1, nil
		}
	}
	return len(stageThresholds) + 1, nil
}

func checkPositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalidMeasurement, name, v)
	}
	return nil
}
