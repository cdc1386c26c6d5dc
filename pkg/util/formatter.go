package util

import (
	"fmt"
	"math"
	"time"
)

func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1 || absValue == 0:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	case absValue >= 1e-12:
		return fmt.Sprintf("%.3f p%s", value*1e12, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatDuty prints a duty cycle as a percentage, e.g. " 50.0%".
func FormatDuty(duty float64) string {
	return fmt.Sprintf("%5.1f%%", duty*100)
}

// FormatSimTime prints simulation seconds as a Go duration.
func FormatSimTime(seconds float64) string {
	return time.Duration(math.Round(seconds * float64(time.Second))).String()
}
