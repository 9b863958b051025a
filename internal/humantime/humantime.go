// Package humantime renders durations for log lines.
package humantime

import (
	"fmt"
	"time"
)

// Since returns a human-friendly description of the time elapsed since t.
func Since(t time.Time) string {
	return Duration(time.Since(t))
}

// Duration picks the coarsest unit that still reads naturally for d.
func Duration(d time.Duration) string {
	switch {
	case d < time.Minute*2:
		return fmt.Sprintf("%0.f seconds", d.Seconds())
	case d < time.Hour*2:
		return fmt.Sprintf("%0.f minutes", d.Minutes())
	case d < time.Hour*48:
		return fmt.Sprintf("%0.1f hours", d.Hours())
	}
	return fmt.Sprintf("%0.1f days", d.Hours()/24)
}
