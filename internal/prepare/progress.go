package prepare

import (
	log "github.com/sirupsen/logrus"
)

// ProgressFunc is called with the number of processed items after each
// item.
type ProgressFunc func(num int)

// ProgressIgnore is a ProgressFunc that does nothing.
func ProgressIgnore(num int) {}

// LoggerProgressFunc logs every step items how many of max items were
// processed.
func LoggerProgressFunc(prefix string, max, step int) ProgressFunc {
	return func(num int) {
		if step <= 0 || max == 0 {
			return
		}
		if num%step != 0 && num != max {
			return
		}
		percent := (float64(num) / float64(max)) * 100.0
		if percent > 100.0 {
			percent = 100.0
		}
		log.Infof("%s: %d of %d (%.1f%%)", prefix, num, max, percent)
	}
}
