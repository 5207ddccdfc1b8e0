package catalog

import (
	"time"

	"github.com/go-go-golems/grillo/pkg/gateway"
)

// Progress is the state of a running install.
type Progress struct {
	Model          string  `json:"model"`
	Status         string  `json:"status,omitempty"`
	Digest         string  `json:"digest,omitempty"`
	BytesCompleted int64   `json:"bytes_completed"`
	BytesTotal     int64   `json:"bytes_total"`
	BytesPerSecond float64 `json:"bytes_per_second"`
	Percentage     int64   `json:"percentage"`
}

// Percentage is floor(completed / total * 100) in integer arithmetic,
// capped at 100. Servers may report completed above total while a layer is
// verified; those events show 100 rather than an overshoot.
func Percentage(completed, total int64) int64 {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return completed * 100 / total
}

// rateTracker derives throughput from consecutive progress events of the same
// layer. A new digest restarts the measurement.
type rateTracker struct {
	started       bool
	digest        string
	lastCompleted int64
	lastTime      time.Time
}

func (r *rateTracker) observe(p gateway.PullProgress, now time.Time) float64 {
	defer func() {
		r.started = true
		r.digest = p.Digest
		r.lastCompleted = p.Completed
		r.lastTime = now
	}()

	if !r.started || r.digest != p.Digest {
		return 0
	}
	elapsed := now.Sub(r.lastTime).Seconds()
	delta := p.Completed - r.lastCompleted
	if elapsed <= 0 || delta <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}
