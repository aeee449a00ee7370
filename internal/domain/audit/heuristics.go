package audit

import (
	"sort"
	"time"
)

// Heuristics are the deployment-tunable anomaly thresholds. Zero values are
// not meaningful; construct with DefaultHeuristics and override from config.
type Heuristics struct {
	// Accesses outside [BusinessHourStart, BusinessHourEnd) are off-hours.
	BusinessHourStart int
	BusinessHourEnd   int

	// A recorded duration below this is suspicious on its own.
	MinAccessSeconds int

	// More than OffHoursAlertCount off-hours accesses in a report window
	// raises a Medium unusual_hours alert; more than HourlyAlertCount
	// accesses within any rolling one-hour sub-window raises a High
	// high_frequency alert.
	OffHoursAlertCount int
	HourlyAlertCount   int

	// Sections whose access always triggers an immediate notification.
	SensitiveSections map[string]bool
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		BusinessHourStart:  6,
		BusinessHourEnd:    22,
		MinAccessSeconds:   30,
		OffHoursAlertCount: 5,
		HourlyAlertCount:   10,
		SensitiveSections: map[string]bool{
			"medications":     true,
			"medical_history": true,
		},
	}
}

// OffHours reports whether the timestamp's hour falls outside business
// hours.
func (h Heuristics) OffHours(ts time.Time) bool {
	hour := ts.Hour()
	return hour < h.BusinessHourStart || hour >= h.BusinessHourEnd
}

// Suspicious scores a single entry: off-hours, a recorded duration under
// the minimum, or an unauthorized attempt.
func (h Heuristics) Suspicious(e *Entry) bool {
	if e.Action == ActionUnauthorizedAttempt {
		return true
	}
	if h.OffHours(e.Timestamp) {
		return true
	}
	if e.DurationSeconds > 0 && e.DurationSeconds < h.MinAccessSeconds {
		return true
	}
	return false
}

// Sensitive reports whether the entry touches a sensitive section or is a
// download/export. These always notify, whatever the suspicion score.
func (h Heuristics) Sensitive(e *Entry) bool {
	if e.Action == ActionDownload || e.Action == ActionExport {
		return true
	}
	for _, s := range e.Sections {
		if h.SensitiveSections[s] {
			return true
		}
	}
	return false
}

// MaxRollingHourCount returns the highest number of entries falling inside
// any one-hour window anchored at an entry's timestamp.
func MaxRollingHourCount(entries []*Entry) int {
	if len(entries) == 0 {
		return 0
	}
	ts := make([]time.Time, len(entries))
	for i, e := range entries {
		ts[i] = e.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	max := 0
	j := 0
	for i := range ts {
		if j < i {
			j = i
		}
		for j < len(ts) && ts[j].Sub(ts[i]) <= time.Hour {
			j++
		}
		if n := j - i; n > max {
			max = n
		}
	}
	return max
}
