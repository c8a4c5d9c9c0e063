package notify

// Threshold is a warning point in hours before a deadline is due.
// Immediate (zero) covers deadlines less than an hour away.
type Threshold int

const Immediate Threshold = 0

// Thresholds are the scheduled warning points, in ascending order.
var Thresholds = []Threshold{1, 3, 24, 48}

// QualifyingThresholds returns the thresholds a deadline hoursUntil
// hours away has just crossed. T qualifies when hoursUntil > T and
// hoursUntil-T < 1, so a scan sees each threshold during a one-hour
// window only. Immediate qualifies when 0 < hoursUntil < 1.
func QualifyingThresholds(hoursUntil float64) []Threshold {
	var out []Threshold
	for _, t := range Thresholds {
		h := float64(t)
		if hoursUntil > h && hoursUntil-h < 1 {
			out = append(out, t)
		}
	}
	if hoursUntil > 0 && hoursUntil < 1 {
		out = append(out, Immediate)
	}
	return out
}

// TimeContext is the phrase used in notification text for t.
func (t Threshold) TimeContext() string {
	switch t {
	case 1:
		return "in 1 hour"
	case 3:
		return "in 3 hours"
	case 24:
		return "in 1 day"
	case 48:
		return "in 2 days"
	default:
		return "approaching soon"
	}
}
