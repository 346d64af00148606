package schedule

import "time"

// Interval полуоткрытый интервал [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps: a.start < b.end AND a.end > b.start
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// FirstOverlap возвращает индекс первого занятого интервала, пересекающего candidate, или -1
func FirstOverlap(candidate Interval, busy []Interval) int {
	for idx, b := range busy {
		if candidate.Overlaps(b) {
			return idx
		}
	}
	return -1
}
