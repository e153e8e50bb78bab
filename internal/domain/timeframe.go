package domain

import "time"

// Standard timeframe names.
const (
	Timeframe3M  = "3M"
	Timeframe6M  = "6M"
	Timeframe1Y  = "1Y"
	TimeframeYTD = "YTD"
	TimeframeAll = "ALL"
)

// Timeframe is a named replay window. Events before Baseline are excluded.
type Timeframe struct {
	Name     string `json:"name"`
	Baseline int64  `json:"baseline"` // unix seconds, 0 for no baseline
}

// Includes reports whether a timestamp falls inside the window.
func (t Timeframe) Includes(ts int64) bool {
	return t.Baseline == 0 || ts >= t.Baseline
}

// StandardTimeframes returns 3M, 6M, 1Y, YTD and ALL relative to now.
func StandardTimeframes(now time.Time) []Timeframe {
	now = now.UTC()
	day := 24 * time.Hour
	return []Timeframe{
		{Name: Timeframe3M, Baseline: now.Add(-90 * day).Unix()},
		{Name: Timeframe6M, Baseline: now.Add(-180 * day).Unix()},
		{Name: Timeframe1Y, Baseline: now.Add(-365 * day).Unix()},
		{Name: TimeframeYTD, Baseline: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC).Unix()},
		{Name: TimeframeAll, Baseline: 0},
	}
}

// TimeframeByName picks one timeframe from the standard set.
func TimeframeByName(now time.Time, name string) (Timeframe, bool) {
	for _, tf := range StandardTimeframes(now) {
		if tf.Name == name {
			return tf, true
		}
	}
	return Timeframe{}, false
}
