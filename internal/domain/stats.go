package domain

type GlobalStats struct {
	TotalEvents     int64            `json:"total_events"`
	ViolationEvents int64            `json:"violation_events"`
	ViolationRatio  float64          `json:"violation_ratio"`
	TopEventTypes   map[string]int64 `json:"top_event_types"`
	HourlyActivity  []ActivityPoint  `json:"hourly_activity"`
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}
