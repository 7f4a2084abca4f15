package model

// Stats is the operational rollup across all drops.
type Stats struct {
	TotalDrops    int64 `json:"total_drops"`
	UpcomingDrops int64 `json:"upcoming_drops"`
	LiveDrops     int64 `json:"live_drops"`
	DrawDrops     int64 `json:"draw_drops"`
	TotalEntries  int64 `json:"total_entries"`
}
