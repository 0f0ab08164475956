package clustering

import (
	"math"
	"strings"
)

// Stats aggregates a set of results.
type Stats struct {
	Total          int            `json:"total"`
	Disciplined    int            `json:"disciplined"`
	Warnings       int            `json:"warnings"`
	SP1            int            `json:"sp1"`
	SP2            int            `json:"sp2"`
	SP3            int            `json:"sp3"`
	Clusters       int            `json:"clusters"`
	Sent           int            `json:"sent"`
	MeanAttendance float64        `json:"mean_attendance"`
	ByStatus       map[string]int `json:"by_status"`
}

func ComputeStats(results []ResultDetail) Stats {
	stats := Stats{Total: len(results), ByStatus: make(map[string]int)}
	clusters := make(map[string]bool)
	var attendance float64
	var withSessions int

	for _, r := range results {
		switch r.Status {
		case StatusDisciplined:
			stats.Disciplined++
		case StatusSP1:
			stats.SP1++
		case StatusSP2:
			stats.SP2++
		case StatusSP3:
			stats.SP3++
		}
		if strings.Contains(r.Status, "SP") {
			stats.Warnings++
		}
		if r.Status != "" {
			stats.ByStatus[r.Status]++
		}
		if r.IsSent() {
			stats.Sent++
		}
		clusters[r.Cluster] = true
		if r.TotalSessions > 0 {
			attendance += r.AttendanceRate()
			withSessions++
		}
	}
	stats.Clusters = len(clusters)
	if withSessions > 0 {
		stats.MeanAttendance = math.Round(attendance/float64(withSessions)*10) / 10
	}
	return stats
}

// Percent returns part as a percentage of total, with one decimal.
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
