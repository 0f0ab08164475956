package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func detail(status, cluster string, absences, sessions float64, sent bool) ResultDetail {
	msg := MessageUnsent
	if sent {
		msg = MessageSent
	}
	return ResultDetail{Result: Result{
		Status: status, Cluster: cluster, TotalAbsences: absences, TotalSessions: sessions, MessageStatus: msg,
	}}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]ResultDetail{
		detail(StatusDisciplined, "0", 0, 40, true),
		detail(StatusDisciplined, "0", 4, 40, false),
		detail(StatusSP1, "1", 10, 40, false),
		detail(StatusSP2, "2", 20, 40, false),
		detail(StatusSP3, "2", 30, 40, false),
		detail("Peringatan SP", "-1", 0, 0, false),
	})

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 2, stats.Disciplined)
	assert.Equal(t, 4, stats.Warnings)
	assert.Equal(t, 1, stats.SP1)
	assert.Equal(t, 1, stats.SP2)
	assert.Equal(t, 1, stats.SP3)
	assert.Equal(t, 4, stats.Clusters)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 68.0, stats.MeanAttendance) // (100 + 90 + 75 + 50 + 25) / 5
	assert.Equal(t, 2, stats.ByStatus[StatusDisciplined])
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.MeanAttendance)
	assert.NotNil(t, stats.ByStatus)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 0.0, Percent(1, 0))
	assert.Equal(t, 100.0, Percent(4, 4))
}
