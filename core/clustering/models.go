package clustering

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/user"
)

// Message statuses
const (
	MessageUnsent = "belum terkirim"
	MessageSent   = "terkirim"
)

// Discipline statuses
const (
	StatusDisciplined = "Disiplin"
	StatusSP1         = "SP-I"
	StatusSP2         = "SP-II"
	StatusSP3         = "SP-III"
)

// ValidSheets are the per-track sheets of the attendance workbook.
var ValidSheets = []string{"REKAP-TK1", "REKAP-TK2", "REKAP-TK3", "REKAP-TK4"}

// ValidExtensions of the attendance workbook.
var ValidExtensions = []string{".xlsx", ".xls"}

// Result is the persisted clustering outcome of one student in one batch.
type Result struct {
	ID            string         `json:"id" db:"id"`
	UserID        null.String    `json:"user_id" db:"id_user"`
	BatchID       string         `json:"batch_id" db:"id_batch"`
	IDNumber      string         `json:"id_number" db:"nim"`
	StudentName   string         `json:"student_name" db:"nama_mahasiswa"`
	TrackLevel    string         `json:"track_level" db:"tingkat"`
	Section       string         `json:"section" db:"kelas"`
	TotalAbsences float64        `json:"total_absences" db:"total_a"`
	TotalSessions float64        `json:"total_sessions" db:"jp"`
	Status        string         `json:"status" db:"kedisiplinan"`
	Cluster       string         `json:"cluster" db:"cluster"`
	Insight       string         `json:"insight" db:"insight"`
	Raw           types.JSONText `json:"raw" db:"nilai_matkul"`
	MessageStatus string         `json:"message_status" db:"status_pesan"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

func (r Result) IsDisciplined() bool { return r.Status == StatusDisciplined }
func (r Result) IsSent() bool        { return r.MessageStatus == MessageSent }

// AttendanceRate is the percentage of sessions attended; 0 without sessions.
func (r Result) AttendanceRate() float64 {
	if r.TotalSessions <= 0 {
		return 0
	}
	rate := (r.TotalSessions - r.TotalAbsences) / r.TotalSessions * 100
	if rate < 0 {
		return 0
	}
	return rate
}

// ResultDetail is a Result joined with its student and its batch (and the batch's period).
type ResultDetail struct {
	Result
	User  *user.Profile   `json:"user"`
	Batch *academic.Batch `json:"batch"`
}

type ResultFilter struct {
	BatchID  string `query:"batch_id"`
	PeriodID string `query:"period_id"`
	UserID   string `query:"user_id"`
}

func newResult(row Row, batchID, userID string, now time.Time) Result {
	raw, err := json.Marshal(row.Raw)
	if err != nil || row.Raw == nil {
		raw = []byte("{}")
	}
	return Result{
		UserID:        null.StringFrom(userID),
		BatchID:       batchID,
		IDNumber:      row.IDNumber,
		StudentName:   row.Name,
		TrackLevel:    row.TrackLevel,
		Section:       row.Section,
		TotalAbsences: row.TotalAbsences,
		TotalSessions: row.TotalSessions,
		Status:        row.Status,
		Cluster:       row.Cluster,
		Insight:       row.Insight,
		Raw:           types.JSONText(raw),
		MessageStatus: MessageUnsent,
		CreatedAt:     now,
	}
}
