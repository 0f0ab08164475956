package academic

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core"
)

// Period is an academic period, e.g. "Ganjil" of "2024/2025".
type Period struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"nama_periode"`
	AcademicYear string      `json:"academic_year" db:"tahun_ajaran"`
	Semester     null.String `json:"semester" db:"semester"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// Batch groups the clustering results of one upload. It belongs to exactly one Period.
type Batch struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"nama_batch"`
	Date      time.Time `json:"date" db:"tgl_batch"`
	PeriodID  string    `json:"period_id" db:"id_periode"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Period *Period `json:"period,omitempty" db:"-"`
}

type NewPeriod struct {
	Name         string `json:"name" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Semester     string `json:"semester"`
}

func (np *NewPeriod) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.AcademicYear = core.CleanString(np.AcademicYear)
	np.Semester = core.CleanString(np.Semester)
	return validate.Struct(np)
}

type UpdatePeriod struct {
	Name         string  `json:"name"`
	AcademicYear string  `json:"academic_year"`
	Semester     *string `json:"semester"`
}

func (up *UpdatePeriod) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	up.AcademicYear = core.CleanString(up.AcademicYear)
	if up.Semester != nil {
		*up.Semester = core.CleanString(*up.Semester)
	}
	return validate.Struct(up)
}

type NewBatch struct {
	Name     string `json:"name" validate:"required"`
	PeriodID string `json:"period_id" validate:"required"`
}

func (nb *NewBatch) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.PeriodID = core.CleanString(nb.PeriodID)
	return validate.Struct(nb)
}
