package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core/academic"
)

const batchSelect = `
	SELECT b.id, b.nama_batch, b.tgl_batch, b.id_periode, b.created_at,
		p.nama_periode AS p_nama_periode, p.tahun_ajaran AS p_tahun_ajaran,
		p.semester AS p_semester, p.created_at AS p_created_at
	FROM batch b JOIN periode p ON p.id = b.id_periode`

const foreignKeyViolation = "23503"

type (
	academicRepository struct {
		db *sqlx.DB
	}

	batchRow struct {
		academic.Batch
		PeriodName      string      `db:"p_nama_periode"`
		PeriodYear      string      `db:"p_tahun_ajaran"`
		PeriodSemester  null.String `db:"p_semester"`
		PeriodCreatedAt time.Time   `db:"p_created_at"`
	}
)

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

func (r batchRow) batch() academic.Batch {
	b := r.Batch
	b.Period = &academic.Period{
		ID:           b.PeriodID,
		Name:         r.PeriodName,
		AcademicYear: r.PeriodYear,
		Semester:     r.PeriodSemester,
		CreatedAt:    r.PeriodCreatedAt,
	}
	return b
}

func (repo academicRepository) CreatePeriod(ctx context.Context, p academic.Period) (academic.Period, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO periode (id, nama_periode, tahun_ajaran, semester, created_at)
		VALUES (:id, :nama_periode, :tahun_ajaran, :semester, :created_at)`, p)
	if err != nil {
		return academic.Period{}, errors.Wrap(err, "inserting period")
	}
	return p, nil
}

func (repo academicRepository) QueryPeriods(ctx context.Context) ([]academic.Period, error) {
	periods := make([]academic.Period, 0)
	err := repo.db.SelectContext(ctx, &periods, `
		SELECT id, nama_periode, tahun_ajaran, semester, created_at FROM periode ORDER BY created_at DESC`)
	return periods, errors.Wrap(err, "querying periods")
}

func (repo academicRepository) GetPeriod(ctx context.Context, id string) (academic.Period, error) {
	var p academic.Period
	err := repo.db.GetContext(ctx, &p, `
		SELECT id, nama_periode, tahun_ajaran, semester, created_at FROM periode WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return academic.Period{}, academic.ErrPeriodNotFound
		}
		return academic.Period{}, errors.Wrap(err, "getting period")
	}
	return p, nil
}

func (repo academicRepository) UpdatePeriod(ctx context.Context, p academic.Period) (academic.Period, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE periode SET nama_periode = :nama_periode, tahun_ajaran = :tahun_ajaran, semester = :semester
		WHERE id = :id`, p)
	if err != nil {
		return academic.Period{}, errors.Wrap(err, "updating period")
	}
	if err = checkAffected(res, academic.ErrPeriodNotFound); err != nil {
		return academic.Period{}, err
	}
	return repo.GetPeriod(ctx, p.ID)
}

func (repo academicRepository) CreateBatch(ctx context.Context, b academic.Batch) (academic.Batch, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Period = nil
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO batch (id, nama_batch, tgl_batch, id_periode, created_at)
		VALUES (:id, :nama_batch, :tgl_batch, :id_periode, :created_at)`, b)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return academic.Batch{}, academic.ErrPeriodNotFound
		}
		return academic.Batch{}, errors.Wrap(err, "inserting batch")
	}
	return b, nil
}

func (repo academicRepository) QueryBatches(ctx context.Context, periodID string) ([]academic.Batch, error) {
	var rows []batchRow
	var err error
	if periodID == "" {
		err = repo.db.SelectContext(ctx, &rows, batchSelect+" ORDER BY b.created_at DESC")
	} else {
		err = repo.db.SelectContext(ctx, &rows, batchSelect+" WHERE b.id_periode = $1 ORDER BY b.created_at DESC", periodID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	batches := make([]academic.Batch, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, r.batch())
	}
	return batches, nil
}

func (repo academicRepository) GetBatch(ctx context.Context, id string) (academic.Batch, error) {
	var row batchRow
	if err := repo.db.GetContext(ctx, &row, batchSelect+" WHERE b.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return academic.Batch{}, academic.ErrBatchNotFound
		}
		return academic.Batch{}, errors.Wrap(err, "getting batch")
	}
	return row.batch(), nil
}

// batchesByID loads the given batches with their periods.
func batchesByID(ctx context.Context, db sqlx.QueryerContext, ids []string) (map[string]academic.Batch, error) {
	batches := make(map[string]academic.Batch, len(ids))
	if len(ids) == 0 {
		return batches, nil
	}
	var rows []batchRow
	if err := sqlx.SelectContext(ctx, db, &rows, batchSelect+" WHERE b.id = ANY($1)", pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "loading batches")
	}
	for _, r := range rows {
		batches[r.ID] = r.batch()
	}
	return batches, nil
}
