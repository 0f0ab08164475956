// Package academic manages periods and the batches of clustering results they hold.
package academic

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core"
)

var (
	ErrPeriodNotFound = errors.New("period not found")
	ErrBatchNotFound  = errors.New("batch not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		CreatePeriod(ctx context.Context, p Period) (Period, error)
		// QueryPeriods returns the newest periods first.
		QueryPeriods(ctx context.Context) ([]Period, error)
		GetPeriod(ctx context.Context, id string) (Period, error)
		UpdatePeriod(ctx context.Context, p Period) (Period, error)

		CreateBatch(ctx context.Context, b Batch) (Batch, error)
		// QueryBatches returns the newest batches first, with their Period.
		// An empty periodID selects every batch.
		QueryBatches(ctx context.Context, periodID string) ([]Batch, error)
		GetBatch(ctx context.Context, id string) (Batch, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) CreatePeriod(ctx context.Context, np NewPeriod) (Period, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Period{}, err
	}
	return svc.repo.CreatePeriod(ctx, Period{
		Name:         np.Name,
		AcademicYear: np.AcademicYear,
		Semester:     null.NewString(np.Semester, np.Semester != ""),
		CreatedAt:    nowFunc(),
	})
}

func (svc *Service) QueryPeriods(ctx context.Context) ([]Period, error) {
	return svc.repo.QueryPeriods(ctx)
}

func (svc *Service) GetPeriod(ctx context.Context, id string) (Period, error) {
	return svc.repo.GetPeriod(ctx, id)
}

func (svc *Service) UpdatePeriod(ctx context.Context, id string, up UpdatePeriod) (Period, error) {
	if err := up.Validate(svc.validate); err != nil {
		return Period{}, err
	}
	p, err := svc.repo.GetPeriod(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if up.Name != "" {
		p.Name = up.Name
	}
	if up.AcademicYear != "" {
		p.AcademicYear = up.AcademicYear
	}
	if up.Semester != nil {
		p.Semester = null.NewString(*up.Semester, *up.Semester != "")
	}
	return svc.repo.UpdatePeriod(ctx, p)
}

// CreateBatch creates a batch dated today in the given period.
func (svc *Service) CreateBatch(ctx context.Context, nb NewBatch) (Batch, error) {
	if err := nb.Validate(svc.validate); err != nil {
		return Batch{}, err
	}
	period, err := svc.repo.GetPeriod(ctx, nb.PeriodID)
	if err != nil {
		if errors.Cause(err) == ErrPeriodNotFound {
			return Batch{}, core.NewValidationError(err, core.FieldError{Field: "period_id", Error: err.Error()})
		}
		return Batch{}, errors.Wrap(err, "getting period")
	}

	now := nowFunc()
	b, err := svc.repo.CreateBatch(ctx, Batch{
		Name:      nb.Name,
		Date:      time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		PeriodID:  period.ID,
		CreatedAt: now,
	})
	if err != nil {
		return Batch{}, err
	}
	b.Period = &period
	return b, nil
}

func (svc *Service) QueryBatches(ctx context.Context, periodID string) ([]Batch, error) {
	return svc.repo.QueryBatches(ctx, core.CleanString(periodID))
}

func (svc *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return svc.repo.GetBatch(ctx, id)
}
