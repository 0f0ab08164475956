package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/pnl-akademik/disiplin/core/academic"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *DB) *academicRepository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) CreatePeriod(_ context.Context, p academic.Period) (academic.Period, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	repo.db.periods[p.ID] = &p
	return p, nil
}

func (repo *academicRepository) QueryPeriods(_ context.Context) ([]academic.Period, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	periods := make([]academic.Period, 0, len(repo.db.periods))
	for _, p := range repo.db.periods {
		periods = append(periods, *p)
	}
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].CreatedAt.After(periods[j].CreatedAt) })
	return periods, nil
}

func (repo *academicRepository) GetPeriod(_ context.Context, id string) (academic.Period, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.periods[id]; ok {
		return *p, nil
	}
	return academic.Period{}, academic.ErrPeriodNotFound
}

func (repo *academicRepository) UpdatePeriod(_ context.Context, p academic.Period) (academic.Period, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.periods[p.ID]; !ok {
		return academic.Period{}, academic.ErrPeriodNotFound
	}
	repo.db.periods[p.ID] = &p
	return p, nil
}

func (repo *academicRepository) CreateBatch(_ context.Context, b academic.Batch) (academic.Batch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.periods[b.PeriodID]; !ok {
		return academic.Batch{}, academic.ErrPeriodNotFound
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Period = nil
	repo.db.batches[b.ID] = &b
	return b, nil
}

func (repo *academicRepository) QueryBatches(_ context.Context, periodID string) ([]academic.Batch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	batches := make([]academic.Batch, 0, len(repo.db.batches))
	for _, b := range repo.db.batches {
		if periodID == "" || b.PeriodID == periodID {
			batches = append(batches, repo.db.batchWithPeriod(b))
		}
	}
	sort.SliceStable(batches, func(i, j int) bool { return batches[i].CreatedAt.After(batches[j].CreatedAt) })
	return batches, nil
}

func (repo *academicRepository) GetBatch(_ context.Context, id string) (academic.Batch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if b, ok := repo.db.batches[id]; ok {
		return repo.db.batchWithPeriod(b), nil
	}
	return academic.Batch{}, academic.ErrBatchNotFound
}

// batchWithPeriod must be called with db.mu held.
func (db *DB) batchWithPeriod(b *academic.Batch) academic.Batch {
	batch := *b
	if p, ok := db.periods[b.PeriodID]; ok {
		period := *p
		batch.Period = &period
	}
	return batch
}
