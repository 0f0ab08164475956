package inmemdb

import (
	"context"
	"sort"

	"github.com/pnl-akademik/disiplin/core/clustering"
)

type clusteringRepository struct {
	db *DB
}

var _ clustering.Repository = (*clusteringRepository)(nil)

func NewClusteringRepository(db *DB) *clusteringRepository {
	return &clusteringRepository{db: db}
}

func (repo *clusteringRepository) ReplaceBatchResults(_ context.Context, batchID string, results []clustering.Result) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, r := range repo.db.results {
		if r.BatchID == batchID {
			delete(repo.db.results, id)
		}
	}
	for i := range results {
		r := results[i]
		r.BatchID = batchID
		repo.db.results[r.ID] = &r
	}
	return nil
}

func (repo *clusteringRepository) QueryResults(_ context.Context, filter clustering.ResultFilter) ([]clustering.ResultDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	details := make([]clustering.ResultDetail, 0)
	for _, r := range repo.db.results {
		if filter.BatchID != "" && r.BatchID != filter.BatchID {
			continue
		}
		if filter.UserID != "" && r.UserID.String != filter.UserID {
			continue
		}
		d := repo.detail(r)
		if filter.PeriodID != "" && (d.Batch == nil || d.Batch.PeriodID != filter.PeriodID) {
			continue
		}
		details = append(details, d)
	}
	sort.SliceStable(details, func(i, j int) bool {
		if !details[i].CreatedAt.Equal(details[j].CreatedAt) {
			return details[i].CreatedAt.After(details[j].CreatedAt)
		}
		return details[i].IDNumber < details[j].IDNumber
	})
	return details, nil
}

func (repo *clusteringRepository) GetResult(_ context.Context, id string) (clustering.ResultDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.results[id]; ok {
		return repo.detail(r), nil
	}
	return clustering.ResultDetail{}, clustering.ErrResultNotFound
}

func (repo *clusteringRepository) SetMessageStatus(_ context.Context, id, status string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.results[id]
	if !ok {
		return clustering.ErrResultNotFound
	}
	r.MessageStatus = status
	return nil
}

// detail must be called with db.mu held.
func (repo *clusteringRepository) detail(r *clustering.Result) clustering.ResultDetail {
	d := clustering.ResultDetail{Result: *r}
	if r.UserID.Valid {
		if p, ok := repo.db.profiles[r.UserID.String]; ok {
			profile := *p
			d.User = &profile
		}
	}
	if b, ok := repo.db.batches[r.BatchID]; ok {
		batch := repo.db.batchWithPeriod(b)
		d.Batch = &batch
	}
	return d
}
