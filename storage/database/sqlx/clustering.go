package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/user"
)

const resultColumns = `r.id, r.id_user, r.id_batch, r.nim, r.nama_mahasiswa, r.tingkat, r.kelas,
	r.total_a, r.jp, r.kedisiplinan, r.cluster, r.insight, r.nilai_matkul, r.status_pesan, r.created_at`

type clusteringRepository struct {
	db *sqlx.DB
}

var _ clustering.Repository = (*clusteringRepository)(nil)

func NewClusteringRepository(db *sqlx.DB) *clusteringRepository {
	return &clusteringRepository{db: db}
}

func (repo clusteringRepository) ReplaceBatchResults(ctx context.Context, batchID string, results []clustering.Result) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM hasil_clustering WHERE id_batch = $1", batchID); err != nil {
			return errors.Wrap(err, "deleting batch results")
		}
		if len(results) == 0 {
			return nil
		}
		for i := range results {
			results[i].BatchID = batchID
			if len(results[i].Raw) == 0 {
				results[i].Raw = []byte("{}")
			}
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO hasil_clustering (id, id_user, id_batch, nim, nama_mahasiswa, tingkat, kelas,
				total_a, jp, kedisiplinan, cluster, insight, nilai_matkul, status_pesan, created_at)
			VALUES (:id, :id_user, :id_batch, :nim, :nama_mahasiswa, :tingkat, :kelas,
				:total_a, :jp, :kedisiplinan, :cluster, :insight, :nilai_matkul, :status_pesan, :created_at)`, results)
		return errors.Wrap(err, "inserting batch results")
	})
}

func (repo clusteringRepository) QueryResults(ctx context.Context, filter clustering.ResultFilter) ([]clustering.ResultDetail, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conds = append(conds, "r.id_batch = $"+strconv.Itoa(len(args)))
	}
	if filter.PeriodID != "" {
		args = append(args, filter.PeriodID)
		conds = append(conds, "b.id_periode = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, "r.id_user = $"+strconv.Itoa(len(args)))
	}
	q := "SELECT " + resultColumns + " FROM hasil_clustering r JOIN batch b ON b.id = r.id_batch"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY r.created_at DESC, r.nim ASC"

	var results []clustering.Result
	if err := repo.db.SelectContext(ctx, &results, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	return repo.details(ctx, results)
}

func (repo clusteringRepository) GetResult(ctx context.Context, id string) (clustering.ResultDetail, error) {
	var r clustering.Result
	if err := repo.db.GetContext(ctx, &r, "SELECT "+resultColumns+" FROM hasil_clustering r WHERE r.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return clustering.ResultDetail{}, clustering.ErrResultNotFound
		}
		return clustering.ResultDetail{}, errors.Wrap(err, "getting result")
	}
	details, err := repo.details(ctx, []clustering.Result{r})
	if err != nil {
		return clustering.ResultDetail{}, err
	}
	return details[0], nil
}

func (repo clusteringRepository) SetMessageStatus(ctx context.Context, id, status string) error {
	res, err := repo.db.ExecContext(ctx, "UPDATE hasil_clustering SET status_pesan = $1 WHERE id = $2", status, id)
	if err != nil {
		return errors.Wrap(err, "updating message status")
	}
	return checkAffected(res, clustering.ErrResultNotFound)
}

// details joins results with their student and batch.
func (repo clusteringRepository) details(ctx context.Context, results []clustering.Result) ([]clustering.ResultDetail, error) {
	userIDs := make([]string, 0, len(results))
	batchIDs := make([]string, 0)
	seenBatch := make(map[string]bool)
	for _, r := range results {
		if r.UserID.Valid {
			userIDs = append(userIDs, r.UserID.String)
		}
		if !seenBatch[r.BatchID] {
			seenBatch[r.BatchID] = true
			batchIDs = append(batchIDs, r.BatchID)
		}
	}

	profiles := make(map[string]user.Profile, len(userIDs))
	if len(userIDs) > 0 {
		var rows []user.Profile
		err := repo.db.SelectContext(ctx, &rows, "SELECT "+profileColumns+" FROM users WHERE id = ANY($1)", pq.Array(userIDs))
		if err != nil {
			return nil, errors.Wrap(err, "loading result students")
		}
		for _, p := range rows {
			profiles[p.ID] = p
		}
	}
	batches, err := batchesByID(ctx, repo.db, batchIDs)
	if err != nil {
		return nil, err
	}

	details := make([]clustering.ResultDetail, 0, len(results))
	for _, r := range results {
		d := clustering.ResultDetail{Result: r}
		if p, ok := profiles[r.UserID.String]; ok && r.UserID.Valid {
			d.User = &p
		}
		if b, ok := batches[r.BatchID]; ok {
			d.Batch = &b
		}
		details = append(details, d)
	}
	return details, nil
}
