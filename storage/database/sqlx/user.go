package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/user"
	"github.com/pnl-akademik/disiplin/storage/database"
)

const profileColumns = `id, account_id, nim, nama, email, role, tingkat, kelas,
	nama_wali, no_wa_wali, nama_dosen_pembimbing, no_wa_dosen_pembimbing, created_at, updated_at`

var defaultProfileOrdering = core.DBOrdering{Field: "nama", Ascending: true}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CreateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (`+profileColumns+`)
		VALUES (:id, :account_id, :nim, :nama, :email, :role, :tingkat, :kelas,
			:nama_wali, :no_wa_wali, :nama_dosen_pembimbing, :no_wa_dosen_pembimbing, :created_at, :updated_at)`, p)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.Profile{}, user.ErrIDNumberExists
		}
		return user.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return p, nil
}

// buildProfileFilter returns the WHERE clause and its arguments.
func buildProfileFilter(filter *user.QueryFilter) (string, []interface{}) {
	if filter == nil || filter.IsEmpty() {
		return "", nil
	}
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(nama ILIKE "+p+" OR nim ILIKE "+p+" OR email ILIKE "+p+")")
	}
	if filter.Role != "" {
		conds = append(conds, "role = "+arg(filter.Role))
	}
	if filter.TrackLevel != "" {
		conds = append(conds, "tingkat = "+arg(filter.TrackLevel))
	}
	if filter.Section != "" {
		conds = append(conds, "kelas = "+arg(filter.Section))
	}
	if filter.Incomplete != nil {
		incomplete := `(role <> 'admin' AND (
			COALESCE(TRIM(nama_wali), '') = '' OR COALESCE(TRIM(no_wa_wali), '') = '' OR
			COALESCE(TRIM(nama_dosen_pembimbing), '') = '' OR COALESCE(TRIM(no_wa_dosen_pembimbing), '') = ''))`
		if !*filter.Incomplete {
			incomplete = "NOT " + incomplete
		}
		conds = append(conds, incomplete)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (repo userRepository) QueryProfiles(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.Profile, error) {
	where, args := buildProfileFilter(filter)
	q := "SELECT " + profileColumns + " FROM users" + where +
		" ORDER BY " + core.OrderBy(ordering, user.OrderingFields, defaultProfileOrdering) + ", nim ASC"

	profiles := make([]user.Profile, 0)
	if err := repo.db.SelectContext(ctx, &profiles, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	return profiles, nil
}

func (repo userRepository) GetProfile(ctx context.Context, filter user.GetFilter) (user.Profile, error) {
	var cond string
	var arg string
	switch {
	case filter.ID != "":
		cond, arg = "id = $1", filter.ID
	case filter.AccountID != "":
		cond, arg = "account_id = $1", filter.AccountID
	case filter.IDNumber != "":
		cond, arg = "nim = $1", filter.IDNumber
	case filter.Email != "":
		cond, arg = "LOWER(email) = LOWER($1)", filter.Email
	default:
		return user.Profile{}, user.ErrNotFound
	}

	var p user.Profile
	if err := repo.db.GetContext(ctx, &p, "SELECT "+profileColumns+" FROM users WHERE "+cond+" LIMIT 1", arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, errors.Wrap(err, "getting profile")
	}
	return p, nil
}

func (repo userRepository) ResolveIDNumbers(ctx context.Context, idNumbers []string) (map[string]string, error) {
	ids := make(map[string]string)
	if len(idNumbers) == 0 {
		return ids, nil
	}
	var rows []struct {
		ID       string `db:"id"`
		IDNumber string `db:"nim"`
	}
	if err := repo.db.SelectContext(ctx, &rows, "SELECT id, nim FROM users WHERE nim = ANY($1)", pq.Array(idNumbers)); err != nil {
		return nil, errors.Wrap(err, "resolving ID numbers")
	}
	for _, r := range rows {
		ids[r.IDNumber] = r.ID
	}
	return ids, nil
}

func (repo userRepository) UpdateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE users SET
			account_id = :account_id, nama = :nama, email = :email, role = :role,
			tingkat = :tingkat, kelas = :kelas, nama_wali = :nama_wali, no_wa_wali = :no_wa_wali,
			nama_dosen_pembimbing = :nama_dosen_pembimbing, no_wa_dosen_pembimbing = :no_wa_dosen_pembimbing,
			updated_at = :updated_at
		WHERE id = :id`, p)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "updating profile")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.Profile{}, err
	}
	return repo.GetProfile(ctx, user.GetFilter{ID: p.ID})
}

func (repo userRepository) DeleteProfilesByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting profiles")
	}
	return nil
}
