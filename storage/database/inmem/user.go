package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.profiles {
		if other.IDNumber == p.IDNumber {
			return user.Profile{}, user.ErrIDNumberExists
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	repo.db.profiles[p.ID] = &p
	return p, nil
}

func (repo *userRepository) QueryProfiles(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	profiles := make([]user.Profile, 0, len(repo.db.profiles))
	for _, p := range repo.db.profiles {
		if filter == nil || matchProfile(*p, filter) {
			profiles = append(profiles, *p)
		}
	}
	sortProfiles(profiles, ordering)
	return profiles, nil
}

func matchProfile(p user.Profile, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Name), s) &&
			!strings.Contains(strings.ToLower(p.IDNumber), s) &&
			!strings.Contains(strings.ToLower(p.Email), s) {
			return false
		}
	}
	if filter.Role != "" && p.Role != filter.Role {
		return false
	}
	if filter.TrackLevel != "" && p.TrackLevel != filter.TrackLevel {
		return false
	}
	if filter.Section != "" && p.Section != filter.Section {
		return false
	}
	if filter.Incomplete != nil && p.NeedsCompletion() != *filter.Incomplete {
		return false
	}
	return true
}

func sortProfiles(profiles []user.Profile, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	key := func(p user.Profile, field string) string {
		switch field {
		case "id_number":
			return p.IDNumber
		case "role":
			return p.Role
		case "track_level":
			return p.TrackLevel
		case "section":
			return p.Section
		case "created_at":
			return p.CreatedAt.Format("20060102150405.000000000")
		}
		return strings.ToLower(p.Name)
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		for _, o := range ordering {
			a, b := key(profiles[i], o.Field), key(profiles[j], o.Field)
			if a == b {
				continue
			}
			if o.Ascending {
				return a < b
			}
			return a > b
		}
		return profiles[i].IDNumber < profiles[j].IDNumber
	})
}

func (repo *userRepository) GetProfile(_ context.Context, filter user.GetFilter) (user.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.profiles[filter.ID]; ok {
			return *p, nil
		}
		return user.Profile{}, user.ErrNotFound
	}
	for _, p := range repo.db.profiles {
		switch {
		case filter.AccountID != "":
			if p.AccountID.Valid && p.AccountID.String == filter.AccountID {
				return *p, nil
			}
		case filter.IDNumber != "":
			if p.IDNumber == filter.IDNumber {
				return *p, nil
			}
		case filter.Email != "":
			if strings.EqualFold(p.Email, filter.Email) {
				return *p, nil
			}
		}
	}
	return user.Profile{}, user.ErrNotFound
}

func (repo *userRepository) ResolveIDNumbers(_ context.Context, idNumbers []string) (map[string]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(idNumbers))
	for _, n := range idNumbers {
		wanted[n] = true
	}
	ids := make(map[string]string)
	for _, p := range repo.db.profiles {
		if wanted[p.IDNumber] {
			ids[p.IDNumber] = p.ID
		}
	}
	return ids, nil
}

func (repo *userRepository) UpdateProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.profiles[p.ID]
	if !ok {
		return user.Profile{}, user.ErrNotFound
	}
	p.CreatedAt = orig.CreatedAt
	repo.db.profiles[p.ID] = &p
	return p, nil
}

func (repo *userRepository) DeleteProfilesByID(_ context.Context, ids ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.profiles, id)
		// ON DELETE CASCADE
		for rid, r := range repo.db.results {
			if r.UserID.Valid && r.UserID.String == id {
				delete(repo.db.results, rid)
			}
		}
	}
	return nil
}
