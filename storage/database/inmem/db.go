// Package inmemdb implements the repositories in memory, for tests and local development.
package inmemdb

import (
	"sync"

	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/user"
)

// DB holds every table behind one lock, so multi-table writes are atomic.
type DB struct {
	mu       sync.RWMutex
	profiles map[string]*user.Profile
	periods  map[string]*academic.Period
	batches  map[string]*academic.Batch
	results  map[string]*clustering.Result
}

func Open() *DB {
	return &DB{
		profiles: make(map[string]*user.Profile),
		periods:  make(map[string]*academic.Period),
		batches:  make(map[string]*academic.Batch),
		results:  make(map[string]*clustering.Result),
	}
}
