package inmemdb

import (
	"sync"

	"github.com/trezcool/educore/core/registration"
)

type (
	DB struct {
		registration *registrationTable
	}

	registrationTable struct {
		mutex sync.RWMutex // guards the map; rows carry their own lock
		table map[string]*registrationRow
	}

	registrationRow struct {
		mutex sync.Mutex
		rec   registration.Record
	}
)

func Open() *DB {
	return &DB{
		registration: &registrationTable{table: make(map[string]*registrationRow)},
	}
}
