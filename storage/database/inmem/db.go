// Package inmemdb keeps users & attendance records in process memory.
// It backs the tests and the `memory` database engine.
package inmemdb

import (
	"sync"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

type (
	DB struct {
		user       *userTable
		attendance *attendanceTable
	}

	userTable struct {
		table map[string]user.User
		mutex sync.RWMutex
	}

	attendanceTable struct {
		table map[string]attendance.Record
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]user.User)},
		attendance: &attendanceTable{table: make(map[string]attendance.Record)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]user.User)
	db.user.mutex.Unlock()

	db.attendance.mutex.Lock()
	db.attendance.table = make(map[string]attendance.Record)
	db.attendance.mutex.Unlock()
}
