package inmemdb

import (
	"sync"

	"github.com/athravseruwam07/clarus/core/course"
	"github.com/athravseruwam07/clarus/core/timeline"
)

type (
	// DB is an in-memory stand-in for the Postgres store, used in tests
	// and local development.
	DB struct {
		course   *courseTable
		timeline *timelineTable
	}

	courseTable struct {
		mutex sync.RWMutex
		table map[string]*course.Course // keyed by userID|orgUnitID
	}

	timelineTable struct {
		mutex    sync.RWMutex
		events   map[string]*timeline.Event // keyed by userID|timeline key
		outcomes []timeline.Outcome
	}
)

func Open() (*DB, error) {
	return &DB{
		course:   &courseTable{table: make(map[string]*course.Course)},
		timeline: &timelineTable{events: make(map[string]*timeline.Event)},
	}, nil
}
