package history

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/planner"
)

// JSONField is a generic type for handling JSON marshaling/unmarshaling in database
type JSONField[T any] struct {
	Data T
}

// Scan implements the sql.Scanner interface for reading from database
func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}

	return json.Unmarshal(bytes, &j.Data)
}

// Value implements the driver.Valuer interface for writing to database
func (j JSONField[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

// dbRun represents the runs table structure
type dbRun struct {
	ID         string                           `db:"id"`
	Command    string                           `db:"command"`
	Project    string                           `db:"project"`
	Framework  string                           `db:"framework"`
	Mode       string                           `db:"mode"`
	Budget     int                              `db:"budget"`
	TotalCost  int                              `db:"total_cost"`
	Selected   JSONField[[]string]              `db:"selected"`
	Advisories JSONField[[]planner.Advisory]    `db:"advisories"`
	Evictions  JSONField[[]planner.Eviction]    `db:"evictions"`
	Targets    JSONField[map[string]TargetNote] `db:"targets"`
	CreatedAt  time.Time                        `db:"created_at"`
}

func fromRun(run Run) dbRun {
	return dbRun{
		ID:         run.ID,
		Command:    run.Command,
		Project:    run.Project,
		Framework:  run.Framework,
		Mode:       run.Mode,
		Budget:     run.Budget,
		TotalCost:  run.TotalCost,
		Selected:   JSONField[[]string]{Data: run.Selected},
		Advisories: JSONField[[]planner.Advisory]{Data: run.Advisories},
		Evictions:  JSONField[[]planner.Eviction]{Data: run.Evictions},
		Targets:    JSONField[map[string]TargetNote]{Data: run.Targets},
		CreatedAt:  run.CreatedAt,
	}
}

func (r *dbRun) toRun() Run {
	return Run{
		ID:         r.ID,
		Command:    r.Command,
		Project:    r.Project,
		Framework:  r.Framework,
		Mode:       r.Mode,
		Budget:     r.Budget,
		TotalCost:  r.TotalCost,
		Selected:   r.Selected.Data,
		Advisories: r.Advisories.Data,
		Evictions:  r.Evictions.Data,
		Targets:    r.Targets.Data,
		CreatedAt:  r.CreatedAt,
	}
}
