package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const heatingStateQuery = "select `value` from `reading` where `sensor_id` = ? order by `id` desc limit 1"

// MySQL reads the heating-on flag the hub logs as a 0/1 reading row. It has
// no forecast.
type MySQL struct {
	db       *sql.DB
	sensorID int
}

func NewMySQL(db *sql.DB, sensorID int) *MySQL {
	return &MySQL{db: db, sensorID: sensorID}
}

func (m *MySQL) State(ctx context.Context) (State, error) {
	var v sql.NullFloat64
	err := m.db.QueryRowContext(ctx, heatingStateQuery, m.sensorID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNoState
	}
	if err != nil {
		return State{}, fmt.Errorf("query heating state: %w", err)
	}
	on, err := heatingOn(v)
	if err != nil {
		return State{}, err
	}
	return State{HeatingOn: on}, nil
}

func heatingOn(v sql.NullFloat64) (bool, error) {
	if !v.Valid {
		return false, ErrNoState
	}
	switch v.Float64 {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidValue, v.Float64)
	}
}
