package sensors

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

type fakeRow struct {
	name  string
	value *float64
	at    time.Time
}

type fakeRows struct {
	rows    []fakeRow
	i       int
	scanErr error
	err     error
}

func (f *fakeRows) Next() bool {
	if f.i >= len(f.rows) {
		return false
	}
	f.i++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	r := f.rows[f.i-1]
	*dest[0].(*string) = r.name
	if r.value != nil {
		if err := dest[1].(interface{ Scan(any) error }).Scan(*r.value); err != nil {
			return err
		}
	}
	*dest[2].(*time.Time) = r.at
	return nil
}

func (f *fakeRows) Err() error { return f.err }

func ptr(v float64) *float64 { return &v }

func newTestMySQL(t *testing.T, now time.Time) *MySQL {
	t.Helper()
	m, err := NewMySQL(nil, 5*time.Minute, nil)
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	return m
}

func TestMySQLScan(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	m := newTestMySQL(t, now)

	rows := &fakeRows{rows: []fakeRow{
		{"TKTP", ptr(47.5), now.Add(-time.Minute)},
		{"HXOR", ptr(38), now.Add(-10 * time.Minute)}, // stale
		{"OUTSIDE", ptr(4), now},                      // not an engine sensor
		{"TKBT", nil, now},                            // null value
		{"HPFL", ptr(50), now.Add(-5 * time.Minute)},  // exactly max age
	}}

	got, err := m.scan(rows)
	require.NoError(t, err)

	assert.Equal(t, map[heating.Sensor]heating.Reading{
		heating.SensorTKTP: {Value: 47.5, At: now.Add(-time.Minute)},
		heating.SensorHPFL: {Value: 50, At: now.Add(-5 * time.Minute)},
	}, got)
}

func TestMySQLScanErrors(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	m := newTestMySQL(t, now)

	_, err := m.scan(&fakeRows{})
	assert.ErrorIs(t, err, ErrNoReadings)

	_, err = m.scan(&fakeRows{rows: []fakeRow{{"HXOR", ptr(40), now.Add(-time.Hour)}}})
	assert.ErrorIs(t, err, ErrNoReadings)

	boom := errors.New("boom")
	_, err = m.scan(&fakeRows{rows: []fakeRow{{"TKTP", ptr(40), now}}, scanErr: boom})
	assert.ErrorIs(t, err, boom)

	_, err = m.scan(&fakeRows{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestNewMySQLRejectsNegativeMaxAge(t *testing.T) {
	_, err := NewMySQL(nil, -time.Second, nil)
	assert.ErrorIs(t, err, ErrNegativeMaxAge)
}

func TestDBConfigDSN(t *testing.T) {
	dsn := DBConfig{User: "heat", Password: "s3cret", Host: "db.local", Port: 3307, Name: "heating"}.DSN()

	assert.True(t, strings.HasPrefix(dsn, "heat:s3cret@tcp(db.local:3307)/heating"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
}

func TestOpenDBDoesNotConnect(t *testing.T) {
	db, err := OpenDB(DBConfig{Host: "127.0.0.1", Port: 1, Name: "x"})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
